package otrcp

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultResponseTimeout bounds how long a CmdClient operation waits
// for its matching reply before returning ErrTimeout.
const DefaultResponseTimeout = 200 * time.Millisecond

// Capabilities is the RCP's advertised radio capability bitmap
// (otRadioCaps), as returned by the RADIO_CAPS property.
type Capabilities uint32

const (
	CapAckTimeout        Capabilities = 1 << 0
	CapEnergyScan        Capabilities = 1 << 1
	CapTransmitRetries   Capabilities = 1 << 2
	CapCSMABackoff       Capabilities = 1 << 3
	CapSleepToTx         Capabilities = 1 << 4
	CapTransmitSec       Capabilities = 1 << 5
	CapTransmitTiming    Capabilities = 1 << 6
	CapReceiveTiming     Capabilities = 1 << 7
	CapRxOnWhenIdle      Capabilities = 1 << 8
)

func (c Capabilities) Has(bit Capabilities) bool { return c&bit != 0 }

// EUI64 is an IEEE 802.15.4 extended address.
type EUI64 [8]byte

// LinkMetrics selects which enhanced-ACK probing metrics the RCP
// should report (SPINEL_THREAD_LINK_METRIC_*).
type LinkMetrics struct {
	PDUCount   bool
	LQI        bool
	LinkMargin bool
	RSSI       bool
}

func (m LinkMetrics) flags() uint8 {
	var f uint8
	if m.PDUCount {
		f |= LinkMetricPDUCount
	}
	if m.LQI {
		f |= LinkMetricLQI
	}
	if m.LinkMargin {
		f |= LinkMetricLinkMargin
	}
	if m.RSSI {
		f |= LinkMetricRSSI
	}
	return f
}

// TxRequest describes an outbound 802.15.4 frame and the RCP
// transmit options that accompany it, mirroring spinel_frame_data's
// tx union.
type TxRequest struct {
	Data             []byte
	Channel          uint8
	CSMACAEnabled    bool
	HeaderUpdated    bool
	IsRetransmission bool
	SecurityProcessed bool
}

// Client drives the RCP over a UartLoop using the Spinel property
// protocol: pack a command, send it, then await the matching reply
// or LAST_STATUS error, retrying past unrelated ("trash") frames
// until the deadline.
type Client struct {
	mu      sync.Mutex
	loop    *UartLoop
	tids    *tidTable
	Timeout time.Duration
}

// NewClient returns a Client driving loop. Call loop.Run in its own
// goroutine before issuing requests.
func NewClient(loop *UartLoop) *Client {
	return &Client{loop: loop, tids: newTIDTable(), Timeout: DefaultResponseTimeout}
}

func (c *Client) pack(cmd, prop int, data []byte) ([]byte, uint8, error) {
	tid, err := c.tids.Next(prop)
	if err != nil {
		return nil, 0, err
	}
	buf := []byte{header(0, tid)}
	buf = packUint(buf, uint32(cmd))
	buf = packUint(buf, uint32(prop))
	buf = append(buf, data...)
	return buf, tid, nil
}

// matchReply implements spinel_drv_get_cmd's response classification
// for a single outstanding request: a frame carrying our TID with
// the expected command and property is the reply (ok=true); a
// LAST_STATUS for the same TID reporting a non-OK status is a
// protocol error; anything else is trash to be skipped.
func matchReply(frame []byte, tid uint8, wantCmd, wantProp int) (payload []byte, ok bool, err error) {
	hdr, cmd, prop, data, perr := frameHeader(frame)
	if perr != nil || headerTID(hdr) != tid {
		return nil, false, nil
	}
	if cmd == wantCmd && prop == wantProp {
		return data, true, nil
	}
	if cmd == cmdPropValueIs && prop == propLastStatus {
		status, _, uerr := unpackUint(data)
		if uerr == nil && status != statusOK {
			return nil, false, fmt.Errorf("otrcp: rcp status %d: %w", status, ErrIO)
		}
	}
	return nil, false, nil
}

// do sends a command/property request and blocks until check accepts
// a reply, a LAST_STATUS error arrives, the context is cancelled, or
// Timeout elapses.
func (c *Client) do(ctx context.Context, cmd, prop int, data []byte, check func(payload []byte) (bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, tid, err := c.pack(cmd, prop, data)
	if err != nil {
		return fmt.Errorf("otrcp: pack: %w", err)
	}
	defer c.tids.Free(tid)

	if err := c.loop.Send(buf); err != nil {
		return fmt.Errorf("otrcp: send: %w", err)
	}

	deadline := time.Now().Add(c.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("otrcp: tid %d: %w", tid, ErrTimeout)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case frame := <-c.loop.Frames():
			timer.Stop()
			payload, matched, merr := matchReply(frame, tid, cmdPropValueIs, prop)
			if merr != nil {
				return merr
			}
			if matched {
				ok, err := check(payload)
				if err != nil {
					return err
				}
				if ok {
					return nil
				}
			}
		case <-timer.C:
			return fmt.Errorf("otrcp: tid %d: %w", tid, ErrTimeout)
		}
	}
}

func alwaysOK(payload []byte) (bool, error) { return true, nil }

// Reset sends a Spinel stack reset and waits for the power-on
// LAST_STATUS that an RCP emits on completion.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	buf := []byte{header(0, 0)}
	buf = packUint(buf, uint32(cmdReset))
	buf = append(buf, 1) // SPINEL_RESET_STACK
	err := c.loop.Send(buf)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("otrcp: reset: %w", err)
	}

	deadline := time.Now().Add(c.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("otrcp: reset: %w", ErrTimeout)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case frame := <-c.loop.Frames():
			timer.Stop()
			hdr, cmd, prop, data, perr := frameHeader(frame)
			_ = hdr
			if perr != nil || cmd != cmdPropValueIs || prop != propLastStatus {
				continue
			}
			status, _, uerr := unpackUint(data)
			if uerr == nil && status == statusResetPowerOn {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("otrcp: reset: %w", ErrTimeout)
		}
	}
}

// IEEEEUI64 retrieves the RCP's factory-programmed extended address.
func (c *Client) IEEEEUI64(ctx context.Context) (EUI64, error) {
	var eui EUI64
	err := c.do(ctx, cmdPropValueGet, propHwAddr, nil, func(payload []byte) (bool, error) {
		if len(payload) != 8 {
			return false, nil
		}
		copy(eui[:], payload)
		return true, nil
	})
	return eui, err
}

// Capabilities retrieves the RCP's advertised radio capability bitmap.
func (c *Client) Capabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities
	err := c.do(ctx, cmdPropValueGet, propRadioCaps, nil, func(payload []byte) (bool, error) {
		v, _, uerr := unpackUint(payload)
		if uerr != nil {
			return false, nil
		}
		caps = Capabilities(v)
		return true, nil
	})
	return caps, err
}

// EnableSrcMatch toggles MAC source-address-match filtering.
func (c *Client) EnableSrcMatch(ctx context.Context, enable bool) error {
	data := []byte{boolByte(enable)}
	return c.do(ctx, cmdPropValueSet, propMacSrcMatchEnabled, data, func(payload []byte) (bool, error) {
		return len(payload) == 1 && (payload[0] != 0) == enable, nil
	})
}

// AckFPB inserts or removes a short address from the pending-frame
// source-match table.
func (c *Client) AckFPB(ctx context.Context, addr uint16, enable bool) error {
	data := packUint16(addr)
	cmd := cmdPropValueInsert
	wantCmd := cmdPropValueInserted
	if !enable {
		cmd = cmdPropValueRemove
		wantCmd = cmdPropValueRemoved
	}
	return c.doCmd(ctx, cmd, wantCmd, propMacSrcMatchShortAddresses, data, func(payload []byte) (bool, error) {
		return len(payload) == 2 && payload[0] == data[0] && payload[1] == data[1], nil
	})
}

// AckFPBExt inserts or removes an extended address from the
// pending-frame source-match table.
func (c *Client) AckFPBExt(ctx context.Context, addr EUI64, enable bool) error {
	data := addr[:]
	cmd := cmdPropValueInsert
	wantCmd := cmdPropValueInserted
	if !enable {
		cmd = cmdPropValueRemove
		wantCmd = cmdPropValueRemoved
	}
	return c.doCmd(ctx, cmd, wantCmd, propMacSrcMatchExtendedAddresses, data, func(payload []byte) (bool, error) {
		return len(payload) == 8 && string(payload) == string(data), nil
	})
}

// AckFPBClear empties both the short- and extended-address
// pending-frame match tables.
func (c *Client) AckFPBClear(ctx context.Context) error {
	if err := c.do(ctx, cmdPropValueSet, propMacSrcMatchShortAddresses, nil, alwaysOK); err != nil {
		return err
	}
	return c.do(ctx, cmdPropValueSet, propMacSrcMatchExtendedAddresses, nil, alwaysOK)
}

// MACFrameCounter sets the RCP's outgoing MAC frame counter.
func (c *Client) MACFrameCounter(ctx context.Context, counter uint32, setIfLarger bool) error {
	data := append(packUint32(counter), boolByte(setIfLarger))
	return c.do(ctx, cmdPropValueSet, propRCPMACFrameCounter, data, func(payload []byte) (bool, error) {
		return len(payload) == 4 && le32(payload) == counter, nil
	})
}

// PANID sets the 802.15.4 PAN ID.
func (c *Client) PANID(ctx context.Context, panID uint16) error {
	data := packUint16(panID)
	return c.do(ctx, cmdPropValueSet, propMac154PANID, data, func(payload []byte) (bool, error) {
		return len(payload) == 2 && le16(payload) == panID, nil
	})
}

// ShortAddr sets the 802.15.4 short address.
func (c *Client) ShortAddr(ctx context.Context, addr uint16) error {
	data := packUint16(addr)
	return c.do(ctx, cmdPropValueSet, propMac154SAddr, data, func(payload []byte) (bool, error) {
		return len(payload) == 2 && le16(payload) == addr, nil
	})
}

// ExtAddr sets the 802.15.4 extended address.
func (c *Client) ExtAddr(ctx context.Context, addr EUI64) error {
	data := addr[:]
	return c.do(ctx, cmdPropValueSet, propMac154LAddr, data, func(payload []byte) (bool, error) {
		return len(payload) == 8 && string(payload) == string(data), nil
	})
}

// TxPower sets the radio transmit power in dBm.
func (c *Client) TxPower(ctx context.Context, dBm int8) error {
	data := []byte{byte(dBm)}
	return c.do(ctx, cmdPropValueSet, propPhyTxPower, data, func(payload []byte) (bool, error) {
		return len(payload) == 1 && int8(payload[0]) == dBm, nil
	})
}

// Enable turns the PHY on or off.
func (c *Client) Enable(ctx context.Context, enable bool) error {
	data := []byte{boolByte(enable)}
	return c.do(ctx, cmdPropValueSet, propPhyEnabled, data, func(payload []byte) (bool, error) {
		return len(payload) == 1 && (payload[0] != 0) == enable, nil
	})
}

// ReceiveEnable toggles the raw MAC receive stream.
func (c *Client) ReceiveEnable(ctx context.Context, enable bool) error {
	data := []byte{boolByte(enable)}
	return c.do(ctx, cmdPropValueSet, propMacRawStreamEnabled, data, func(payload []byte) (bool, error) {
		return len(payload) == 1 && (payload[0] != 0) == enable, nil
	})
}

// Channel sets the radio channel.
func (c *Client) Channel(ctx context.Context, channel uint8) error {
	data := []byte{channel}
	return c.do(ctx, cmdPropValueSet, propPhyChan, data, func(payload []byte) (bool, error) {
		return len(payload) == 1 && payload[0] == channel, nil
	})
}

// Transmit sends a raw 802.15.4 frame and, for frames requesting an
// ACK, waits for the RCP's acknowledgement frame.
func (c *Client) Transmit(ctx context.Context, req TxRequest) (RadioFrame, error) {
	const maxCSMABackoffs = 4
	const maxFrameRetries = 0

	data := packUintLenPrefixed(req.Data)
	data = append(data, req.Channel, maxCSMABackoffs, maxFrameRetries)
	data = append(data, boolByte(req.CSMACAEnabled), boolByte(req.HeaderUpdated),
		boolByte(req.IsRetransmission), boolByte(req.SecurityProcessed))
	data = append(data, packUint32(0)...) // time offset
	data = append(data, packUint32(0)...) // time base
	data = append(data, req.Channel)

	ackRequested := len(req.Data) >= 1 && req.Data[0]&0x20 != 0

	var ack RadioFrame
	err := c.do(ctx, cmdPropValueSet, propStreamRaw, data, func(payload []byte) (bool, error) {
		if !ackRequested {
			return true, nil
		}
		status, n, uerr := unpackUint(payload)
		if uerr != nil || len(payload) < n+2 {
			return false, nil
		}
		if status != statusOK {
			return false, fmt.Errorf("otrcp: transmit: rcp status %d: %w", status, ErrIO)
		}
		rest := payload[n+2:]
		f, ferr := unpackRadioFrame(rest)
		if ferr != nil {
			return false, nil
		}
		ack = f
		return true, nil
	})
	return ack, err
}

// LinkMetrics configures enhanced-ACK link-metrics probing for a peer.
func (c *Client) LinkMetrics(ctx context.Context, shortAddr uint16, extAddr EUI64, metrics LinkMetrics) error {
	data := packUint16(shortAddr)
	data = append(data, extAddr[:]...)
	data = append(data, metrics.flags())
	return c.do(ctx, cmdPropValueSet, propRCPEnhAckProbing, data, alwaysOK)
}

// doCmd is like do but the accepted reply command differs from
// cmdPropValueIs — used by the insert/remove source-match operations,
// whose replies are PROP_VALUE_INSERTED/REMOVED rather than IS.
func (c *Client) doCmd(ctx context.Context, sendCmd, wantCmd, prop int, data []byte, check func([]byte) (bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, tid, err := c.pack(sendCmd, prop, data)
	if err != nil {
		return fmt.Errorf("otrcp: pack: %w", err)
	}
	defer c.tids.Free(tid)

	if err := c.loop.Send(buf); err != nil {
		return fmt.Errorf("otrcp: send: %w", err)
	}

	deadline := time.Now().Add(c.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("otrcp: tid %d: %w", tid, ErrTimeout)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case frame := <-c.loop.Frames():
			timer.Stop()
			payload, matched, merr := matchReply(frame, tid, wantCmd, prop)
			if merr != nil {
				return merr
			}
			if matched {
				ok, err := check(payload)
				if err != nil {
					return err
				}
				if ok {
					return nil
				}
			}
		case <-timer.C:
			return fmt.Errorf("otrcp: tid %d: %w", tid, ErrTimeout)
		}
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func packUint16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func packUint32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func packUintLenPrefixed(data []byte) []byte {
	buf := packUint16(uint16(len(data)))
	return append(buf, data...)
}
