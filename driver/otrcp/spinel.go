package otrcp

import (
	"encoding/binary"
	"fmt"
)

// Spinel header byte layout (NCP/RCP framing, spinel.h).
const (
	headerFlag    = 0x80
	headerIIDMask = 0x03
	headerIIDShift = 4
	headerTIDMask = 0x0f
)

// MaxTID is the number of usable transaction IDs; TID 0 is reserved
// for unsolicited frames and is never allocated by tidTable.Next.
const MaxTID = 15

// Spinel commands used by this driver.
const (
	cmdReset         = 1
	cmdPropValueGet  = 2
	cmdPropValueSet  = 3
	cmdPropValueInsert = 4
	cmdPropValueRemove = 5
	cmdPropValueIs     = 6
	cmdPropValueInserted = 7
	cmdPropValueRemoved  = 8
)

// Spinel properties used by this driver.
const (
	propLastStatus               = 0
	propCaps                     = 2
	propHwAddr                   = 8
	propRadioCaps                = 0x413
	propPhyEnabled                = 0x20
	propPhyChan                   = 0x21
	propPhyTxPower                = 0x25
	propMacScanState              = 0x31
	propMac154SAddr                = 0x34
	propMac154LAddr                 = 0x35
	propMac154PANID                  = 0x36
	propMacRawStreamEnabled           = 0x38
	propMacSrcMatchEnabled             = 0x39
	propMacSrcMatchShortAddresses       = 0x3a
	propMacSrcMatchExtendedAddresses     = 0x3b
	propStreamRaw                          = 0x70
	propRCPMACFrameCounter                   = 0x800
	propRCPEnhAckProbing                       = 0x802
)

// Status codes for LAST_STATUS (spinel.h SPINEL_STATUS_*).
const (
	statusOK            = 0
	statusResetPowerOn  = 112
)

// Link metric flags (SPINEL_THREAD_LINK_METRIC_*).
const (
	LinkMetricPDUCount  = 1 << 0
	LinkMetricLQI       = 1 << 1
	LinkMetricLinkMargin = 1 << 2
	LinkMetricRSSI        = 1 << 3
)

// MD flags reported alongside a received radio frame.
const mdFlagAckedFP = 1 << 2

func header(iid, tid uint8) uint8 {
	return headerFlag | (iid&headerIIDMask)<<headerIIDShift | tid&headerTIDMask
}

func headerIID(h uint8) uint8 { return (h >> headerIIDShift) & headerIIDMask }
func headerTID(h uint8) uint8 { return h & headerTIDMask }

// packUint appends a Spinel packed-unsigned-integer encoding of v: 7
// data bits per byte, little-endian, continuation in the MSB.
func packUint(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		buf = append(buf, b)
		return buf
	}
}

// unpackUint decodes a Spinel packed unsigned integer from the front
// of data, returning the value and the number of bytes consumed.
func unpackUint(data []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < len(data); i++ {
		b := data[i]
		if i >= 5 {
			return 0, 0, fmt.Errorf("otrcp: unpack_uint: %w", ErrIllegalSequence)
		}
		v |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("otrcp: unpack_uint: %w", ErrIllegalSequence)
}

// tidTable tracks which of the 15 usable TIDs carry an outstanding
// request and which property each awaits, mirroring spinel_drv's
// act_id ring and props array.
type tidTable struct {
	act   uint8
	props [MaxTID]int32 // -1 when free
}

func newTIDTable() *tidTable {
	t := &tidTable{}
	for i := range t.props {
		t.props[i] = -1
	}
	return t
}

// Next advances the ring to the next TID not already awaiting a
// reply and claims it for prop, returning the TID. It returns
// ErrNoMemory once every one of the 15 slots is occupied, matching
// spinel_drv_set_t_id's -ENOMEM.
func (t *tidTable) Next(prop int) (uint8, error) {
	id := t.act
	for i := 0; i < MaxTID; i++ {
		id = id%MaxTID + 1
		if t.props[id-1] == -1 {
			t.props[id-1] = int32(prop)
			t.act = id
			return id, nil
		}
	}
	return 0, fmt.Errorf("otrcp: next_tid: %w", ErrNoMemory)
}

// Free releases tid, whether or not it was occupied.
func (t *tidTable) Free(tid uint8) {
	if tid >= 1 && int(tid) <= MaxTID {
		t.props[tid-1] = -1
	}
}

// Prop reports the property tid is awaiting, or -1 if tid is free.
func (t *tidTable) Prop(tid uint8) int {
	if tid < 1 || int(tid) > MaxTID {
		return -1
	}
	return int(t.props[tid-1])
}

// frameHeader decodes the Spinel header, command and property from
// the front of an inbound frame, along with the remaining bytes that
// hold the property's payload.
func frameHeader(data []byte) (hdr uint8, cmd, prop int, payload []byte, err error) {
	if len(data) < 1 {
		return 0, 0, 0, nil, fmt.Errorf("otrcp: frame_header: %w", ErrIllegalSequence)
	}
	hdr = data[0]
	off := 1
	c, n, err := unpackUint(data[off:])
	if err != nil {
		return 0, 0, 0, nil, err
	}
	off += n
	p, n, err := unpackUint(data[off:])
	if err != nil {
		return 0, 0, 0, nil, err
	}
	off += n
	return hdr, int(c), int(p), data[off:], nil
}

// RadioFrame mirrors struct spinel_frame_data's receive-side fields
// as unpacked from a STREAM_RAW property value.
type RadioFrame struct {
	Data          []byte
	RSSI          int8
	LQI           uint8
	Channel       uint8
	Timestamp     uint64
	FramePending  bool
}

// unpackRadioFrame decodes the STREAM_RAW payload shape shared by
// transmit-done and receive notifications: a length-prefixed frame
// followed by rssi, noise floor, flags, channel, lqi, timestamp and
// a packed error code.
func unpackRadioFrame(data []byte) (RadioFrame, error) {
	var f RadioFrame
	if len(data) < 2 {
		return f, fmt.Errorf("otrcp: unpack_radio_frame: %w", ErrIllegalSequence)
	}
	flen := int(binary.LittleEndian.Uint16(data))
	off := 2
	if off+flen > len(data) {
		return f, fmt.Errorf("otrcp: unpack_radio_frame: %w", ErrIllegalSequence)
	}
	f.Data = append([]byte(nil), data[off:off+flen]...)
	off += flen
	if off+1 > len(data) {
		return f, fmt.Errorf("otrcp: unpack_radio_frame: %w", ErrIllegalSequence)
	}
	f.RSSI = int8(data[off])
	off++
	off++ // noise floor, unused
	if off+2 > len(data) {
		return f, fmt.Errorf("otrcp: unpack_radio_frame: %w", ErrIllegalSequence)
	}
	flags := binary.LittleEndian.Uint16(data[off:])
	off += 2
	if off+2 > len(data) {
		return f, fmt.Errorf("otrcp: unpack_radio_frame: %w", ErrIllegalSequence)
	}
	f.Channel = data[off]
	off++
	f.LQI = data[off]
	off++
	if off+8 > len(data) {
		return f, fmt.Errorf("otrcp: unpack_radio_frame: %w", ErrIllegalSequence)
	}
	f.Timestamp = binary.LittleEndian.Uint64(data[off:])
	off += 8
	errCode, _, err := unpackUint(data[off:])
	if err != nil {
		return f, err
	}
	if errCode != 0 {
		return f, fmt.Errorf("otrcp: unpack_radio_frame: rcp reported error %d: %w", errCode, ErrIO)
	}
	f.FramePending = flags&mdFlagAckedFP != 0
	return f, nil
}

// DecodeReceiveFrame extracts an inbound radio frame from an
// unsolicited STREAM_RAW notification, as delivered to
// UartLoop.Unsolicited. ok is false for any other frame.
func DecodeReceiveFrame(frame []byte) (RadioFrame, bool) {
	_, cmd, prop, data, err := frameHeader(frame)
	if err != nil || cmd != cmdPropValueIs || prop != propStreamRaw {
		return RadioFrame{}, false
	}
	f, err := unpackRadioFrame(data)
	if err != nil {
		return RadioFrame{}, false
	}
	return f, true
}
