package mcp251xfd

import "encoding/binary"

// CanFrame is the upper-layer representation of a single CAN or
// CAN-FD frame, independent of the on-chip TX/RX object layout.
type CanFrame struct {
	ID       uint32 // 11-bit SID, or 29-bit SID+EID when Extended
	Extended bool
	DLC      uint8 // 0-15, wire-level data length code
	Payload  []byte
	BRS      bool // bit-rate switch (FD only)
	FDF      bool // FD frame format
	RTR      bool // remote request (classic CAN only)
	ESI      bool // error state indicator
	FilHit   int  // which acceptance filter matched (RX only)
	SEQ      int  // mailbox index echoed by TEF (TX only)
}

// dlcToLen maps a CAN-FD DLC (0-15) to payload length in bytes.
var dlcToLen = [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

func lenToDLC(n int) uint8 {
	for dlc := len(dlcToLen) - 1; dlc >= 0; dlc-- {
		if dlcToLen[dlc] <= n {
			return uint8(dlc)
		}
	}
	return 0
}

// Bit layout of the 4-byte ID word, shared by TX and RX objects.
const (
	objIDSIDShift  = 0
	objIDSIDMask   = 0x7ff
	objIDEIDShift  = 11
	objIDEIDMask   = 0x3ffff
	objIDSID11Bit  = 1 << 29
)

// Bit layout of the 4-byte flags word, shared by TX and RX objects.
const (
	objFlagsDLCShift = 0
	objFlagsDLCMask  = 0xf
	objFlagsIDEBit   = 1 << 4
	objFlagsRTRBit   = 1 << 5
	objFlagsBRSBit   = 1 << 6
	objFlagsFDFBit   = 1 << 7
	objFlagsESIBit   = 1 << 8
	objFlagsSEQShift = 9
	objFlagsSEQMask  = 0x7f
	objFlagsFilHitShift = 16
	objFlagsFilHitMask  = 0x1f
)

// EncodeTxObject serializes f into a TxObject header+payload buffer
// sized by itemSize (item size must already account for the payload
// length, as computed by RAMMap). seq is the mailbox index carried in
// the 7-bit SEQ field of the flags word, per mcp251xfd_canframe_to_txobj.
func EncodeTxObject(f CanFrame, seq int, itemSize int) []byte {
	buf := make([]byte, itemSize)
	var id uint32
	if f.Extended {
		id = (f.ID & objIDEIDMask) << objIDEIDShift
		id |= (f.ID >> 18) & objIDSIDMask
	} else {
		id = f.ID & objIDSIDMask
	}
	binary.LittleEndian.PutUint32(buf[0:4], id)

	dlc := f.DLC
	if dlc == 0 && len(f.Payload) > 0 {
		dlc = lenToDLC(len(f.Payload))
	}
	flags := uint32(dlc&objFlagsDLCMask) << objFlagsDLCShift
	if f.Extended {
		flags |= objFlagsIDEBit
	}
	if f.RTR {
		flags |= objFlagsRTRBit
	}
	if f.BRS {
		flags |= objFlagsBRSBit
	}
	if f.FDF {
		flags |= objFlagsFDFBit
	}
	if f.ESI {
		flags |= objFlagsESIBit
	}
	flags |= uint32(seq&objFlagsSEQMask) << objFlagsSEQShift
	binary.LittleEndian.PutUint32(buf[4:8], flags)

	copy(buf[8:], f.Payload)
	return buf
}

// DecodeRxObject is the inverse of EncodeTxObject for a received
// object, additionally populating FilHit and an optional 4-byte
// timestamp field if present (hasTimestamp true shifts the payload
// start by 4 bytes, matching mcp251xfd_rxobj_to_canframe).
func DecodeRxObject(buf []byte, hasTimestamp bool) CanFrame {
	id := binary.LittleEndian.Uint32(buf[0:4])
	flags := binary.LittleEndian.Uint32(buf[4:8])

	var f CanFrame
	f.Extended = flags&objFlagsIDEBit != 0
	if f.Extended {
		sid := id & objIDSIDMask
		eid := (id >> objIDEIDShift) & objIDEIDMask
		f.ID = sid<<18 | eid
	} else {
		f.ID = id & objIDSIDMask
	}
	f.DLC = uint8((flags >> objFlagsDLCShift) & objFlagsDLCMask)
	f.RTR = flags&objFlagsRTRBit != 0
	f.BRS = flags&objFlagsBRSBit != 0
	f.FDF = flags&objFlagsFDFBit != 0
	f.ESI = flags&objFlagsESIBit != 0
	f.SEQ = int((flags >> objFlagsSEQShift) & objFlagsSEQMask)
	f.FilHit = int((flags >> objFlagsFilHitShift) & objFlagsFilHitMask)

	payloadOff := 8
	if hasTimestamp {
		payloadOff += 4
	}
	n := dlcToLen[f.DLC&0xf]
	if !f.FDF && n > 8 {
		n = 8
	}
	if payloadOff+n > len(buf) {
		n = len(buf) - payloadOff
	}
	if n < 0 {
		n = 0
	}
	f.Payload = append([]byte(nil), buf[payloadOff:payloadOff+n]...)
	return f
}

// DecodeTefObject extracts the mailbox SEQ from a drained TEF object;
// TEF carries a header only, no payload.
func DecodeTefObject(buf []byte) (seq int) {
	flags := binary.LittleEndian.Uint32(buf[4:8])
	return int((flags >> objFlagsSEQShift) & objFlagsSEQMask)
}
