package mcp251xfd

import (
	"bytes"
	"testing"
)

func TestCanFrameRoundTrip(t *testing.T) {
	cases := []CanFrame{
		{ID: 0x123, DLC: 8, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{ID: 0, DLC: 0, Payload: nil},
		{ID: 0x1fffffff, Extended: true, DLC: 0xf, FDF: true, BRS: true, Payload: make([]byte, 64)},
		{ID: 0x7ff, DLC: 2, RTR: true, Payload: []byte{0, 0}},
	}
	for i, f := range cases {
		for j := range f.Payload {
			f.Payload[j] = byte(i + j + 1)
		}
		const itemSize = 8 + 64
		buf := EncodeTxObject(f, 3, itemSize)
		got := DecodeRxObject(buf, false)
		if got.ID != f.ID {
			t.Errorf("case %d: ID = %#x, want %#x", i, got.ID, f.ID)
		}
		if got.Extended != f.Extended {
			t.Errorf("case %d: Extended = %v, want %v", i, got.Extended, f.Extended)
		}
		if got.DLC != f.DLC {
			t.Errorf("case %d: DLC = %d, want %d", i, got.DLC, f.DLC)
		}
		if !bytes.Equal(got.Payload, f.Payload) {
			t.Errorf("case %d: Payload = %#x, want %#x", i, got.Payload, f.Payload)
		}
		if got.FDF != f.FDF || got.BRS != f.BRS || got.RTR != f.RTR {
			t.Errorf("case %d: flags mismatch: got %+v want %+v", i, got, f)
		}
		if got.SEQ != 3 {
			t.Errorf("case %d: SEQ = %d, want 3", i, got.SEQ)
		}
	}
}

func TestSendScenarioEncoding(t *testing.T) {
	// Concrete scenario 1: classic 11-bit frame id=0x123, dlc=8,
	// payload 01..08, mailbox index 0.
	f := CanFrame{ID: 0x123, DLC: 8, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	buf := EncodeTxObject(f, 0, 8+8)
	id := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	if id != 0x123 {
		t.Fatalf("id word = %#x, want %#x", id, 0x123)
	}
	if dlc := buf[4] & 0xf; dlc != 8 {
		t.Fatalf("dlc = %d, want 8", dlc)
	}
	if !bytes.Equal(buf[8:16], f.Payload) {
		t.Fatalf("payload = %#x, want %#x", buf[8:16], f.Payload)
	}
}

func TestFilHitDecode(t *testing.T) {
	// Concrete scenario 2: a received frame with FILHIT=2 decodes with
	// FilHit 2.
	f := CanFrame{ID: 0x10, DLC: 0}
	buf := EncodeTxObject(f, 0, 8)
	flags := uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24
	flags |= 2 << objFlagsFilHitShift
	buf[4] = byte(flags)
	buf[5] = byte(flags >> 8)
	buf[6] = byte(flags >> 16)
	buf[7] = byte(flags >> 24)
	got := DecodeRxObject(buf, false)
	if got.FilHit != 2 {
		t.Fatalf("FilHit = %d, want 2", got.FilHit)
	}
}
