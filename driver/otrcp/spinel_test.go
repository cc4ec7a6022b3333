package otrcp

import (
	"errors"
	"testing"
)

func TestPackUnpackUint(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 1 << 20, 1<<28 - 1}
	for _, v := range cases {
		buf := packUint(nil, v)
		got, n, err := unpackUint(buf)
		if err != nil {
			t.Fatalf("unpackUint(%d): %v", v, err)
		}
		if got != v || n != len(buf) {
			t.Fatalf("unpackUint(%d) = (%d, %d), want (%d, %d)", v, got, n, v, len(buf))
		}
	}
}

func TestHeaderBits(t *testing.T) {
	h := header(1, 9)
	if headerIID(h) != 1 {
		t.Fatalf("headerIID = %d, want 1", headerIID(h))
	}
	if headerTID(h) != 9 {
		t.Fatalf("headerTID = %d, want 9", headerTID(h))
	}
	if h&headerFlag == 0 {
		t.Fatalf("header flag bit not set: %#x", h)
	}
}

func TestTIDExhaustion(t *testing.T) {
	tb := newTIDTable()
	seen := make(map[uint8]bool)
	for i := 0; i < MaxTID; i++ {
		tid, err := tb.Next(1)
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if tid == 0 || seen[tid] {
			t.Fatalf("Next #%d returned duplicate or reserved tid %d", i, tid)
		}
		seen[tid] = true
	}
	if _, err := tb.Next(1); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("Next on exhausted table: err = %v, want ErrNoMemory", err)
	}

	tb.Free(5)
	tid, err := tb.Next(2)
	if err != nil {
		t.Fatalf("Next after Free: %v", err)
	}
	if tid != 5 {
		t.Fatalf("Next after Free returned %d, want reused tid 5", tid)
	}
}

func TestUnpackRadioFrame(t *testing.T) {
	frame := []byte{1, 2, 3, 4}
	buf := packUintLenPrefixed(frame)
	buf = append(buf, 0xd8) // rssi: int8(-40)
	buf = append(buf, 0)             // noise floor
	buf = append(buf, byte(mdFlagAckedFP), 0) // flags (le16)
	buf = append(buf, 11)            // channel
	buf = append(buf, 200)           // lqi
	buf = append(buf, packUint32(0)...)
	buf = append(buf, packUint32(0)...) // timestamp is 8 bytes total
	buf = packUint(buf, 0)              // error

	got, err := unpackRadioFrame(buf)
	if err != nil {
		t.Fatalf("unpackRadioFrame: %v", err)
	}
	if len(got.Data) != 4 || got.Channel != 11 || got.LQI != 200 || !got.FramePending {
		t.Fatalf("unpackRadioFrame = %+v", got)
	}
}
