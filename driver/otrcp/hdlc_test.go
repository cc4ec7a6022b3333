package otrcp

import (
	"bytes"
	"testing"
)

func TestHDLCRoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x01, 0x02, 0x03},
		{},
		{0x7e, 0x7d, 0x11, 0x13, 0xf8},
		bytes.Repeat([]byte{0xaa}, 64),
	}
	for _, payload := range cases {
		framed := Encode(payload)
		got, ok := Decode(framed)
		if !ok {
			t.Fatalf("Decode(%x): not ok", framed)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip = %x, want %x", got, payload)
		}
	}
}

func TestHDLCEscaping(t *testing.T) {
	framed := Encode([]byte{hdlcFlagSequence, hdlcEscapeSequence})
	for _, b := range framed[1 : len(framed)-1] {
		if b == hdlcFlagSequence {
			t.Fatalf("unescaped flag byte in frame body: %x", framed)
		}
	}
}

func TestHDLCResidue(t *testing.T) {
	// A frame's CRC trailer is chosen so that continuing the running
	// CRC through it always settles to the magic residue.
	payload := []byte{0x11, 0x22, 0x33, 0x7e, 0x44}
	framed := Encode(payload)

	var got []byte
	d := NewDecoder()
	d.Frame = func(p []byte) { got = p }
	d.FeedAll(framed)
	if !bytes.Equal(got, payload) {
		t.Fatalf("decoded = %x, want %x", got, payload)
	}
}

func TestHDLCCorruptedFrameDropped(t *testing.T) {
	framed := Encode([]byte{1, 2, 3})
	framed[2] ^= 0xff // corrupt a payload byte without touching the CRC
	_, ok := Decode(framed)
	if ok {
		t.Fatalf("Decode accepted a corrupted frame")
	}
}
