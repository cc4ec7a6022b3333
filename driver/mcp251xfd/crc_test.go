package mcp251xfd

import "testing"

func TestCRCResidue(t *testing.T) {
	msg := []byte{0xb0, 0x04, 0x08, 0xde, 0xad, 0xbe, 0xef}
	crc := crc16(crcSeed, msg)
	full := append(append([]byte(nil), msg...), byte(crc>>8), byte(crc))
	if residue := crc16(crcSeed, full); residue != 0 {
		t.Fatalf("residue = %#x, want 0", residue)
	}
}

func TestCodecReadCRC(t *testing.T) {
	bus := newFakeBus()
	codec := NewCodec(bus)
	bus.write(regDEVID, []byte{0xaa, 0xbb, 0xcc, 0xdd})
	got, err := codec.ReadCRC(regDEVID, 4)
	if err != nil {
		t.Fatalf("ReadCRC: %v", err)
	}
	want := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReadCRC = %#x, want %#x", got, want)
		}
	}
}
