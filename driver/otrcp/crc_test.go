package otrcp

import "testing"

func TestCRCCheckValue(t *testing.T) {
	// The standard CRC-16/X-25 check value for the ASCII string
	// "123456789" is 0x906E once the final XOR is applied.
	got := crc16ccitt(hdlcInitCRC, []byte("123456789")) ^ 0xffff
	const want = 0x906e
	if got != want {
		t.Fatalf("crc16ccitt = %#x, want %#x", got, want)
	}
}

func TestCRCResidue(t *testing.T) {
	msg := []byte{0xde, 0xad, 0xbe, 0xef}
	crc := crc16ccitt(hdlcInitCRC, msg) ^ 0xffff
	full := append(append([]byte(nil), msg...), byte(crc), byte(crc>>8))
	if residue := crc16ccitt(hdlcInitCRC, full); residue != hdlcValidCRC {
		t.Fatalf("residue = %#x, want %#x", residue, hdlcValidCRC)
	}
}
