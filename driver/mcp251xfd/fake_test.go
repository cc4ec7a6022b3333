package mcp251xfd

import "encoding/binary"

// fakeBus is a minimal in-memory stand-in for the chip's register/RAM
// space, used to exercise Codec/Fsm/Filters logic without real
// hardware. Writes to CON immediately settle OPMOD to the requested
// REQOP, simulating an idealized mode change.
type fakeBus struct {
	mem map[uint16]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{mem: map[uint16]byte{}}
}

func (b *fakeBus) read(addr uint16, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = b.mem[addr+uint16(i)]
	}
	return out
}

func (b *fakeBus) write(addr uint16, data []byte) {
	for i, v := range data {
		b.mem[addr+uint16(i)] = v
	}
}

func (b *fakeBus) Tx(w, r []byte) error {
	cmd := binary.BigEndian.Uint16(w[0:2])
	instr := cmd >> 12
	addr := cmd & 0x0fff

	switch instr {
	case instrReset:
	case instrRead:
		n := len(w) - 2
		copy(r[2:], b.read(addr, n))
	case instrWrite:
		data := w[2:]
		b.write(addr, data)
		if addr == regCON && len(data) == 4 {
			v := binary.LittleEndian.Uint32(b.read(regCON, 4))
			opmod := (v & conREQOPMask) >> conREQOPShift
			v = v&^uint32(conOPMODMask) | opmod<<conOPMODShift
			binary.LittleEndian.PutUint32(data, v)
			b.write(addr, data)
		}
	case instrReadCRC:
		n := int(w[2])
		copy(r[3:], b.read(addr, n))
		crc := crc16(crcSeed, r[:3+n])
		binary.BigEndian.PutUint16(r[3+n:], crc)
	case instrWriteCRC:
		n := int(w[2])
		data := w[3 : 3+n]
		b.write(addr, data)
	}
	return nil
}
