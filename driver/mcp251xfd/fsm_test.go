package mcp251xfd

import "testing"

func TestModeChangeIdempotence(t *testing.T) {
	bus := newFakeBus()
	codec := NewCodec(bus)
	fsm := NewFsm(codec)

	if err := fsm.SetMode(ModeCAN2_0, false); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if fsm.Current() != ModeCAN2_0 {
		t.Fatalf("Current() = %v, want %v", fsm.Current(), ModeCAN2_0)
	}

	before := bus.mem[regCON]
	if err := fsm.SetMode(ModeCAN2_0, false); err != nil {
		t.Fatalf("second SetMode: %v", err)
	}
	if bus.mem[regCON] != before {
		t.Fatalf("idempotent SetMode mutated CON: %v -> %v", before, bus.mem[regCON])
	}
	if fsm.Current() != ModeCAN2_0 {
		t.Fatalf("Current() after no-op = %v, want %v", fsm.Current(), ModeCAN2_0)
	}
}

// stuckBus never lets OPMOD settle, simulating a wedged controller
// (e.g. the datasheet's noted clock problem that leaves MODIF
// un-clearable).
type stuckBus struct{ *fakeBus }

func (b stuckBus) Tx(w, r []byte) error {
	err := b.fakeBus.Tx(w, r)
	// Undo the auto-settle the embedded fakeBus performs on CON writes.
	v := uint32(b.mem[regCON+3])<<24 | uint32(b.mem[regCON+2])<<16 | uint32(b.mem[regCON+1])<<8 | uint32(b.mem[regCON])
	v = v &^ uint32(conOPMODMask)
	b.mem[regCON], b.mem[regCON+1], b.mem[regCON+2], b.mem[regCON+3] =
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	return err
}

func TestModeChangeTimeout(t *testing.T) {
	bus := stuckBus{newFakeBus()}
	codec := NewCodec(bus)
	fsm := NewFsm(codec)
	if err := fsm.SetMode(ModeCAN2_0, true); err == nil {
		t.Fatal("SetMode on a stuck controller: got nil error, want ErrTimeout")
	}
}
