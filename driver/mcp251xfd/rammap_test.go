package mcp251xfd

import "testing"

func TestRAMBound(t *testing.T) {
	cases := []struct {
		cfg     RAMConfig
		wantErr bool
	}{
		{RAMConfig{TEFItems: 4, TXItems: 4, RXItems: 4, PayloadLength: 8}, false},
		{RAMConfig{TEFItems: 8, TXItems: 8, RXItems: 8, PayloadLength: 64, RXTimestamps: true}, false},
		// 2048 / (8+8+64) exceeded many times over.
		{RAMConfig{TEFItems: 64, TXItems: 64, RXItems: 64, PayloadLength: 64}, true},
	}
	for i, c := range cases {
		m, err := NewRAMMap(c.cfg)
		if c.wantErr {
			if err == nil {
				t.Errorf("case %d: got nil error, want ErrNoSpace", i)
			}
			continue
		}
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		total := m.TEF.Capacity*m.TEF.ItemSize + m.TX.Capacity*m.TX.ItemSize + m.RX.Capacity*m.RX.ItemSize
		if total > TotalRAM {
			t.Errorf("case %d: total = %d, exceeds %d", i, total, TotalRAM)
		}
		if m.TEF.Start != 0 {
			t.Errorf("case %d: TEF.Start = %d, want 0", i, m.TEF.Start)
		}
		if m.TX.Start != m.TEF.Capacity*m.TEF.ItemSize {
			t.Errorf("case %d: TX.Start = %d, want %d", i, m.TX.Start, m.TEF.Capacity*m.TEF.ItemSize)
		}
		if m.TX.ItemSize%4 != 0 || m.RX.ItemSize%4 != 0 {
			t.Errorf("case %d: item sizes not 4-byte aligned: tx=%d rx=%d", i, m.TX.ItemSize, m.RX.ItemSize)
		}
	}
}

func TestRAMMapAddr(t *testing.T) {
	m, err := NewRAMMap(RAMConfig{TEFItems: 4, TXItems: 4, RXItems: 4, PayloadLength: 8})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.TEF.Addr(0); got != ramBase {
		t.Errorf("TEF.Addr(0) = %#x, want %#x", got, ramBase)
	}
	if got, want := m.TX.Addr(0), uint16(ramBase+m.TEF.Capacity*m.TEF.ItemSize); got != want {
		t.Errorf("TX.Addr(0) = %#x, want %#x", got, want)
	}
}
