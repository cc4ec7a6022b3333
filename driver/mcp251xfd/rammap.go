package mcp251xfd

import "fmt"

// TotalRAM is the size, in bytes, of the MCP251XFD's on-chip message
// RAM available for TEF, TX-queue and RX-FIFO storage.
const TotalRAM = 2048

// tefItemSize is the fixed size of a TEF object: header only, no
// payload.
const tefItemSize = 8

// FifoLayout describes one of the three contiguous RAM regions.
type FifoLayout struct {
	Start    int // byte offset from ramBase
	Capacity int // number of items
	ItemSize int // bytes per item, 4-byte aligned
}

// RAMMap partitions the controller's 2 KiB message RAM into TEF,
// TX-queue and RX-FIFO regions, in that fixed order, matching
// mcp251xfd_ram_init and the datasheet's recommended layout.
type RAMMap struct {
	TEF FifoLayout
	TX  FifoLayout
	RX  FifoLayout
}

// RAMConfig is the caller-supplied sizing for a RAMMap: item counts and
// the maximum payload length (bytes) to size TX/RX items for.
type RAMConfig struct {
	TEFItems      int
	TXItems       int
	RXItems       int
	PayloadLength int // 8, 12, 16, ..., 64 for CAN-FD; 0-8 for classic CAN
	RXTimestamps  bool
}

func align4(n int) int { return (n + 3) &^ 3 }

// NewRAMMap validates cfg and computes the three regions' offsets. It
// returns ErrNoSpace if the combined layout would exceed TotalRAM, the
// runtime equivalent of the static assertion the original C driver
// performs at compile time.
func NewRAMMap(cfg RAMConfig) (RAMMap, error) {
	if cfg.TEFItems <= 0 || cfg.TXItems <= 0 || cfg.RXItems <= 0 {
		return RAMMap{}, fmt.Errorf("mcp251xfd: rammap: %w", ErrInvalid)
	}
	txItemSize := align4(8 + cfg.PayloadLength)
	rxExtra := 0
	if cfg.RXTimestamps {
		rxExtra = 4
	}
	rxItemSize := align4(8 + rxExtra + cfg.PayloadLength)

	m := RAMMap{
		TEF: FifoLayout{Start: 0, Capacity: cfg.TEFItems, ItemSize: tefItemSize},
	}
	m.TX = FifoLayout{
		Start:    m.TEF.Start + m.TEF.Capacity*m.TEF.ItemSize,
		Capacity: cfg.TXItems,
		ItemSize: txItemSize,
	}
	m.RX = FifoLayout{
		Start:    m.TX.Start + m.TX.Capacity*m.TX.ItemSize,
		Capacity: cfg.RXItems,
		ItemSize: rxItemSize,
	}
	total := m.RX.Start + m.RX.Capacity*m.RX.ItemSize
	if total > TotalRAM {
		return RAMMap{}, fmt.Errorf("mcp251xfd: rammap: %d bytes exceeds %d: %w", total, TotalRAM, ErrNoSpace)
	}
	return m, nil
}

// Addr returns the absolute device address of item i within f.
func (f FifoLayout) Addr(i int) uint16 {
	return uint16(ramBase + f.Start + i*f.ItemSize)
}
