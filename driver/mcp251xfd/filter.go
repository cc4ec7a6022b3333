package mcp251xfd

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Filter is a single acceptance filter entry: frames whose ID matches
// id under mask are routed to the RX FIFO and delivered to RX.
type Filter struct {
	ID  uint32
	Mask uint32
	IDE bool
	RX  func(CanFrame)
}

// Filters allocates acceptance filters from a bitmap and programs
// FLTOBJ/FLTMASK/FLTCON, mirroring mcp251xfd_add_rx_filter and
// mcp251xfd_remove_rx_filter.
type Filters struct {
	mu      sync.Mutex
	codec   *Codec
	bitmap  uint32
	entries [MaxFilters]Filter
}

// NewFilters returns an empty filter table bound to codec.
func NewFilters(codec *Codec) *Filters {
	return &Filters{codec: codec}
}

// Add allocates the lowest-numbered free filter index and programs it
// to route matching frames to fifoIndex. It returns ErrNoSpace once
// all MaxFilters entries are in use.
func (fl *Filters) Add(f Filter, fifoIndex int) (int, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	for i := 0; i < MaxFilters; i++ {
		if fl.bitmap&(1<<i) != 0 {
			continue
		}
		if err := fl.program(i, f, fifoIndex); err != nil {
			return 0, err
		}
		fl.bitmap |= 1 << i
		fl.entries[i] = f
		return i, nil
	}
	return 0, fmt.Errorf("mcp251xfd: add_rx_filter: %w", ErrNoSpace)
}

// Remove disables filter index i and returns it to the free pool.
func (fl *Filters) Remove(i int) error {
	if i < 0 || i >= MaxFilters {
		return fmt.Errorf("mcp251xfd: remove_rx_filter: %w", ErrInvalid)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.bitmap&(1<<i) == 0 {
		return fmt.Errorf("mcp251xfd: remove_rx_filter: %w", ErrInvalid)
	}
	// Clear FLTCON's enable bit for byte-indexed filter i.
	b, err := fl.codec.Read(fltconByteReg(i), 1)
	if err != nil {
		return fmt.Errorf("mcp251xfd: remove_rx_filter: %w", err)
	}
	b[0] &^= 1 << 7 // FLTEN
	if err := fl.codec.Write(fltconByteReg(i), b); err != nil {
		return fmt.Errorf("mcp251xfd: remove_rx_filter: %w", err)
	}
	fl.bitmap &^= 1 << i
	fl.entries[i] = Filter{}
	return nil
}

// Lookup returns the callback registered for filter index i, or nil.
func (fl *Filters) Lookup(i int) func(CanFrame) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if i < 0 || i >= MaxFilters || fl.bitmap&(1<<i) == 0 {
		return nil
	}
	return fl.entries[i].RX
}

func (fl *Filters) program(i int, f Filter, fifoIndex int) error {
	var obj, mask [4]byte
	id := f.ID & objIDSIDMask
	if f.IDE {
		id = (f.ID & objIDEIDMask) << objIDEIDShift
		id |= (f.ID >> 18) & objIDSIDMask
	}
	// FLTOBJ marks extended IDs with EXIDE (bit 30); objFlagsIDEBit
	// belongs to the object flags word, not the ID word.
	const fltobjEXIDEBit = 1 << 30
	if f.IDE {
		id |= fltobjEXIDEBit
	}
	binary.LittleEndian.PutUint32(obj[:], id)
	m := f.Mask & objIDSIDMask
	if f.IDE {
		m = (f.Mask & objIDEIDMask) << objIDEIDShift
		m |= (f.Mask >> 18) & objIDSIDMask
	}
	binary.LittleEndian.PutUint32(mask[:], m)

	if err := fl.codec.Write(fltobjReg(i), obj[:]); err != nil {
		return err
	}
	if err := fl.codec.Write(fltmaskReg(i), mask[:]); err != nil {
		return err
	}
	fltcon := byte(fifoIndex&0x1f) | 1<<7 // FLTEN
	return fl.codec.Write(fltconByteReg(i), []byte{fltcon})
}
