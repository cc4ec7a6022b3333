package mcp251xfd

import (
	"encoding/binary"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// runWorker is the interrupt-worker goroutine body. It waits on the
// level-triggered IRQ pin (the Go stand-in for a semaphore posted from
// a GPIO ISR — there is no separate ISR context here, so the edge wait
// both masks and unblocks in one step) and services the chip's
// interrupt sources until the pin deasserts or done is closed.
func (c *Controller) runWorker(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		if c.irq != nil && !c.irq.WaitForEdge(100*time.Millisecond) {
			continue
		}
		consecutive := 0
		for {
			select {
			case <-done:
				return
			default:
			}
			asserted, err := c.handleInterrupts()
			if err != nil {
				log.Printf("mcp251xfd: interrupt handling: %v", err)
				break
			}
			if !asserted {
				break
			}
			consecutive++
			if consecutive%maxIntHandlerCalls == 0 {
				time.Sleep(intHandlerSleepMsec * time.Millisecond)
			}
		}
	}
}

// handleInterrupts reads and acknowledges INT once, dispatching
// handlers in the fixed order RXIF -> TEFIF -> IVMIF -> MODIF ->
// CERRIF, and reports whether the IRQ line is still asserted
// afterwards (mirroring mcp251xfd_handle_interrupts).
func (c *Controller) handleInterrupts() (asserted bool, err error) {
	intReg, err := c.codec.ReadReg32(regINT)
	if err != nil {
		return false, err
	}
	flags := intReg & 0xffff

	if err := c.ackClearable(intReg, flags); err != nil {
		return false, err
	}

	if flags&intRXIF != 0 {
		if err := c.drainRxFifo(); err != nil {
			log.Printf("mcp251xfd: rx drain: %v", err)
		}
	}
	if flags&intTEFIF != 0 {
		if err := c.drainTef(); err != nil {
			log.Printf("mcp251xfd: tef drain: %v", err)
		}
	}
	if flags&intIVMIF != 0 {
		c.handleIVMIF()
	}
	if flags&intMODIF != 0 {
		c.handleMODIF()
	}
	if flags&intCERRIF != 0 {
		c.handleCERRIF()
	}

	if c.irq == nil {
		return false, nil
	}
	return c.irq.Read() == gpio.Low, nil
}

func (c *Controller) ackClearable(intReg, flags uint32) error {
	clearable := flags & intClearableMask
	if clearable == 0 {
		return nil
	}
	return c.codec.WritePlain32(regINT, intReg&^clearable)
}

// drainRxFifo implements the FIFOSTA|FIFOUA combined read and the
// tail/head-from-FIFOCI-1 bulk-drain algorithm.
func (c *Controller) drainRxFifo() error {
	sta, ua, err := c.readFifoStatusUA(rxFifoIndex)
	if err != nil {
		return err
	}
	const fifoNotEmptyBit = 1 << 0
	if sta&fifoNotEmptyBit == 0 {
		return nil
	}
	const fifociShift = 8
	const fifociMask = 0x1f
	fifoci := int((sta >> fifociShift) & fifociMask)

	c.mu.Lock()
	capacity := c.ram.RX.Capacity
	itemSize := c.ram.RX.ItemSize
	base := c.ram.RX.Addr(0)
	c.mu.Unlock()

	head := (fifoci - 1 + capacity) % capacity
	tail := int((uint16(ua) - base)) / itemSize

	items, err := c.bulkRead(tail, head, capacity, itemSize, func(addr uint16, n int) ([]byte, error) {
		return c.codec.Read(addr, n)
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		frame := DecodeRxObject(item, c.cfg.RAM.RXTimestamps)
		c.deliverRx(frame)
	}
	return c.uincMany(fifoconReg(rxFifoIndex), len(items))
}

// drainTef drains exactly one TEF element per pass, per spec: "TEF is
// drained one element per loop pass" (there is no FIFOCI for TEF).
func (c *Controller) drainTef() error {
	sta, _, err := c.readFifoStatusUAReg(regTEFSTA, regTEFUA)
	if err != nil {
		return err
	}
	const fifoNotEmptyBit = 1 << 0
	if sta&fifoNotEmptyBit == 0 {
		return nil
	}
	item, err := c.codec.Read(uint16(ramBase), tefItemSize)
	if err != nil {
		return err
	}
	seq := DecodeTefObject(item)
	c.mbox.Complete(seq, nil)
	return c.codec.WritePlain32(regTEFCON, 1<<8) // UINC
}

func (c *Controller) handleIVMIF() {
	diag, err := c.codec.ReadReg32(regBDIAG1)
	if err != nil {
		log.Printf("mcp251xfd: ivmif: %v", err)
		return
	}
	if diag&bdiag1TXBOERR != 0 {
		c.enterBusOff()
	}
}

func (c *Controller) handleMODIF() {
	c.mu.Lock()
	requested := c.state.ModeRequested
	c.mu.Unlock()
	con, err := c.codec.ReadReg32(regCON)
	if err != nil {
		log.Printf("mcp251xfd: modif: %v", err)
		return
	}
	opmod := Mode((con & conOPMODMask) >> conOPMODShift)
	c.mu.Lock()
	c.state.ModeCurrent = opmod
	diverged := opmod != requested
	c.mu.Unlock()
	if diverged {
		// Spontaneous drop to CONFIG (e.g. bus event); re-attempt the
		// requested mode.
		if err := c.fsm.SetMode(requested, true); err != nil {
			log.Printf("mcp251xfd: modif: re-entering %v: %v", requested, err)
		}
	}
}

func (c *Controller) handleCERRIF() {
	trec, err := c.codec.ReadReg32(regTREC)
	if err != nil {
		log.Printf("mcp251xfd: cerrif: %v", err)
		return
	}
	const txboBit = 1 << 21
	if trec&txboBit != 0 {
		c.enterBusOff()
		return
	}
	c.mu.Lock()
	c.state.BusState = BusErrorActive
	cb := c.stateChange
	st := c.state
	c.mu.Unlock()
	if cb != nil {
		cb(st, nil)
	}
}

func (c *Controller) enterBusOff() {
	c.mu.Lock()
	c.state.BusState = BusOff
	cb := c.stateChange
	st := c.state
	c.mu.Unlock()
	c.mbox.FlushAll(ErrNetDown)
	if cb != nil {
		cb(st, ErrNetDown)
	}
}

func (c *Controller) deliverRx(frame CanFrame) {
	c.mu.Lock()
	cb := c.filters.Lookup(frame.FilHit)
	fallback := c.rx
	c.mu.Unlock()
	if cb != nil {
		cb(frame)
	} else if fallback != nil {
		fallback(frame)
	}
}

func (c *Controller) readFifoStatusUA(fifoIndex int) (sta uint32, ua uint32, err error) {
	return c.readFifoStatusUAReg(fifostaReg(fifoIndex), fifouaReg(fifoIndex))
}

// readFifoStatusUAReg performs a single CRC transfer covering both the
// status and user-address registers, which are adjacent words,
// matching mcp251xfd_handle_fifo_read's combined read.
func (c *Controller) readFifoStatusUAReg(staReg, uaReg uint16) (sta uint32, ua uint32, err error) {
	b, err := c.codec.ReadCRC(staReg, 8)
	if err != nil {
		return 0, 0, err
	}
	_ = uaReg // staReg..staReg+7 covers both registers; uaReg == staReg+4.
	sta = binary.LittleEndian.Uint32(b[0:4])
	ua = binary.LittleEndian.Uint32(b[4:8])
	return sta, ua, nil
}

// bulkRead reads items [tail, head] inclusive from a ring of cap
// items of itemSize bytes each, issuing a second pass when the range
// wraps past cap.
func (c *Controller) bulkRead(tail, head, capacity, itemSize int, read func(addr uint16, n int) ([]byte, error)) ([][]byte, error) {
	var count int
	if head >= tail {
		count = head - tail + 1
	} else {
		count = capacity - tail + head + 1
	}
	if count <= 0 {
		return nil, nil
	}
	c.mu.Lock()
	base := c.ram.RX.Addr(0)
	c.mu.Unlock()

	var raw []byte
	if head >= tail {
		b, err := read(base+uint16(tail*itemSize), count*itemSize)
		if err != nil {
			return nil, err
		}
		raw = b
	} else {
		first := capacity - tail
		b1, err := read(base+uint16(tail*itemSize), first*itemSize)
		if err != nil {
			return nil, err
		}
		b2, err := read(base, (head+1)*itemSize)
		if err != nil {
			return nil, err
		}
		raw = append(b1, b2...)
	}
	items := make([][]byte, count)
	for i := 0; i < count; i++ {
		items[i] = raw[i*itemSize : (i+1)*itemSize]
	}
	return items, nil
}

func (c *Controller) uincMany(fifoconReg uint16, n int) error {
	if n == 0 {
		return nil
	}
	const uincBit = 1 << 8
	con, err := c.codec.ReadReg32(fifoconReg)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := c.codec.WritePlain32(fifoconReg, con|uincBit); err != nil {
			return err
		}
	}
	return nil
}
