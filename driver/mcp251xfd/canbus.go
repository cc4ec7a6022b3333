package mcp251xfd

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Start leaves CONFIG and begins normal operation, launching the
// interrupt worker goroutine.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("mcp251xfd: start: %w", ErrBusy)
	}
	m := c.state.ModeRequested
	if m == ModeConfig {
		m = ModeCAN2_0
	}
	if err := c.fsm.SetMode(m, false); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.ModeCurrent = c.fsm.Current()
	c.state.Started = true
	c.state.BusState = BusErrorActive
	c.running = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.runWorker(c.done)
	return nil
}

// Stop aborts all in-flight transmissions (ABAT), flushes every live
// mailbox with ErrNetDown, and returns the controller to CONFIG.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	close(c.done)
	c.running = false
	c.mu.Unlock()

	if err := c.abortAll(); err != nil {
		log.Printf("mcp251xfd: stop: abort: %v", err)
	}
	c.mbox.FlushAll(ErrNetDown)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fsm.SetMode(ModeConfig, false); err != nil {
		return err
	}
	c.state.ModeCurrent = c.fsm.Current()
	c.state.Started = false
	c.state.BusState = BusStopped
	return nil
}

func (c *Controller) abortAll() error {
	con, err := c.codec.ReadReg32(regTXQCON)
	if err != nil {
		return err
	}
	const abatBit = 1 << 3
	if err := c.codec.WritePlain32(regTXQCON, con|abatBit); err != nil {
		return err
	}
	for i := 0; i < modeChangeTimeoutRetries; i++ {
		sta, err := c.codec.ReadReg32(regTXQCON)
		if err != nil {
			return err
		}
		if sta&abatBit == 0 {
			return nil
		}
		time.Sleep(modeChangePollInterval * time.Millisecond)
	}
	return fmt.Errorf("mcp251xfd: abat: %w", ErrTimeout)
}

// Send transmits f, invoking complete (if non-nil) once the frame has
// left the bus (TEF-drained) or the controller aborts it with an
// error. Acquiring a mailbox blocks until one is free or ctx is done.
func (c *Controller) Send(ctx context.Context, f CanFrame, complete func(error)) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return fmt.Errorf("mcp251xfd: send: %w", ErrNetDown)
	}
	ram := c.ram
	codec := c.codec
	c.mu.Unlock()

	slot, err := c.mbox.Acquire(ctx, complete)
	if err != nil {
		return err
	}

	con, err := codec.ReadReg32(regTXQCON)
	if err != nil {
		c.mbox.Release(slot)
		return fmt.Errorf("mcp251xfd: send: %w", err)
	}
	const txqNotFullBit = 1 << 0
	if con&txqNotFullBit == 0 {
		c.mbox.Release(slot)
		return fmt.Errorf("mcp251xfd: send: %w", ErrNoMemory)
	}
	ua, err := codec.ReadReg32(regTXQUA)
	if err != nil {
		c.mbox.Release(slot)
		return fmt.Errorf("mcp251xfd: send: %w", err)
	}
	addr := uint16(ramBase) + uint16(ua)

	obj := EncodeTxObject(f, slot, ram.TX.ItemSize)
	if err := codec.Write(addr, obj); err != nil {
		c.mbox.Release(slot)
		return fmt.Errorf("mcp251xfd: send: %w", err)
	}
	const uincBit = 1 << 8
	const txreqBit = 1 << 9
	if err := codec.WritePlain32(regTXQCON, con|uincBit|txreqBit); err != nil {
		c.mbox.Release(slot)
		return fmt.Errorf("mcp251xfd: send: %w", err)
	}
	return nil
}
