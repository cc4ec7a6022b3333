// command mcp251xfdctl brings up an MCP251XFD CAN-FD controller over
// SPI, resets it, starts it in CAN 2.0 mode, and logs frames and
// bus-state changes as they arrive. It does not program bit timing or
// RX filters.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"rcpcan.dev/driver/mcp251xfd"
)

var (
	spiDev    = flag.String("spi", "", "SPI device (e.g. /dev/spidev0.0)")
	irqPin    = flag.String("irq", "GPIO25", "interrupt GPIO pin name")
	resetPin  = flag.String("reset", "", "reset GPIO pin name, empty to use SPI reset")
	coreClk   = flag.Uint("clock", 40_000_000, "MCP251XFD core clock in Hz")
	mailboxes = flag.Int("mailboxes", mcp251xfd.DefaultMailboxes, "number of TX mailboxes")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mcp251xfdctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	port, err := spireg.Open(*spiDev)
	if err != nil {
		return fmt.Errorf("open spi: %w", err)
	}
	defer port.Close()
	conn, err := port.Connect(10*1000*1000, spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("spi connect: %w", err)
	}
	bus, err := mcp251xfd.OpenSPI(conn)
	if err != nil {
		return fmt.Errorf("open codec: %w", err)
	}

	irq := gpioreg.ByName(*irqPin)
	if irq == nil {
		return fmt.Errorf("unknown irq pin %q", *irqPin)
	}
	if err := irq.In(gpio.PullNoChange, gpio.FallingEdge); err != nil {
		return fmt.Errorf("configure irq pin: %w", err)
	}

	var reset gpio.PinOut
	if *resetPin != "" {
		out := gpioreg.ByName(*resetPin)
		if out == nil {
			return fmt.Errorf("unknown reset pin %q", *resetPin)
		}
		reset = out
	}

	ctrl, err := mcp251xfd.New(bus, irq, mcp251xfd.Config{
		RAM: mcp251xfd.RAMConfig{
			TEFItems:      8,
			TXItems:       8,
			RXItems:       16,
			PayloadLength: 64,
			RXTimestamps:  true,
		},
		Mailboxes:    *mailboxes,
		CoreClockHz:  uint32(*coreClk),
		ResetPin:     reset,
		PollInterval: 100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("new controller: %w", err)
	}

	ctrl.SetRxCallback(func(f mcp251xfd.CanFrame) {
		log.Printf("rx id=%#x dlc=%d payload=% x", f.ID, f.DLC, f.Payload)
	})
	ctrl.SetStateChangeCallback(func(st mcp251xfd.ControllerState, err error) {
		log.Printf("bus state -> %s (err=%v)", st.BusState, err)
	})

	if err := ctrl.Reset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := ctrl.SetMode(mcp251xfd.ModeCAN2_0); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer ctrl.Stop()

	log.Println("mcp251xfdctl: running")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	return nil
}
