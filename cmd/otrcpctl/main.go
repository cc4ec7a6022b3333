// command otrcpctl opens a serial link to an OpenThread radio
// co-processor, speaks Spinel over HDLC, and runs one diagnostic
// command against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rcpcan.dev/driver/otrcp"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "serial device the RCP is attached to")
	baud    = flag.Int("baud", 115200, "serial baud rate")
	timeout = flag.Duration("timeout", otrcp.DefaultResponseTimeout, "per-command response timeout")
)

func main() {
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "otrcpctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: otrcpctl [-device dev] [-baud rate] <reset|eui64|caps|channel N|enable|disable>")
	}

	rw, err := otrcp.OpenSerial(*device, *baud)
	if err != nil {
		return fmt.Errorf("open serial: %w", err)
	}
	defer rw.Close()

	loop := otrcp.NewUartLoop(rw)
	loop.Unsolicited = func(data []byte) {
		log.Printf("unsolicited frame: % x", data)
	}
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run() }()
	defer loop.Close()

	client := otrcp.NewClient(loop)
	client.Timeout = *timeout

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := dispatch(ctx, client, args); err != nil {
		return err
	}

	select {
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("uart loop: %w", err)
		}
	default:
	}
	return nil
}

func dispatch(ctx context.Context, c *otrcp.Client, args []string) error {
	switch args[0] {
	case "reset":
		if err := c.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		log.Println("rcp reset")
	case "eui64":
		eui, err := c.IEEEEUI64(ctx)
		if err != nil {
			return fmt.Errorf("eui64: %w", err)
		}
		log.Printf("eui64: % x", eui)
	case "caps":
		caps, err := c.Capabilities(ctx)
		if err != nil {
			return fmt.Errorf("caps: %w", err)
		}
		log.Printf("capabilities: %#x (ack-timeout=%v energy-scan=%v csma-backoff=%v)",
			uint32(caps), caps.Has(otrcp.CapAckTimeout), caps.Has(otrcp.CapEnergyScan), caps.Has(otrcp.CapCSMABackoff))
	case "channel":
		if len(args) != 2 {
			return fmt.Errorf("usage: otrcpctl channel <11-26>")
		}
		var ch uint8
		if _, err := fmt.Sscanf(args[1], "%d", &ch); err != nil {
			return fmt.Errorf("parse channel: %w", err)
		}
		if err := c.Channel(ctx, ch); err != nil {
			return fmt.Errorf("channel: %w", err)
		}
		log.Printf("channel set to %d", ch)
	case "enable":
		if err := c.Enable(ctx, true); err != nil {
			return fmt.Errorf("enable: %w", err)
		}
		log.Println("radio enabled")
	case "disable":
		if err := c.Enable(ctx, false); err != nil {
			return fmt.Errorf("disable: %w", err)
		}
		log.Println("radio disabled")
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
