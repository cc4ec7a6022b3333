package mcp251xfd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"
)

// Bus is the minimal SPI transfer primitive the codec needs: a
// full-duplex exchange of len(w) bytes, with the received bytes placed
// in r (which must be the same length as w, or nil to discard them).
// periph.io/x/conn/v3/spi.Conn satisfies this directly.
type Bus interface {
	Tx(w, r []byte) error
}

type spiBus struct {
	conn spi.Conn
}

func (b *spiBus) Tx(w, r []byte) error {
	return b.conn.Tx(w, r)
}

// OpenSPI initializes the host's SPI drivers and opens conn as a Bus
// suitable for New, mirroring driver/wshat.Open's call to
// host.Init() before touching platform GPIO/SPI registers.
func OpenSPI(conn spi.Conn) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mcp251xfd: host init: %w", err)
	}
	return &spiBus{conn: conn}, nil
}

// IRQPin is the level-triggered interrupt line the controller polls
// from its worker goroutine. gpio.PinIn satisfies this directly.
type IRQPin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}
