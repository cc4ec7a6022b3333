// package mcp251xfd implements a host-side driver for the Microchip
// MCP251XFD CAN-FD controller attached over SPI.
package mcp251xfd

import "errors"

// Sentinel errors mirroring the errno taxonomy documented for the
// driver's public API. Callers compare with errors.Is; wrapped with
// context via fmt.Errorf("mcp251xfd: ...: %w", ErrX).
var (
	ErrInvalid        = errors.New("mcp251xfd: invalid argument")
	ErrNotSupported   = errors.New("mcp251xfd: not supported")
	ErrBusy           = errors.New("mcp251xfd: busy")
	ErrIO             = errors.New("mcp251xfd: i/o error")
	ErrIllegalSequence = errors.New("mcp251xfd: illegal byte sequence")
	ErrTimeout        = errors.New("mcp251xfd: timed out")
	ErrNoMemory       = errors.New("mcp251xfd: no memory")
	ErrNoSpace        = errors.New("mcp251xfd: no space")
	ErrAgain          = errors.New("mcp251xfd: try again")
	ErrNetDown        = errors.New("mcp251xfd: network down")
	ErrNetUnreach     = errors.New("mcp251xfd: network unreachable")
)
