// package otrcp implements a host driver for an OpenThread Radio
// Co-Processor: it frames Spinel messages over HDLC across a UART.
package otrcp

import "errors"

// Sentinel errors mirroring the errno taxonomy documented for the
// driver's public API. Wrapped with context via
// fmt.Errorf("otrcp: ...: %w", ErrX), compared with errors.Is.
var (
	ErrInvalid        = errors.New("otrcp: invalid argument")
	ErrNotSupported   = errors.New("otrcp: not supported")
	ErrBusy           = errors.New("otrcp: busy")
	ErrIO             = errors.New("otrcp: i/o error")
	ErrIllegalSequence = errors.New("otrcp: illegal byte sequence")
	ErrTimeout        = errors.New("otrcp: timed out")
	ErrNoMemory       = errors.New("otrcp: no memory")
)
