package otrcp

import (
	"io"
	"log"
)

// inboundQueueSize bounds how many TID-addressed frames can be
// buffered awaiting a CmdClient to read them. A full queue drops the
// newest frame and logs it — callers are expected to run at most a
// couple of requests at a time, so a deep backlog means something
// upstream stopped reading.
const inboundQueueSize = 8

// UartLoop owns the UART reader goroutine: it decodes HDLC frames
// off the wire and routes them either to a waiting CmdClient request
// (by TID) or, for unsolicited notifications carrying TID 0, to
// Unsolicited.
type UartLoop struct {
	rw     io.ReadWriteCloser
	dec    *Decoder
	frames chan []byte
	done   chan struct{}

	// Unsolicited is invoked, outside any lock, for every inbound
	// frame whose TID is 0 — radio receive notifications and
	// spontaneous LAST_STATUS resets chief among them.
	Unsolicited func(data []byte)
}

// NewUartLoop wraps an open UART transport.
func NewUartLoop(rw io.ReadWriteCloser) *UartLoop {
	u := &UartLoop{
		rw:     rw,
		dec:    NewDecoder(),
		frames: make(chan []byte, inboundQueueSize),
		done:   make(chan struct{}),
	}
	u.dec.Frame = u.dispatch
	return u
}

func (u *UartLoop) dispatch(payload []byte) {
	if len(payload) < 1 {
		return
	}
	if headerTID(payload[0]) == 0 {
		if u.Unsolicited != nil {
			u.Unsolicited(payload)
		}
		return
	}
	select {
	case u.frames <- payload:
	default:
		log.Printf("otrcp: inbound queue full, dropping frame (tid %d)", headerTID(payload[0]))
	}
}

// Run reads from the UART, feeding every byte through the HDLC
// decoder, until the transport errors or Close is called. Run blocks;
// call it from its own goroutine.
func (u *UartLoop) Run() error {
	buf := make([]byte, 256)
	for {
		n, err := u.rw.Read(buf)
		if n > 0 {
			u.dec.FeedAll(buf[:n])
		}
		if err != nil {
			select {
			case <-u.done:
				return nil
			default:
				return err
			}
		}
	}
}

// Close stops Run and closes the underlying transport.
func (u *UartLoop) Close() error {
	close(u.done)
	return u.rw.Close()
}

// Send HDLC-frames and writes a Spinel command to the UART.
func (u *UartLoop) Send(payload []byte) error {
	_, err := u.rw.Write(Encode(payload))
	return err
}

// Frames returns the channel of inbound, TID-addressed reply frames.
func (u *UartLoop) Frames() <-chan []byte { return u.frames }
