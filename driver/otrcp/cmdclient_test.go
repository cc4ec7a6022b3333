package otrcp

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"
)

// loopback is an io.ReadWriteCloser test double standing in for the
// UART: anything written to the RCP side by the test is framed and
// fed back as read data on the host side, simulating a responding
// peer.
type loopback struct {
	mu      sync.Mutex
	toHost  chan []byte
	closed  chan struct{}
	respond func(hdr uint8, cmd, prop int, data []byte) [][]byte
}

func newLoopback(respond func(hdr uint8, cmd, prop int, data []byte) [][]byte) *loopback {
	return &loopback{toHost: make(chan []byte, 16), closed: make(chan struct{}), respond: respond}
}

func (l *loopback) Write(p []byte) (int, error) {
	d := NewDecoder()
	d.Frame = func(payload []byte) {
		hdr, cmd, prop, data, err := frameHeader(payload)
		if err != nil {
			return
		}
		for _, reply := range l.respond(hdr, cmd, prop, data) {
			l.toHost <- Encode(append([]byte{hdr}, reply...))
		}
	}
	d.FeedAll(p)
	return len(p), nil
}

func (l *loopback) Read(p []byte) (int, error) {
	select {
	case b := <-l.toHost:
		return copy(p, b), nil
	case <-l.closed:
		return 0, io.EOF
	}
}

func (l *loopback) Close() error {
	close(l.closed)
	return nil
}

func newTestClient(t *testing.T, respond func(hdr uint8, cmd, prop int, data []byte) [][]byte) (*Client, *UartLoop) {
	t.Helper()
	lb := newLoopback(respond)
	loop := NewUartLoop(lb)
	go loop.Run()
	t.Cleanup(func() { loop.Close() })
	c := NewClient(loop)
	c.Timeout = 500 * time.Millisecond
	return c, loop
}

func replyIs(prop int, data []byte) []byte {
	buf := packUint(nil, uint32(cmdPropValueIs))
	buf = packUint(buf, uint32(prop))
	return append(buf, data...)
}

func TestClientChannel(t *testing.T) {
	c, _ := newTestClient(t, func(hdr uint8, cmd, prop int, data []byte) [][]byte {
		if cmd != cmdPropValueSet || prop != propPhyChan {
			return nil
		}
		return [][]byte{replyIs(propPhyChan, data)}
	})
	if err := c.Channel(context.Background(), 15); err != nil {
		t.Fatalf("Channel: %v", err)
	}
}

func TestClientIEEEEUI64(t *testing.T) {
	want := EUI64{1, 2, 3, 4, 5, 6, 7, 8}
	c, _ := newTestClient(t, func(hdr uint8, cmd, prop int, data []byte) [][]byte {
		if cmd != cmdPropValueGet || prop != propHwAddr {
			return nil
		}
		return [][]byte{replyIs(propHwAddr, want[:])}
	})
	got, err := c.IEEEEUI64(context.Background())
	if err != nil {
		t.Fatalf("IEEEEUI64: %v", err)
	}
	if got != want {
		t.Fatalf("IEEEEUI64 = %v, want %v", got, want)
	}
}

func TestClientTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(hdr uint8, cmd, prop int, data []byte) [][]byte { return nil })
	c.Timeout = 50 * time.Millisecond
	err := c.Channel(context.Background(), 11)
	if err == nil {
		t.Fatalf("Channel with no responder: want timeout, got nil")
	}
}

func TestClientLastStatusError(t *testing.T) {
	c, _ := newTestClient(t, func(hdr uint8, cmd, prop int, data []byte) [][]byte {
		return [][]byte{replyIs(propLastStatus, packUint(nil, 1 /* generic failure */))}
	})
	err := c.Channel(context.Background(), 11)
	if err == nil {
		t.Fatalf("Channel with failing status: want error, got nil")
	}
}

func TestClientTrashFrameSkipped(t *testing.T) {
	c, _ := newTestClient(t, func(hdr uint8, cmd, prop int, data []byte) [][]byte {
		return [][]byte{
			replyIs(propPhyTxPower, []byte{10}), // unrelated property update, arrives first
			replyIs(propPhyChan, data),
		}
	})
	if err := c.Channel(context.Background(), 20); err != nil {
		t.Fatalf("Channel: %v", err)
	}
}
