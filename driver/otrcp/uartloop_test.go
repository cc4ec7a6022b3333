package otrcp

import (
	"testing"
)

type nopRWC struct{}

func (nopRWC) Read(p []byte) (int, error)  { select {} }
func (nopRWC) Write(p []byte) (int, error) { return len(p), nil }
func (nopRWC) Close() error                { return nil }

func TestUartLoopUnsolicitedDispatch(t *testing.T) {
	loop := NewUartLoop(nopRWC{})
	var got []byte
	loop.Unsolicited = func(data []byte) { got = data }

	frame := append([]byte{header(0, 0)}, []byte{1, 2, 3}...)
	loop.dec.FeedAll(Encode(frame))

	if len(got) == 0 {
		t.Fatalf("Unsolicited callback not invoked")
	}
}

func TestUartLoopRoutesByTID(t *testing.T) {
	loop := NewUartLoop(nopRWC{})
	frame := append([]byte{header(0, 3)}, []byte{9, 9}...)
	loop.dec.FeedAll(Encode(frame))

	select {
	case got := <-loop.Frames():
		if got[0] != header(0, 3) {
			t.Fatalf("routed frame header = %#x", got[0])
		}
	default:
		t.Fatalf("expected a queued frame")
	}
}

func TestUartLoopDropsOnFullQueue(t *testing.T) {
	loop := NewUartLoop(nopRWC{})
	for i := 0; i < inboundQueueSize+4; i++ {
		frame := append([]byte{header(0, 1)}, byte(i))
		loop.dec.FeedAll(Encode(frame))
	}
	if len(loop.Frames()) != inboundQueueSize {
		t.Fatalf("queue length = %d, want %d", len(loop.Frames()), inboundQueueSize)
	}
}
