package otrcp

const (
	hdlcFlagXON     = 0x11
	hdlcFlagXOFF    = 0x13
	hdlcEscapeSymbol = 0x20
	hdlcFlagSequence = 0x7e
	hdlcEscapeSequence = 0x7d
	hdlcFlagSpecial  = 0xf8
)

func hdlcNeedsEscape(b byte) bool {
	switch b {
	case hdlcFlagXON, hdlcFlagXOFF, hdlcFlagSequence, hdlcEscapeSequence, hdlcFlagSpecial:
		return true
	}
	return false
}

// Encoder frames bytes into an HDLC stream: byte-stuffed, with a
// CRC-16/CCITT trailer, flag-delimited. A single Encoder is reused
// across frames; call Close to flush the CRC and closing flag.
type Encoder struct {
	out      []byte
	crc      uint16
	finished bool
}

// NewEncoder returns an Encoder ready to accept the first frame's
// bytes.
func NewEncoder() *Encoder {
	return &Encoder{crc: hdlcInitCRC, finished: true}
}

// Write stuffs and appends data to the internal output buffer,
// opening a new frame (emitting the leading flag) on the first byte
// since the last Close.
func (e *Encoder) Write(data []byte) {
	for _, b := range data {
		e.writeByte(b)
	}
}

func (e *Encoder) writeByte(b byte) {
	if e.finished {
		e.out = append(e.out, hdlcFlagSequence)
		e.finished = false
	}
	e.emit(b)
	e.crc = crc16ccitt(e.crc, []byte{b})
}

func (e *Encoder) emit(b byte) {
	if hdlcNeedsEscape(b) {
		e.out = append(e.out, hdlcEscapeSequence, b^hdlcEscapeSymbol)
	} else {
		e.out = append(e.out, b)
	}
}

// Close appends the CRC trailer and closing flag, then resets state
// for the next frame. ok mirrors hdlc_coder_out_finish's data_ok
// parameter; it is accepted for symmetry with the original API but
// does not change the bytes emitted — an encoder with no bytes
// written since the last Close emits nothing.
func (e *Encoder) Close(ok bool) {
	_ = ok
	if !e.finished {
		crc := e.crc ^ 0xffff
		e.emit(byte(crc))
		e.emit(byte(crc >> 8))
		e.out = append(e.out, hdlcFlagSequence)
	}
	e.crc = hdlcInitCRC
	e.finished = true
}

// Bytes returns the accumulated output and clears the buffer.
func (e *Encoder) Bytes() []byte {
	b := e.out
	e.out = nil
	return b
}

// Encode frames a single payload in one call: open, write, close.
func Encode(payload []byte) []byte {
	e := NewEncoder()
	if len(payload) == 0 {
		// Open the frame explicitly so an empty payload still yields a
		// flag, CRC trailer and closing flag.
		e.out = append(e.out, hdlcFlagSequence)
		e.finished = false
	}
	e.Write(payload)
	e.Close(true)
	return e.Bytes()
}

// Decoder incrementally decodes an HDLC byte stream, delivering
// complete, CRC-valid frames to Frame.
type Decoder struct {
	crc    uint16
	count  int
	escape bool
	buf    []byte

	// Frame is called once per delimiter with the accumulated payload
	// (CRC trailer stripped) when the frame validated; it is not
	// called for frames that fail the CRC check or that are too short
	// to contain a CRC (count < 2) — both are discarded silently, per
	// spec.
	Frame func(payload []byte)
}

// NewDecoder returns a Decoder ready to consume bytes via Feed.
func NewDecoder() *Decoder {
	return &Decoder{crc: hdlcInitCRC}
}

// Feed processes a single received byte.
func (d *Decoder) Feed(b byte) {
	if b == hdlcFlagSequence {
		if d.count > 0 {
			if d.count >= 2 && d.crc == hdlcValidCRC {
				if d.Frame != nil {
					d.Frame(append([]byte(nil), d.buf[:len(d.buf)-2]...))
				}
			}
		}
		d.crc = hdlcInitCRC
		d.escape = false
		d.count = 0
		d.buf = d.buf[:0]
		return
	}
	if d.escape {
		b ^= hdlcEscapeSymbol
		d.escape = false
	} else if b == hdlcEscapeSequence {
		d.escape = true
		return
	}
	d.buf = append(d.buf, b)
	d.crc = crc16ccitt(d.crc, []byte{b})
	d.count++
}

// FeedAll processes a byte slice.
func (d *Decoder) FeedAll(data []byte) {
	for _, b := range data {
		d.Feed(b)
	}
}

// Decode is a one-shot convenience over Decoder for a single
// complete, already flag-delimited frame.
func Decode(data []byte) (payload []byte, ok bool) {
	d := NewDecoder()
	d.Frame = func(p []byte) { payload, ok = p, true }
	d.FeedAll(data)
	return payload, ok
}
