// Package xbeeframe implements the XBee API mode 2 frame codec: the
// byte-stuffed, length-prefixed, checksummed envelope carried over the
// serial link to and from a local XBee module. It has no knowledge of
// API frame types or payload contents.
package xbeeframe

// Delimiter marks the start of every frame. It is never escaped.
const Delimiter = 0x7e

const (
	escapeByte = 0x7d
	escapeXOR  = 0x20
)

// MaxFrameLen is the largest payload the decoder will buffer. A frame
// whose declared length exceeds this is discarded.
const MaxFrameLen = 256

func needsEscape(b byte) bool {
	switch b {
	case Delimiter, escapeByte, 0x11, 0x13:
		return true
	}
	return false
}

func appendEscaped(out []byte, b byte) []byte {
	if needsEscape(b) {
		return append(out, escapeByte, b^escapeXOR)
	}
	return append(out, b)
}

// Encoder accumulates an unescaped payload while maintaining a running
// checksum, then produces the escaped wire frame in one pass.
type Encoder struct {
	payload  []byte
	checksum byte
}

// NewEncoder returns an empty encoder ready for payload bytes.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// WriteByte appends one payload byte.
func (e *Encoder) WriteByte(b byte) {
	e.payload = append(e.payload, b)
	e.checksum += b
}

// WriteBytes appends a run of payload bytes.
func (e *Encoder) WriteBytes(bs []byte) {
	for _, b := range bs {
		e.WriteByte(b)
	}
}

// WriteUint16 appends a big-endian 16-bit value.
func (e *Encoder) WriteUint16(v uint16) {
	e.WriteByte(byte(v >> 8))
	e.WriteByte(byte(v))
}

// WriteUint64 appends a big-endian 64-bit value.
func (e *Encoder) WriteUint64(v uint64) {
	for shift := 56; shift >= 0; shift -= 8 {
		e.WriteByte(byte(v >> uint(shift)))
	}
}

// Len returns the number of unescaped payload bytes written so far.
func (e *Encoder) Len() int {
	return len(e.payload)
}

// Encode finalizes the frame: delimiter, escaped length, escaped
// payload, escaped checksum. The checksum is 0xFF minus the running
// sum of unescaped payload bytes, mod 256.
func (e *Encoder) Encode() []byte {
	n := len(e.payload)
	out := make([]byte, 0, n+6)
	out = append(out, Delimiter)
	out = appendEscaped(out, byte(n>>8))
	out = appendEscaped(out, byte(n))
	for _, b := range e.payload {
		out = appendEscaped(out, b)
	}
	out = appendEscaped(out, 0xff-e.checksum)
	return out
}

type decoderState int

const (
	stateSeekDelim decoderState = iota
	stateReadLen
	statePayload
	stateChecksum
)

// Decoder is an explicit state machine that unescapes and reassembles
// one frame at a time from a raw byte stream. Feed one byte at a time;
// a fresh Delimiter at any point restarts the current frame, a bad
// checksum or an oversized length silently discards it.
type Decoder struct {
	state      decoderState
	escaping   bool
	lenBuf     [2]byte
	lenIdx     int
	length     int
	payload    []byte
	runningSum byte
}

// NewDecoder returns a decoder seeking the next frame delimiter.
func NewDecoder() *Decoder {
	return &Decoder{state: stateSeekDelim}
}

func (d *Decoder) reset() {
	d.state = stateSeekDelim
	d.escaping = false
	d.lenIdx = 0
	d.length = 0
	d.payload = nil
	d.runningSum = 0
}

// Feed consumes one wire byte. It returns a decoded payload and ok=true
// exactly when a frame with a valid checksum has just completed.
func (d *Decoder) Feed(b byte) (frame []byte, ok bool) {
	if b == Delimiter {
		d.reset()
		d.state = stateReadLen
		return nil, false
	}
	if d.state == stateSeekDelim {
		return nil, false
	}
	if d.escaping {
		b ^= escapeXOR
		d.escaping = false
	} else if b == escapeByte {
		d.escaping = true
		return nil, false
	}

	switch d.state {
	case stateReadLen:
		d.lenBuf[d.lenIdx] = b
		d.lenIdx++
		if d.lenIdx != 2 {
			return nil, false
		}
		d.length = int(d.lenBuf[0])<<8 | int(d.lenBuf[1])
		if d.length > MaxFrameLen {
			d.reset()
			return nil, false
		}
		d.payload = make([]byte, 0, d.length)
		if d.length == 0 {
			d.state = stateChecksum
		} else {
			d.state = statePayload
		}
		return nil, false
	case statePayload:
		d.payload = append(d.payload, b)
		d.runningSum += b
		if len(d.payload) == d.length {
			d.state = stateChecksum
		}
		return nil, false
	case stateChecksum:
		total := d.runningSum + b
		payload := d.payload
		d.reset()
		if total != 0xff {
			return nil, false
		}
		return payload, true
	}
	return nil, false
}
