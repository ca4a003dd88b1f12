package xbeeframe

import (
	"bytes"
	"testing"
	"testing/quick"
)

func decodeOne(wire []byte) ([]byte, bool) {
	d := NewDecoder()
	for _, b := range wire {
		if frame, ok := d.Feed(b); ok {
			return frame, true
		}
	}
	return nil, false
}

func TestEscapeRoundTrip(t *testing.T) {
	f := func(b []byte) bool {
		if len(b) > 253 {
			b = b[:253]
		}
		e := NewEncoder()
		e.WriteBytes(b)
		wire := e.Encode()

		if bytes.Count(wire, []byte{Delimiter}) != 1 || wire[0] != Delimiter {
			return false
		}

		got, ok := decodeOne(wire)
		if !ok {
			return false
		}
		return bytes.Equal(got, b)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestEscapeRoundTripSpecialBytes(t *testing.T) {
	payload := []byte{0x7e, 0x7d, 0x11, 0x13, 0x00, 0xff, 0x7e, 0x7e}
	e := NewEncoder()
	e.WriteBytes(payload)
	wire := e.Encode()

	if n := bytes.Count(wire, []byte{Delimiter}); n != 1 {
		t.Fatalf("expected exactly one delimiter byte, got %d", n)
	}
	got, ok := decodeOne(wire)
	if !ok {
		t.Fatal("expected successful decode")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %x want %x", got, payload)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	e := NewEncoder()
	e.WriteBytes([]byte{0x01, 0x02, 0x03, 0x04})
	wire := e.Encode()

	// Corrupt the last payload byte (not the checksum itself).
	corrupt := append([]byte(nil), wire...)
	corrupt[len(corrupt)-2] ^= 0xff

	if _, ok := decodeOne(corrupt); ok {
		t.Fatal("expected corrupted frame to be rejected")
	}
}

func TestFreshDelimiterRestartsFrame(t *testing.T) {
	e := NewEncoder()
	e.WriteBytes([]byte{0xaa, 0xbb})
	good := e.Encode()

	garbage := []byte{Delimiter, 0x00, 0x05, 0x01, 0x02}
	wire := append(garbage, good...)

	got, ok := decodeOne(wire)
	if !ok {
		t.Fatal("expected the second, complete frame to decode")
	}
	if !bytes.Equal(got, []byte{0xaa, 0xbb}) {
		t.Fatalf("got %x", got)
	}
}

func TestOversizedLengthDiscarded(t *testing.T) {
	d := NewDecoder()
	wire := []byte{Delimiter, 0x01, 0x01} // length 257, exceeds MaxFrameLen
	for _, b := range wire {
		if _, ok := d.Feed(b); ok {
			t.Fatal("should not produce a frame for an oversized length")
		}
	}
	if d.state != stateSeekDelim {
		t.Fatalf("decoder should have reset to seeking a delimiter, got state %d", d.state)
	}
}

func TestChecksumProperty(t *testing.T) {
	f := func(b []byte) bool {
		if len(b) > 200 {
			b = b[:200]
		}
		e := NewEncoder()
		e.WriteBytes(b)
		wire := e.Encode()
		checksum := wire[len(wire)-1]
		if wire[len(wire)-2] == escapeByte {
			checksum ^= escapeXOR
		}
		var sum byte
		for _, v := range b {
			sum += v
		}
		total := sum + checksum
		return total == 0xff
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}
