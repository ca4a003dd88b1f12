package xbeeboot

import "testing"

func TestRingPushPopFIFO(t *testing.T) {
	var r inboundRing
	if !r.push([]byte("hello")) {
		t.Fatal("unexpected overflow")
	}
	buf := make([]byte, 3)
	if n := r.pop(buf); n != 3 || string(buf) != "hel" {
		t.Fatalf("got %q (n=%d)", buf[:n], n)
	}
	rest := make([]byte, 4)
	if n := r.pop(rest); n != 2 || string(rest[:2]) != "lo" {
		t.Fatalf("got %q (n=%d)", rest[:n], n)
	}
}

func TestRingWrapsAroundCapacity(t *testing.T) {
	var r inboundRing
	filler := make([]byte, ringSize-2)
	if !r.push(filler) {
		t.Fatal("unexpected overflow filling most of the ring")
	}
	drained := make([]byte, ringSize-2)
	r.pop(drained)

	if !r.push([]byte("wraparound")) {
		t.Fatal("push after drain should succeed and wrap the head")
	}
	out := make([]byte, len("wraparound"))
	if n := r.pop(out); n != len(out) || string(out) != "wraparound" {
		t.Fatalf("got %q (n=%d)", out[:n], n)
	}
}

func TestRingOverflowReported(t *testing.T) {
	var r inboundRing
	if !r.push(make([]byte, ringSize)) {
		t.Fatal("a full ring push should succeed")
	}
	if r.push([]byte{0x01}) {
		t.Fatal("expected overflow once the ring is already full")
	}
}
