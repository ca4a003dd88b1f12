package serialport

import "testing"

func TestOpenBadPathFails(t *testing.T) {
	if _, err := Open("/dev/does-not-exist-xbeeboot", 9600); err == nil {
		t.Fatal("expected an error opening a nonexistent serial device")
	}
}
