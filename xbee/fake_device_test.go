package xbee

import (
	"time"

	"github.com/davidsainty/xbeeboot/xbeeframe"
)

// timeoutError is a minimal net.Error-shaped timeout, since Bus.Poll
// only cares about the Timeout() bool method.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeDevice is an in-memory stand-in for the serial link to a local
// XBee, used to drive Bus without real hardware: Write captures every
// wire frame sent, and Inbound queues bytes (or whole frames) to be
// read back.
type fakeDevice struct {
	written [][]byte
	inbound []byte
	closed  bool
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakeDevice) Read(p []byte) (int, error) {
	if len(f.inbound) == 0 {
		return 0, timeoutError{}
	}
	n := copy(p, f.inbound)
	f.inbound = f.inbound[n:]
	return n, nil
}

func (f *fakeDevice) Close() error { f.closed = true; return nil }
func (f *fakeDevice) Drain() error {
	f.inbound = nil
	return nil
}
func (f *fakeDevice) SetDTR(on bool) error                 { return nil }
func (f *fakeDevice) SetRTS(on bool) error                 { return nil }
func (f *fakeDevice) SetReadTimeout(d time.Duration) error { return nil }

// queueFrame appends a fully encoded wire frame to the inbound buffer.
func (f *fakeDevice) queueFrame(payload []byte) {
	e := xbeeframe.NewEncoder()
	e.WriteBytes(payload)
	f.inbound = append(f.inbound, e.Encode()...)
}
