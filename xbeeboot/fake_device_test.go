package xbeeboot

import (
	"time"

	"github.com/davidsainty/xbeeboot/xbeeframe"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeDevice is an in-memory stand-in for the serial link, the same
// shape as xbee's own test double: Write captures every wire frame
// sent, Read drains a preloaded inbound byte queue.
type fakeDevice struct {
	written [][]byte
	inbound []byte
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

func (f *fakeDevice) Close() error { return nil }
func (f *fakeDevice) Drain() error {
	f.inbound = nil
	return nil
}
func (f *fakeDevice) SetDTR(on bool) error              { return nil }
func (f *fakeDevice) SetRTS(on bool) error              { return nil }
func (f *fakeDevice) SetReadTimeout(d time.Duration) error { return nil }

func (f *fakeDevice) queueFrame(payload []byte) {
	e := xbeeframe.NewEncoder()
	e.WriteBytes(payload)
	f.inbound = append(f.inbound, e.Encode()...)
}

// buildReceivePacketPayload wraps an inner reliable-channel tuple in a
// 0x90 Receive Packet payload, the shape Bus.dispatchReceivePacket
// expects ahead of handing frame[12:] to the session's onReceive.
func buildReceivePacketPayload(inner []byte) []byte {
	out := make([]byte, 0, 12+len(inner))
	out = append(out, 0x90)
	out = append(out, make([]byte, 8)...) // source address, unchecked by onReceive
	out = append(out, 0, 0)                // source16
	out = append(out, 0)                   // receive options
	out = append(out, inner...)
	return out
}
