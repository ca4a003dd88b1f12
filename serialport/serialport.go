// Package serialport implements xbee.Device over a real serial port
// using go.bug.st/serial, a single cross-platform driver in place of
// per-OS build tags.
package serialport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Port wraps a go.bug.st/serial connection, adding the read-timeout and
// DTR/RTS controls xbee.Bus and xbeeboot.Session need.
type Port struct {
	mu   sync.Mutex
	port serial.Port
}

// Open opens path at baud, 8N1, no flow control. XBee modules in API
// mode do not need RTS/CTS the way the EZSP dongles do.
func Open(path string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", path, err)
	}
	return &Port{port: port}, nil
}

func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Write(data)
}

func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Close()
}

// Drain discards anything already buffered by the OS driver.
func (p *Port) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.ResetInputBuffer()
}

func (p *Port) SetDTR(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.SetDTR(on)
}

func (p *Port) SetRTS(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.SetRTS(on)
}

// SetReadTimeout bounds the next Read call. A non-positive duration
// means block indefinitely, matching go.bug.st/serial's convention.
func (p *Port) SetReadTimeout(d time.Duration) error {
	return p.port.SetReadTimeout(d)
}
