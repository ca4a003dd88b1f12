// Package xbeeboot implements the XBee Over-The-Air Bootloader
// reliable transport: a byte-stream pipe to an STK500v1/optiboot
// bootloader carried over a local or remote XBee Series 2 radio. It
// sits on package xbee, owning the stop-and-wait reliable channel, the
// session lifecycle (open/close/reset pulse), and per-group latency
// statistics.
package xbeeboot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidsainty/xbeeboot/serialport"
	"github.com/davidsainty/xbeeboot/xbee"
)

const (
	defaultDirectBaud = 19200
	defaultOTABaud    = 9600
	defaultResetPin   = 3

	resetAssertDelay  = 250 * time.Millisecond
	resetReleaseDelay = 50 * time.Millisecond
)

// stkGetSync is the STK500v1 Cmnd_STK_GET_SYNC / Sync_CRC_EOP pair sent
// once after the reset pulse to prime the bootloader.
var stkGetSync = []byte{0x30, 0x20}

// OpenOptions carries the parameters a caller may override from their
// defaults. Zero values mean "use the mode-appropriate default".
type OpenOptions struct {
	Baud     int
	ResetPin byte
	Log      zerolog.Logger
}

// Session is one open transport: a live serial device, the xbee.Bus
// demultiplexing frames over it, the reliable channel's sequence and
// buffering state, and this session's latency statistics.
type Session struct {
	dev   xbee.Device
	bus   *xbee.Bus
	addr  *xbee.Address
	route *xbee.SourceRoute

	direct   bool
	resetPin byte
	log      zerolog.Logger

	outSeq         byte
	outAwaiting    bool
	outAckSeq      byte
	outAcked       bool
	inSeq          byte
	lastAckSeqSent byte

	ring       inboundRing
	recvBuf    []byte
	recvFilled int

	unusable bool

	stats *Stats
}

// ParsePortSpec splits a port spec of the form "[<16-hex>]@<device>"
// into its address (empty for direct mode) and device path.
func ParsePortSpec(spec string) (addrHex string, device string, err error) {
	idx := strings.IndexByte(spec, '@')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: missing '@' separator in port spec %q", ErrBadAddress, spec)
	}
	addrHex, device = spec[:idx], spec[idx+1:]
	if addrHex != "" && len(addrHex) != 16 {
		return "", "", fmt.Errorf("%w: address must be empty (direct mode) or 16 hex digits, got %q", ErrBadAddress, addrHex)
	}
	if device == "" {
		return "", "", fmt.Errorf("%w: empty device path in port spec %q", ErrBadAddress, spec)
	}
	return addrHex, device, nil
}

// ParseResetPin validates an "xbeeresetpin" extended parameter value:
// DIO pins 1 through 6 are usable for the reset pulse; DIO7 is reserved
// for CTS and rejected.
func ParseResetPin(s string) (byte, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: xbeeresetpin: %v", ErrBadConfig, err)
	}
	if n < 1 || n > 7 {
		return 0, fmt.Errorf("%w: xbeeresetpin must be in [1,7]", ErrBadConfig)
	}
	if n == 7 {
		return 0, fmt.Errorf("%w: xbeeresetpin=7 is reserved for CTS", ErrBadConfig)
	}
	return byte(n), nil
}

// Open parses portSpec, opens the underlying serial device, brings up
// the OTA-mode AT sequence if this is not a direct-mode session, pulses
// reset, and primes the bootloader with STK_GET_SYNC.
func Open(portSpec string, opts OpenOptions) (*Session, error) {
	addrHex, device, err := ParsePortSpec(portSpec)
	if err != nil {
		return nil, err
	}
	direct := addrHex == ""

	resetPin := opts.ResetPin
	if resetPin == 0 {
		resetPin = defaultResetPin
	}
	baud := opts.Baud
	if baud == 0 {
		if direct {
			baud = defaultDirectBaud
		} else {
			baud = defaultOTABaud
		}
	}

	addr := &xbee.Address{Net: xbee.Address16Unknown}
	if !direct {
		high, perr := strconv.ParseUint(addrHex, 16, 64)
		if perr != nil {
			return nil, fmt.Errorf("%w: address %q: %v", ErrBadAddress, addrHex, perr)
		}
		addr.High = high
	}

	dev, err := serialport.Open(device, baud)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenericIO, err)
	}

	route := xbee.NewSourceRoute()
	s := &Session{
		dev:      dev,
		addr:     addr,
		route:    &route,
		direct:   direct,
		resetPin: resetPin,
		log:      opts.Log,
		stats:    newStats(),
	}
	s.bus = xbee.NewBus(dev, direct, addr, &route, opts.Log)
	s.bus.SetReceiveHandler(s.onReceive)

	if !direct {
		if err := s.bringUpOTA(); err != nil {
			_ = dev.Close()
			return nil, err
		}
	}

	if err := s.SetDTRRTS(true); err != nil {
		_ = dev.Close()
		return nil, err
	}
	time.Sleep(resetAssertDelay)
	if err := s.SetDTRRTS(false); err != nil {
		_ = dev.Close()
		return nil, err
	}
	time.Sleep(resetReleaseDelay)

	if err := s.SendBytes(stkGetSync); err != nil {
		_ = dev.Close()
		return nil, err
	}

	return s, nil
}

// bringUpOTA issues the three-command OTA bring-up sequence: force API
// mode 2, enable aggregate many-to-one routing so the target emits
// Route Record Indicators and a return path exists, and disable RTS on
// the remote XBee since the bootloader never drives flow control.
func (s *Session) bringUpOTA() error {
	s.stats.begin(StatGroupLocalAT, 1)
	if _, status, err := s.bus.LocalAT(xbee.ATAPIEnable, []byte{2}); err != nil {
		return err
	} else if status != xbee.CSOK {
		return fmt.Errorf("%w: local AT %s returned status %s", ErrGenericIO, xbee.ATAPIEnable, status)
	}
	s.stats.complete(StatGroupLocalAT, 1)

	s.stats.begin(StatGroupLocalAT, 2)
	if _, status, err := s.bus.LocalAT(xbee.ATAggregateRouting, []byte{0}); err != nil {
		return err
	} else if status != xbee.CSOK {
		return fmt.Errorf("%w: local AT %s returned status %s", ErrGenericIO, xbee.ATAggregateRouting, status)
	}
	s.stats.complete(StatGroupLocalAT, 2)

	s.stats.begin(StatGroupRemoteAT, 1)
	if _, status, err := s.bus.RemoteAT(*s.addr, xbee.ATDIO6Config, []byte{0}); err != nil {
		return err
	} else if status != xbee.CSOK {
		return &xbee.RemoteATError{Status: status}
	}
	s.stats.complete(StatGroupRemoteAT, 1)
	return nil
}

// SetDTRRTS drives the target's reset line. In direct mode this passes
// through to the real serial DTR/RTS lines; in OTA mode it issues a
// remote AT D<pin> command. on=true asserts reset (drives the pin low,
// since the bootloader's reset is active-low); on=false releases it.
func (s *Session) SetDTRRTS(on bool) error {
	if s.direct {
		if err := s.dev.SetDTR(on); err != nil {
			return fmt.Errorf("%w: set dtr: %v", ErrGenericIO, err)
		}
		if err := s.dev.SetRTS(on); err != nil {
			return fmt.Errorf("%w: set rts: %v", ErrGenericIO, err)
		}
		return nil
	}
	value := byte(5)
	if on {
		value = 4
	}
	_, _, err := s.bus.RemoteAT(*s.addr, xbee.ATDIOPin(s.resetPin), []byte{value})
	return err
}

// Drain discards any buffered unread input, then blocks until a full
// poll interval passes with nothing arriving.
func (s *Session) Drain() error {
	if s.unusable {
		return fmt.Errorf("%w: session is no longer usable", ErrGenericIO)
	}
	s.ring = inboundRing{}
	if err := s.dev.Drain(); err != nil {
		return s.fail(fmt.Errorf("%w: %v", ErrGenericIO, err))
	}
	for {
		dispatched, err := s.bus.Poll(chunkPollTimeout)
		if err != nil {
			return s.fail(err)
		}
		if !dispatched {
			return nil
		}
	}
}

// Close releases the target from reset, restores the remote XBee's
// factory routing/RTS behaviour in OTA mode, logs the session's
// accumulated latency statistics, and releases the serial device.
// Errors along the way are logged rather than aborting teardown early:
// the device is always closed.
func (s *Session) Close() error {
	if err := s.SetDTRRTS(false); err != nil {
		s.log.Warn().Err(err).Msg("xbeeboot: release reset line failed during close")
	}
	if !s.direct {
		if _, status, err := s.bus.RemoteAT(*s.addr, xbee.ATSoftwareReset, nil); err != nil {
			s.log.Warn().Err(err).Msg("xbeeboot: remote FR (full reset) failed during close")
		} else if status != xbee.CSOK {
			s.log.Warn().Stringer("status", status).Msg("xbeeboot: remote FR returned non-OK status")
		}
	}
	for _, sum := range s.stats.Summaries() {
		s.log.Info().
			Str("group", sum.Group.String()).
			Int("count", sum.Count).
			Dur("min", sum.Min).
			Dur("max", sum.Max).
			Dur("mean", sum.Mean).
			Msg("xbeeboot: latency summary")
	}
	return s.dev.Close()
}

// Stats returns this session's accumulated latency statistics.
func (s *Session) Stats() *Stats {
	return s.stats
}

func (s *Session) transmit(body []byte) error {
	if s.direct {
		return s.bus.TransmitDirect(body)
	}
	_, err := s.bus.TransmitRequest(*s.addr, body)
	return err
}

func (s *Session) fail(err error) error {
	s.unusable = true
	return err
}
