package xbee

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidsainty/xbeeboot/xbeeframe"
)

// ErrGenericIO covers serial read/write failure, a poll budget being
// exhausted, or a checksum/length overrun surfaced as terminal.
var ErrGenericIO = errors.New("xbee: generic I/O failure")

// RemoteATError reports a remote AT command status other than OK,
// surfaced with a human-readable message while leaving the transport
// usable. It replaces an overloaded negative-status-code convention
// with a typed result.
type RemoteATError struct {
	Status CommandStatus
}

func (e *RemoteATError) Error() string {
	return fmt.Sprintf("xbee: remote AT error: %s", e.Status)
}

const (
	localATPollAttempts  = 5
	remoteATPollAttempts = 30
	pollReadTimeout      = time.Second
)

type pendingAT struct {
	frameID byte
	done    bool
	status  CommandStatus
	data    []byte
}

// Bus is the single-threaded demultiplexer sitting on top of one
// Device: it owns the frame codec, the shared XBee frame-id counter,
// and dispatch of inbound frames to the local/remote AT drivers, the
// source-route cache, and XBeeBoot's receive handler. There is no
// background goroutine: Poll is re-entered synchronously by every
// operation that needs a response, a deliberately cooperative
// concurrency model with no cross-call synchronization to reason
// about.
type Bus struct {
	dev    Device
	log    zerolog.Logger
	dec    *xbeeframe.Decoder
	txSeq  byte
	addr   *Address
	route  *SourceRoute
	direct bool

	pendingLocal  *pendingAT
	pendingRemote *pendingAT
	onReceive     func(data []byte)
}

// NewBus constructs a Bus over dev. addr and route are owned by the
// caller (typically an xbeeboot.Session) and mutated in place as
// inbound frames are observed.
func NewBus(dev Device, direct bool, addr *Address, route *SourceRoute, log zerolog.Logger) *Bus {
	return &Bus{
		dev:    dev,
		log:    log,
		dec:    xbeeframe.NewDecoder(),
		addr:   addr,
		route:  route,
		direct: direct,
	}
}

// SetReceiveHandler installs the callback invoked with the payload of
// every inbound 0x90 Receive Packet frame.
func (b *Bus) SetReceiveHandler(f func(data []byte)) {
	b.onReceive = f
}

func (b *Bus) nextFrameID() byte {
	b.txSeq = NextSequence(b.txSeq)
	return b.txSeq
}

// announceRouteIfNeeded emits a Create Source Route frame immediately
// before any addressed call that needs one.
func (b *Bus) announceRouteIfNeeded(apiType byte) error {
	if !b.route.NeedsAnnounce(apiType) {
		return nil
	}
	e := xbeeframe.NewEncoder()
	e.WriteByte(FrameCreateSourceRoute)
	e.WriteByte(0) // frame id 0: fire-and-forget, no response expected
	e.WriteUint64(b.addr.High)
	e.WriteUint16(b.addr.Net)
	e.WriteByte(0) // route options
	e.WriteByte(byte(b.route.Hops))
	for i := 0; i < b.route.Hops; i++ {
		e.WriteUint16(b.route.Addrs[i])
	}
	if _, err := b.dev.Write(e.Encode()); err != nil {
		return fmt.Errorf("%w: create source route: %v", ErrGenericIO, err)
	}
	b.route.Announced()
	b.log.Debug().Int("hops", b.route.Hops).Msg("xbee: announced source route")
	return nil
}

// LocalAT issues a local AT command and waits (up to 5 polls) for the
// matching 0x88 response.
func (b *Bus) LocalAT(cmd ATCommand, param []byte) (byte, CommandStatus, error) {
	frameID := b.nextFrameID()
	e := xbeeframe.NewEncoder()
	e.WriteByte(FrameLocalAT)
	e.WriteByte(frameID)
	e.WriteBytes(cmd[:])
	e.WriteBytes(param)
	if _, err := b.dev.Write(e.Encode()); err != nil {
		return frameID, 0, fmt.Errorf("%w: local AT %s: %v", ErrGenericIO, cmd, err)
	}

	pending := &pendingAT{frameID: frameID}
	b.pendingLocal = pending
	defer func() { b.pendingLocal = nil }()

	for i := 0; i < localATPollAttempts; i++ {
		if _, err := b.Poll(pollReadTimeout); err != nil {
			return frameID, 0, err
		}
		if pending.done {
			return frameID, pending.status, nil
		}
	}
	return frameID, 0, fmt.Errorf("%w: local AT %s: no response", ErrGenericIO, cmd)
}

// RemoteAT issues a remote AT "apply changes" command addressed to
// addr and waits (up to 30 polls) for the matching 0x97 response. In
// direct mode it is a no-op returning success, since there is no local
// XBee to carry the command.
func (b *Bus) RemoteAT(addr Address, cmd ATCommand, param []byte) (byte, CommandStatus, error) {
	if b.direct {
		return 0, CSOK, nil
	}
	if err := b.announceRouteIfNeeded(FrameRemoteAT); err != nil {
		return 0, 0, err
	}

	frameID := b.nextFrameID()
	e := xbeeframe.NewEncoder()
	e.WriteByte(FrameRemoteAT)
	e.WriteByte(frameID)
	e.WriteUint64(addr.High)
	e.WriteUint16(addr.Net)
	e.WriteByte(0)    // broadcast radius
	e.WriteByte(0x02) // options: apply changes
	e.WriteBytes(cmd[:])
	e.WriteBytes(param)
	if _, err := b.dev.Write(e.Encode()); err != nil {
		return frameID, 0, fmt.Errorf("%w: remote AT %s: %v", ErrGenericIO, cmd, err)
	}

	pending := &pendingAT{frameID: frameID}
	b.pendingRemote = pending
	defer func() { b.pendingRemote = nil }()

	for i := 0; i < remoteATPollAttempts; i++ {
		if _, err := b.Poll(pollReadTimeout); err != nil {
			return frameID, 0, err
		}
		if pending.done {
			if pending.status != CSOK {
				return frameID, pending.status, &RemoteATError{Status: pending.status}
			}
			return frameID, pending.status, nil
		}
	}
	return frameID, 0, fmt.Errorf("%w: remote AT %s: no response", ErrGenericIO, cmd)
}

// TransmitRequest wraps data in a 0x10 Transmit Request addressed to
// addr (OTA mode) and returns the frame id used, for statistics
// correlation. No response is awaited here; XBeeBoot's reliable
// channel layers its own ACK on top.
func (b *Bus) TransmitRequest(addr Address, data []byte) (byte, error) {
	if err := b.announceRouteIfNeeded(FrameTransmitRequest); err != nil {
		return 0, err
	}
	frameID := b.nextFrameID()
	e := xbeeframe.NewEncoder()
	e.WriteByte(FrameTransmitRequest)
	e.WriteByte(frameID)
	e.WriteUint64(addr.High)
	e.WriteUint16(addr.Net)
	e.WriteByte(0) // broadcast radius
	e.WriteByte(0) // options
	e.WriteBytes(data)
	if _, err := b.dev.Write(e.Encode()); err != nil {
		return frameID, fmt.Errorf("%w: transmit request: %v", ErrGenericIO, err)
	}
	return frameID, nil
}

// TransmitDirect wraps data in an inbound-shaped 0x90 Receive Packet
// frame, the direct-mode stand-in for a real XBee delivering a network
// packet: the host pretends to be the remote XBee handing data to the
// target's UART. No frame id, no source-route accounting.
func (b *Bus) TransmitDirect(data []byte) error {
	e := xbeeframe.NewEncoder()
	e.WriteByte(FrameReceivePacket)
	e.WriteUint64(b.addr.High)
	e.WriteUint16(b.addr.Net)
	e.WriteByte(0) // receive options
	e.WriteBytes(data)
	if _, err := b.dev.Write(e.Encode()); err != nil {
		return fmt.Errorf("%w: direct transmit: %v", ErrGenericIO, err)
	}
	return nil
}

// Poll reads and dispatches at most one frame, blocking up to timeout.
// It reports whether a frame was dispatched, so callers like Drain can
// tell an empty timeout apart from having just processed something. A
// read timeout is not an error: it simply means no frame arrived this
// round, and the caller's retry loop decides what happens next. A
// genuine device error is terminal and returned as ErrGenericIO.
func (b *Bus) Poll(timeout time.Duration) (bool, error) {
	buf := make([]byte, 1)
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if err := b.dev.SetReadTimeout(remaining); err != nil {
			return false, fmt.Errorf("%w: set read timeout: %v", ErrGenericIO, err)
		}
		n, err := b.dev.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return false, nil
			}
			return false, fmt.Errorf("%w: read: %v", ErrGenericIO, err)
		}
		if n == 0 {
			continue
		}
		frame, ok := b.dec.Feed(buf[0])
		if !ok {
			continue
		}
		b.dispatch(frame)
		return true, nil
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}

func (b *Bus) dispatch(frame []byte) {
	if len(frame) == 0 {
		return
	}
	switch frame[0] {
	case FrameLocalATResponse:
		b.dispatchLocalATResponse(frame)
	case FrameRemoteATResponse:
		b.dispatchRemoteATResponse(frame)
	case FrameRouteRecordIndicator:
		b.dispatchRouteRecord(frame)
	case FrameReceivePacket:
		b.dispatchReceivePacket(frame)
	case FrameTransmitStatus:
		b.log.Debug().Msg("xbee: transmit status received")
	default:
		b.log.Debug().Uint8("type", frame[0]).Msg("xbee: unhandled frame type")
	}
}

func (b *Bus) dispatchLocalATResponse(frame []byte) {
	if len(frame) < 5 || b.pendingLocal == nil {
		return
	}
	frameID := frame[1]
	if frameID != b.pendingLocal.frameID {
		return
	}
	b.pendingLocal.done = true
	b.pendingLocal.status = CommandStatus(frame[4])
	b.pendingLocal.data = append([]byte(nil), frame[5:]...)
}

func (b *Bus) dispatchRemoteATResponse(frame []byte) {
	// 0x97: type, frame id, 8-byte source, 2-byte source16, cmd(2), status, data...
	if len(frame) < 15 || b.pendingRemote == nil {
		return
	}
	frameID := frame[1]
	if frameID != b.pendingRemote.frameID {
		return
	}
	b.pendingRemote.done = true
	b.pendingRemote.status = CommandStatus(frame[14])
	if len(frame) > 15 {
		b.pendingRemote.data = append([]byte(nil), frame[15:]...)
	}
}

func (b *Bus) dispatchRouteRecord(frame []byte) {
	// 0xA1: type, 8-byte source, 2-byte source16, options, hop count, hops[2*n]
	if len(frame) < 13 {
		return
	}
	source64 := decodeUint64(frame[1:9])
	source16 := decodeUint16(frame[9:11])
	if source64 != b.addr.High {
		return
	}
	// Learn the short address once, the first time it's seen; a target
	// never legitimately changes its own 16-bit address mid-session, so
	// re-learning on every frame would only risk clobbering a good value
	// with a stale one from an out-of-order frame.
	if b.addr.Net == Address16Unknown {
		b.addr.Net = source16
	}
	// Source-route accounting is inert in direct mode: the route stays
	// unset so no Create Source Route frame or chunk reduction ever applies.
	if b.direct {
		return
	}
	hopCount := int(frame[12])
	if len(frame) < 13+hopCount*2 {
		return
	}
	hops := make([]uint16, hopCount)
	for i := 0; i < hopCount; i++ {
		hops[i] = decodeUint16(frame[13+i*2 : 15+i*2])
	}
	b.route.Update(hops)
	b.log.Debug().Int("hops", hopCount).Msg("xbee: route record indicator")
}

func (b *Bus) dispatchReceivePacket(frame []byte) {
	// 0x90: type, 8-byte source, 2-byte source16, options, data...
	if len(frame) < 12 {
		return
	}
	source64 := decodeUint64(frame[1:9])
	source16 := decodeUint16(frame[9:11])
	// Same learn-once rule as the route record handler above.
	if source64 == b.addr.High && b.addr.Net == Address16Unknown {
		b.addr.Net = source16
	}
	if b.onReceive != nil {
		b.onReceive(frame[12:])
	}
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func decodeUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
