package xbeeboot

import (
	"fmt"
	"time"

	"github.com/davidsainty/xbeeboot/xbee"
)

// Inner-tuple packet kinds, carried inside every XBee payload once a
// session is established: [packetType, sequence, (appType), data...].
const (
	packetACK     = 0
	packetRequest = 1
)

// Application types distinguish the two halves of the duplex STK500v1
// conversation riding the same reliable channel.
const (
	appFirmwareDeliver = 23 // host -> target: bytes to feed the bootloader
	appFrameReply      = 24 // target -> host: the bootloader's reply bytes
)

const (
	// maxChunkSize is the stop-and-wait payload ceiling before any
	// source-route reduction: the 84-byte ZigBee payload less 18 bytes of
	// network-layer and 9 bytes of APS encryption overhead, less 3 bytes
	// of XBeeBoot header. It applies in direct and OTA mode alike.
	maxChunkSize = 54

	// channelMaxRetries bounds both the outbound send budget and the
	// inbound wait budget, each retry backed by one poll of
	// chunkPollTimeout.
	channelMaxRetries = 16
	chunkPollTimeout  = time.Second
)

func buildRequest(seq byte, appType byte, data []byte) []byte {
	out := make([]byte, 0, 3+len(data))
	out = append(out, packetRequest, seq, appType)
	return append(out, data...)
}

func buildACK(seq byte) []byte {
	return []byte{packetACK, seq}
}

// chunkBudget is the largest payload SendBytes may hand to one
// stop-and-wait round: maxChunkSize, shrunk by 2*hops+2 whenever the
// cached source route has at least one hop, whether or not a Create
// Source Route frame is emitted ahead of this chunk.
func (s *Session) chunkBudget() int {
	budget := maxChunkSize
	if r := s.route.ChunkReduction(budget); r > 0 {
		budget -= r
	}
	return budget
}

// SendBytes reliably delivers data to the target, split into
// stop-and-wait chunks no larger than chunkBudget(). It returns as soon
// as every chunk has been acknowledged, or the first error that makes
// the session unusable.
func (s *Session) SendBytes(data []byte) error {
	if s.unusable {
		return fmt.Errorf("%w: session is no longer usable", ErrGenericIO)
	}
	for len(data) > 0 {
		budget := s.chunkBudget()
		n := len(data)
		if n > budget {
			n = budget
		}
		if err := s.sendChunk(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (s *Session) sendChunk(chunk []byte) error {
	seq := xbee.NextSequence(s.outSeq)
	s.outSeq = seq
	body := buildRequest(seq, appFirmwareDeliver, chunk)

	s.outAwaiting = true
	s.outAckSeq = seq
	s.outAcked = false
	defer func() { s.outAwaiting = false }()

	s.stats.begin(StatGroupTransmit, seq)
	for attempt := 0; attempt < channelMaxRetries; attempt++ {
		if err := s.transmit(body); err != nil {
			return s.fail(err)
		}
		if attempt > 0 && s.inSeq != 0 {
			// Our own prior ACK may have been lost; piggyback a
			// resend so the peer's retransmissions don't stall us.
			_ = s.transmit(buildACK(s.lastAckSeqSent))
		}
		if err := s.pollOnce(); err != nil {
			return s.fail(err)
		}
		if s.outAcked {
			return nil
		}
	}
	return s.fail(fmt.Errorf("%w: no ack for sequence %d after %d attempts", ErrGenericIO, seq, channelMaxRetries))
}

// RecvBytes blocks until dst is fully populated by reliable-channel
// chunks from the target, draining the input ring first. It returns
// the number of bytes filled (len(dst) on success) and the first error
// that makes the session unusable.
func (s *Session) RecvBytes(dst []byte) (int, error) {
	if s.unusable {
		return 0, fmt.Errorf("%w: session is no longer usable", ErrGenericIO)
	}
	filled := s.ring.pop(dst)
	if filled == len(dst) {
		return filled, nil
	}

	s.recvBuf = dst
	s.recvFilled = filled
	defer func() { s.recvBuf = nil }()

	for s.recvFilled < len(dst) {
		before := s.recvFilled
		for attempt := 0; attempt < channelMaxRetries; attempt++ {
			if err := s.pollOnce(); err != nil {
				return s.recvFilled, s.fail(err)
			}
			if s.recvFilled >= len(dst) {
				return s.recvFilled, nil
			}
		}
		if s.recvFilled == before {
			return s.recvFilled, s.fail(fmt.Errorf("%w: no data from target after %d attempts", ErrGenericIO, channelMaxRetries))
		}
	}
	return s.recvFilled, nil
}

func (s *Session) pollOnce() error {
	_, err := s.bus.Poll(chunkPollTimeout)
	return err
}

// onReceive is wired to xbee.Bus.SetReceiveHandler: it parses the inner
// tuple out of every inbound 0x90 payload and feeds the send/receive
// state machines.
func (s *Session) onReceive(data []byte) {
	if len(data) < 2 {
		return
	}
	switch data[0] {
	case packetACK:
		seq := data[1]
		if s.outAwaiting && seq == s.outAckSeq {
			s.outAcked = true
			s.stats.complete(StatGroupTransmit, seq)
		}
	case packetRequest:
		if len(data) < 3 || data[2] != appFrameReply {
			return
		}
		s.handleInboundChunk(data[1], data[3:])
	}
}

// handleInboundChunk processes one inbound REQUEST(FRAME_REPLY) carrying
// sequence seq. The receive group's latency sample for seq is the time
// between our ACK of the prior chunk (begun at the end of this function
// the previous time it ran, keyed by the sequence it would unblock) and
// this chunk's arrival: that is the only "send" event on our side of
// this direction, since the target initiates every reply unprompted.
// The very first chunk of a session has no such predecessor, so its
// sample is silently skipped (complete is a no-op without a matching
// begin).
func (s *Session) handleInboundChunk(seq byte, payload []byte) {
	expected := xbee.NextSequence(s.inSeq)
	if seq != expected {
		// Either a duplicate of the last chunk (the peer never saw our
		// ACK) or a genuinely out-of-order frame; either way, the only
		// useful response is to re-assert our last ACK once we've
		// started receiving at all.
		if s.inSeq != 0 {
			_ = s.transmit(buildACK(s.lastAckSeqSent))
		}
		return
	}
	s.stats.complete(StatGroupReceive, seq)
	s.inSeq = seq
	s.deliver(payload)
	s.lastAckSeqSent = seq
	if err := s.transmit(buildACK(seq)); err != nil {
		s.unusable = true
		return
	}
	s.stats.begin(StatGroupReceive, xbee.NextSequence(seq))
}

// deliver routes newly-received payload bytes to an in-progress
// RecvBytes call if one is waiting, spilling anything left over into
// the input ring.
func (s *Session) deliver(payload []byte) {
	if s.recvBuf != nil {
		room := len(s.recvBuf) - s.recvFilled
		n := len(payload)
		if n > room {
			n = room
		}
		copy(s.recvBuf[s.recvFilled:], payload[:n])
		s.recvFilled += n
		payload = payload[n:]
	}
	if len(payload) == 0 {
		return
	}
	if !s.ring.push(payload) {
		s.log.Error().Err(ErrBufferOverrun).Msg("xbeeboot: input ring overrun, session unusable")
		s.unusable = true
	}
}
