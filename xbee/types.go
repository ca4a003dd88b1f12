// Package xbee implements the local/remote AT command drivers and the
// source-route cache that sit on top of the XBee API mode 2 frame
// codec (package xbeeframe): local AT, remote AT, and source-route
// caching, dispatched through a single-threaded demultiplexer that
// XBeeBoot's session controller drives directly rather than via a
// background goroutine.
package xbee

import (
	"fmt"
	"io"
	"time"
)

// API frame type identifiers, all under API mode 2 (escaped).
const (
	FrameLocalAT              = 0x08
	FrameTransmitRequest      = 0x10
	FrameRemoteAT             = 0x17
	FrameCreateSourceRoute    = 0x21
	FrameLocalATResponse      = 0x88
	FrameTransmitStatus       = 0x8b
	FrameReceivePacket        = 0x90
	FrameRemoteATResponse     = 0x97
	FrameRouteRecordIndicator = 0xa1
)

// ATCommand is the two ASCII-character mnemonic of an XBee AT command.
type ATCommand [2]byte

func (c ATCommand) String() string { return string(c[:]) }

// CommandStatus is the one-byte status shared by local and remote AT
// responses (0x88 / 0x97).
type CommandStatus byte

const (
	CSOK               CommandStatus = 0
	CSError            CommandStatus = 1
	CSInvalidCommand   CommandStatus = 2
	CSInvalidParameter CommandStatus = 3
	CSTxFailure        CommandStatus = 4
)

func (cs CommandStatus) String() string {
	switch cs {
	case CSOK:
		return "OK"
	case CSError:
		return "Error"
	case CSInvalidCommand:
		return "InvalidCommand"
	case CSInvalidParameter:
		return "InvalidParameter"
	case CSTxFailure:
		return "TxFailure"
	}
	return fmt.Sprintf("CommandStatus(%d)", byte(cs))
}

// Address is a session's 64-bit IEEE address plus its learned 16-bit
// network address. Net starts at Address16Unknown and is set from the
// first Receive Packet or Route Record Indicator frame observed from the
// target; once known it is not overwritten.
type Address struct {
	High uint64
	Net  uint16
}

const (
	AddressCoordinator uint64 = 0x0000000000000000
	Address16Unknown   uint16 = 0xfffe
)

// AT command mnemonics this transport issues. Destination addressing
// for remote AT and transmit requests is carried inline in the API
// frame, so no DH/DL commands are needed.
var (
	ATAPIEnable        = ATCommand{'A', 'P'}
	ATAggregateRouting = ATCommand{'A', 'R'}
	ATDIO6Config       = ATCommand{'D', '6'}
	ATSoftwareReset    = ATCommand{'F', 'R'}
)

// ATDIOPin returns the AT command mnemonic for configuring DIOn, n in
// [1,7].
func ATDIOPin(pin byte) ATCommand {
	return ATCommand{'D', '0' + pin}
}

// Device is the byte-stream collaborator reaching the local XBee:
// open/close/send/recv/drain/set_dtr_rts. Concrete implementations
// live in package serialport; fakes live in the test files here and in
// package xbeeboot.
type Device interface {
	io.Writer
	io.Reader
	Close() error
	Drain() error
	SetDTR(on bool) error
	SetRTS(on bool) error
	SetReadTimeout(d time.Duration) error
}

// NextSequence advances a sequence counter per the shared invariant:
// values live in [1,255], 0 is illegal and skipped, 255 wraps to 1. The
// zero value of a counter is a valid "never allocated" starting point.
func NextSequence(cur byte) byte {
	cur++
	if cur == 0 {
		cur = 1
	}
	return cur
}
