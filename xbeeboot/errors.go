package xbeeboot

import (
	"errors"

	"github.com/davidsainty/xbeeboot/xbee"
)

var (
	// ErrBadAddress covers a malformed port spec address component.
	ErrBadAddress = errors.New("xbeeboot: malformed port address")
	// ErrBadConfig covers any other malformed configuration parameter,
	// such as an out-of-range reset pin.
	ErrBadConfig = errors.New("xbeeboot: malformed configuration parameter")
	// ErrBufferOverrun is logged when a push into the inbound ring buffer
	// would overwrite unread data; the session is marked unusable, and
	// later calls on it fail with ErrGenericIO.
	ErrBufferOverrun = errors.New("xbeeboot: input ring buffer overrun")
)

// ErrGenericIO is xbee.ErrGenericIO re-exported so callers of this
// package need not import xbee just to check the sentinel.
var ErrGenericIO = xbee.ErrGenericIO
