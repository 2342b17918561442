package j1939

import (
	"errors"
)

// ErrNoFrame is returned by a Driver's Receive method when no frame is
// currently available. It is not an error condition for the stack: the
// receive-drain loop simply stops for this tick.
var ErrNoFrame = errors.New("j1939: no frame available")

// Driver is the capability the engine needs from a CAN controller: it must
// be able to transmit an extended-ID frame of up to 8 payload bytes, and to
// poll for a received one without blocking. Frames with an 11-bit (standard)
// identifier are not representable here -- J1939 only uses 29-bit extended
// identifiers, and a concrete Driver is expected to silently discard
// standard frames it sees on the wire.
type Driver interface {
	// Transmit sends a single CAN frame. id is a 29-bit extended
	// identifier (in the low bits of the uint32); data is 0-8 bytes.
	// A returned error ends the current Stack.Process tick -- TP/Fast-Packet
	// state machines assume sends succeed and do not retry internally.
	// Errors on the control frames the Stack sends while handling a
	// received frame (CTS, EndOfMsg, Abort) are ignored.
	Transmit(id uint32, data []byte) error

	// Receive polls for the next available extended CAN frame. It must
	// not block; if nothing is available it returns ErrNoFrame.
	Receive() (id uint32, data []byte, err error)
}

// Clock provides a monotonically non-decreasing millisecond timestamp
// shared by the Stack and every registered Control Function. Wall-clock
// drift of up to +/-10ms against a true monotonic source is acceptable;
// none of the address-claim or transport timeouts are precision-critical.
type Clock interface {
	NowMillis() uint64
}
