package j1939

import "errors"

// ErrNameCollision is returned when a remote Control Function claims the bus
// using the exact same NAME as one of our own local Control Functions. Per
// J1939-81 this can only happen with a misconfigured network (two devices
// sharing one NAME), so it is treated as a fatal configuration error rather
// than something the protocol engine can arbitrate away.
var ErrNameCollision = errors.New("j1939: remote address claim carries a NAME identical to a local control function")

// ErrMessageTooLarge is returned by send paths when a payload exceeds the
// 1785 byte limit of SAE J1939 Transport Protocol. Extended Transport
// Protocol (ETP), which would lift this limit, is out of scope.
var ErrMessageTooLarge = errors.New("j1939: payload exceeds the 1785 byte Transport Protocol limit (ETP is unsupported)")

// ErrMalformedFrame is returned when a frame claiming to be a particular
// specialization (Request, Ack, TP control message, ...) does not carry a
// payload consistent with that specialization.
var ErrMalformedFrame = errors.New("j1939: malformed frame payload")

// ErrNotExtendedFrame describes a standard 11-bit CAN identifier where a
// 29-bit extended one is needed; J1939 only uses 29-bit extended
// identifiers. No function in this module returns it: HeaderFromCANID does
// not check the identifier width.
var ErrNotExtendedFrame = errors.New("j1939: frame does not use a 29-bit extended identifier")
