package j1939

import "fmt"

// Request is a Frame specialized on PGNRequest, asking its destination (or,
// for AddressGlobal, every node) to transmit the named PGN.
type Request struct {
	Header       Header
	RequestedPGN PGN
}

// NewRequest builds a Request. destinationAddress may be AddressGlobal to
// ask every Control Function on the bus, or a specific node's address.
func NewRequest(requestedPGN PGN, sourceAddress uint8, destinationAddress uint8) Request {
	return Request{
		Header:       NewHeaderTo(PGNRequest, 3, sourceAddress, destinationAddress),
		RequestedPGN: requestedPGN,
	}
}

// AsFrame encodes the Request as a Frame, a 3-byte little-endian PGN payload.
func (r Request) AsFrame() Frame {
	raw := uint32(r.RequestedPGN)
	return NewFrame(r.Header, []byte{
		byte(raw),
		byte(raw >> 8),
		byte(raw >> 16),
	})
}

// RequestFromFrame parses a Frame carrying PGNRequest into a Request.
func RequestFromFrame(frame Frame) (Request, error) {
	if frame.Header.PGN != PGNRequest {
		return Request{}, fmt.Errorf("%w: frame PGN 0x%X is not PGNRequest", ErrMalformedFrame, uint32(frame.Header.PGN))
	}
	if len(frame.Data) < 3 {
		return Request{}, fmt.Errorf("%w: request payload shorter than 3 bytes", ErrMalformedFrame)
	}
	raw := uint32(frame.Data[0]) | uint32(frame.Data[1])<<8 | uint32(frame.Data[2])<<16
	return Request{
		Header:       frame.Header,
		RequestedPGN: PGN(raw),
	}, nil
}

// AckType classifies the outcome reported by an Ack frame.
type AckType uint8

const (
	AckPositive      AckType = 0
	AckNegative      AckType = 1
	AckAccessDenied  AckType = 2
	AckCannotRespond AckType = 3
)

// AckTypeOther wraps an ack-type byte value that does not match one of the
// well-known constants above.
type AckTypeOther struct {
	Raw uint8
}

// Ack is a Frame specialized on PGNAck, acknowledging (positively or
// negatively) a prior Request.
type Ack struct {
	Header             Header
	AckType            AckType
	AckTypeOther       *AckTypeOther // non-nil iff AckType does not name one of the 4 well-known values
	GroupFunctionValue *uint8
	RequesterAddress   uint8
	RequestedPGN       PGN
}

// NewAck builds an Ack frame addressed to requesterAddress.
func NewAck(ackType AckType, groupFunctionValue *uint8, requestedPGN PGN, sourceAddress uint8, requesterAddress uint8) Ack {
	return Ack{
		Header:             NewHeaderTo(PGNAck, 3, sourceAddress, requesterAddress),
		AckType:            ackType,
		GroupFunctionValue: groupFunctionValue,
		RequesterAddress:   requesterAddress,
		RequestedPGN:       requestedPGN,
	}
}

// AsFrame encodes the Ack as an 8-byte Frame payload.
func (a Ack) AsFrame() Frame {
	data := [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if a.AckTypeOther != nil {
		data[0] = a.AckTypeOther.Raw
	} else {
		data[0] = byte(a.AckType)
	}
	if a.GroupFunctionValue != nil {
		data[1] = *a.GroupFunctionValue
	}
	data[4] = a.RequesterAddress
	raw := uint32(a.RequestedPGN)
	data[5] = byte(raw)
	data[6] = byte(raw >> 8)
	data[7] = byte(raw >> 16)
	return NewFrame(a.Header, data[:])
}

// AckFromFrame parses a Frame carrying PGNAck into an Ack.
func AckFromFrame(frame Frame) (Ack, error) {
	if frame.Header.PGN != PGNAck {
		return Ack{}, fmt.Errorf("%w: frame PGN 0x%X is not PGNAck", ErrMalformedFrame, uint32(frame.Header.PGN))
	}
	if len(frame.Data) < 8 {
		return Ack{}, fmt.Errorf("%w: ack payload shorter than 8 bytes", ErrMalformedFrame)
	}
	ack := Ack{
		Header:           frame.Header,
		RequesterAddress: frame.Data[4],
		RequestedPGN:     PGN(uint32(frame.Data[5]) | uint32(frame.Data[6])<<8 | uint32(frame.Data[7])<<16),
	}
	switch frame.Data[0] {
	case 0:
		ack.AckType = AckPositive
	case 1:
		ack.AckType = AckNegative
	case 2:
		ack.AckType = AckAccessDenied
	case 3:
		ack.AckType = AckCannotRespond
	default:
		ack.AckTypeOther = &AckTypeOther{Raw: frame.Data[0]}
	}
	if frame.Data[1] != 0xFF {
		v := frame.Data[1]
		ack.GroupFunctionValue = &v
	}
	return ack, nil
}
