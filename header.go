package j1939

// PGN is a Parameter Group Number: an 18-bit identifier naming the content of
// a J1939 frame, carried in a 32-bit integer. No attempt is made here to
// validate that a given value names a PGN that actually exists; callers
// constructing Headers are expected to know what they are doing.
type PGN uint32

// IsBroadcast reports whether pgn is broadcast-classified, i.e. its PDU
// format byte (bits 8-15) is greater than 240. Broadcast PGNs never carry a
// destination address; peer-to-peer PGNs always do.
func (pgn PGN) IsBroadcast() bool {
	return (uint32(pgn)>>8)&0xFF > 240
}

// Reserved PGNs used by the transport, address-claim and request/ack
// machinery. See SAE J1939-21 and J1939-81.
const (
	PGNTransportControl    PGN = 0xEC00 // TP.CM
	PGNTransportData       PGN = 0xEB00 // TP.DT
	PGNExtTransportControl PGN = 0xC800 // ETP.CM (unsupported, routing only)
	PGNExtTransportData    PGN = 0xC700 // ETP.DT (unsupported, routing only)
	PGNAddressClaim        PGN = 0xEE00
	PGNRequest             PGN = 0xEA00
	PGNAck                 PGN = 0xE800
	PGNAddressCommand      PGN = 0xFED8
)

// AddressGlobal (0xFF) addresses every node on the bus.
const AddressGlobal uint8 = 0xFF

// AddressNull (0xFE) is used as a source address by a Control Function that
// has not yet claimed an address of its own.
const AddressNull uint8 = 0xFE

// Header is a decoded J1939 29-bit CAN identifier. DestinationAddress is
// non-nil if and only if PGN is not broadcast-classified.
type Header struct {
	PGN                PGN
	Priority           uint8
	SourceAddress      uint8
	DestinationAddress *uint8
}

// NewHeader builds a Header. destinationAddress should be nil for broadcast
// PGNs and non-nil otherwise; NewHeader does not enforce this itself, it is
// a construction convenience only.
func NewHeader(pgn PGN, priority uint8, sourceAddress uint8, destinationAddress *uint8) Header {
	return Header{
		PGN:                pgn,
		Priority:           priority,
		SourceAddress:      sourceAddress,
		DestinationAddress: destinationAddress,
	}
}

// NewHeaderTo is a convenience constructor for peer-to-peer headers.
func NewHeaderTo(pgn PGN, priority uint8, sourceAddress uint8, destinationAddress uint8) Header {
	da := destinationAddress
	return NewHeader(pgn, priority, sourceAddress, &da)
}

// NewHeaderBroadcast is a convenience constructor for broadcast headers.
func NewHeaderBroadcast(pgn PGN, priority uint8, sourceAddress uint8) Header {
	return NewHeader(pgn, priority, sourceAddress, nil)
}

// CANID encodes the header into a 29-bit CAN identifier (returned in the low
// 29 bits of a uint32). HeaderFromCANID(h.CANID()) reproduces h.
func (h Header) CANID() uint32 {
	id := uint32(h.SourceAddress)
	id |= uint32(h.PGN) << 8
	if h.DestinationAddress != nil {
		id |= uint32(*h.DestinationAddress) << 8
	}
	id |= uint32(h.Priority&0x7) << 26
	return id
}

// HeaderFromCANID decodes a 29-bit CAN identifier into a Header. If the PDU
// format byte (bits 16-23) is 240 or above the PGN is broadcast-classified
// and carries no destination address; otherwise the low byte of the PGN is
// overlaid by the destination address found in bits 8-15.
func HeaderFromCANID(id uint32) Header {
	pduFormat := uint8(id >> 16)
	var da *uint8
	var pgn PGN
	if pduFormat >= 240 {
		pgn = PGN(id >> 8 & 0x3FFFF)
	} else {
		pgn = PGN(id >> 8 & 0x3FF00)
		d := uint8(id >> 8)
		da = &d
	}
	return Header{
		PGN:                pgn,
		Priority:           uint8(id>>26) & 0x7,
		SourceAddress:      uint8(id),
		DestinationAddress: da,
	}
}

// Frame is a decoded J1939 application message: a Header plus a payload of
// 0 to 1785 bytes. Payloads above 8 bytes must be segmented (via Transport
// Protocol or Fast-Packet) before they can be put on the wire; Frame itself
// carries the full, reassembled payload in both directions.
type Frame struct {
	Header Header
	Data   []byte
}

// NewFrame creates a Frame, copying data so the caller's slice can be reused
// or mutated afterwards without affecting the Frame.
func NewFrame(header Header, data []byte) Frame {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Frame{Header: header, Data: cp}
}

// WithSourceAddress returns a copy of f with the source address rewritten.
// Used by ControlFunction.Send to stamp outgoing frames with the CF's
// claimed address.
func (f Frame) WithSourceAddress(address uint8) Frame {
	f.Header.SourceAddress = address
	return f
}
