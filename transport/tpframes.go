// Package transport implements SAE J1939 Transport Protocol (TP.CM/TP.DT,
// BAM and RTS/CTS) and NMEA-2000 Fast-Packet segmentation/reassembly, behind
// a single Manager entry point.
package transport

import (
	"fmt"

	"github.com/tinshed-iot/go-j1939"
)

const addressGlobal = j1939.AddressGlobal

// control bytes of a TP.CM frame, per SAE J1939-21.
const (
	ctrlRTS       = 16
	ctrlCTS       = 17
	ctrlEndOfMsg  = 19
	ctrlBAM       = 32
	ctrlConnAbort = 255
)

// AbortReason enumerates the standard TP.Connection_Abort reason codes.
type AbortReason uint8

const (
	AbortReasonReserved                AbortReason = 0
	AbortReasonAlreadyConnected        AbortReason = 1
	AbortReasonNoResources             AbortReason = 2
	AbortReasonTimeout                 AbortReason = 3
	AbortReasonCTSWhileTransfer        AbortReason = 4
	AbortReasonRetransmitLimit         AbortReason = 5
	AbortReasonUnexpectedTransfer      AbortReason = 6
	AbortReasonBadSequenceNumber       AbortReason = 7
	AbortReasonDuplicateSequenceNumber AbortReason = 8
	AbortReasonMessageSizeTooHigh      AbortReason = 9
	AbortReasonOther                   AbortReason = 250
)

func abortReasonFromByte(b byte) AbortReason {
	switch b {
	case 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 250:
		return AbortReason(b)
	default:
		return AbortReasonOther
	}
}

// tpcmKind identifies which of the five TP.CM variants a decoded message is.
type tpcmKind int

const (
	tpcmRTS tpcmKind = iota
	tpcmCTS
	tpcmEndOfMsg
	tpcmAbort
	tpcmBAM
)

// tpcm is a decoded TP.CM control message. Only the fields relevant to its
// Kind are meaningful, mirroring the five-variant union in SAE J1939-21.
type tpcm struct {
	Kind             tpcmKind
	MessageSize      uint16 // RTS, EndOfMsg, BAM
	PacketCount      uint8  // RTS, EndOfMsg, BAM
	MaxPacketsPerCTS uint8  // RTS
	ExpectedPackets  uint8  // CTS
	NextPacketNumber uint8  // CTS
	AbortReason      AbortReason
	PGN              j1939.PGN
	RemoteAddress    uint8 // the peer this control message concerns (0xFF on an outgoing BAM)
	LocalAddress     uint8 // us (0xFF on a decoded incoming BAM, whose DA is global)
}

// tpcmToFrame encodes a tpcm into its wire Frame. Priority on TP.CM frames
// is always 7.
func tpcmToFrame(c tpcm) j1939.Frame {
	data := [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	pgnRaw := uint32(c.PGN)
	switch c.Kind {
	case tpcmRTS:
		data[0] = ctrlRTS
		data[1] = byte(c.MessageSize)
		data[2] = byte(c.MessageSize >> 8)
		data[3] = c.PacketCount
		data[4] = c.MaxPacketsPerCTS
		data[5] = byte(pgnRaw)
		data[6] = byte(pgnRaw >> 8)
		data[7] = byte(pgnRaw >> 16)
	case tpcmCTS:
		data[0] = ctrlCTS
		data[1] = c.ExpectedPackets
		data[2] = c.NextPacketNumber
		data[5] = byte(pgnRaw)
		data[6] = byte(pgnRaw >> 8)
		data[7] = byte(pgnRaw >> 16)
	case tpcmEndOfMsg:
		data[0] = ctrlEndOfMsg
		data[1] = byte(c.MessageSize)
		data[2] = byte(c.MessageSize >> 8)
		data[3] = c.PacketCount
		data[5] = byte(pgnRaw)
		data[6] = byte(pgnRaw >> 8)
		data[7] = byte(pgnRaw >> 16)
	case tpcmAbort:
		data[0] = ctrlConnAbort
		data[1] = byte(c.AbortReason)
		data[5] = byte(pgnRaw)
		data[6] = byte(pgnRaw >> 8)
		data[7] = byte(pgnRaw >> 16)
	case tpcmBAM:
		data[0] = ctrlBAM
		data[1] = byte(c.MessageSize)
		data[2] = byte(c.MessageSize >> 8)
		data[3] = c.PacketCount
		data[5] = byte(pgnRaw)
		data[6] = byte(pgnRaw >> 8)
		data[7] = byte(pgnRaw >> 16)
	}
	return j1939.NewFrame(j1939.NewHeaderTo(j1939.PGNTransportControl, 7, c.LocalAddress, c.RemoteAddress), data[:])
}

// tpcmFromFrame decodes a TP.CM Frame. An unrecognized control byte is
// reported as an error rather than crashing -- the reference implementation
// panics here, which spec softens to "drop the frame".
func tpcmFromFrame(header j1939.Header, data []byte) (tpcm, error) {
	if len(data) < 8 {
		return tpcm{}, fmt.Errorf("%w: TP.CM payload shorter than 8 bytes", j1939.ErrMalformedFrame)
	}
	if header.DestinationAddress == nil {
		return tpcm{}, fmt.Errorf("%w: TP.CM frame without a destination address", j1939.ErrMalformedFrame)
	}
	da := *header.DestinationAddress
	pgn := j1939.PGN(uint32(data[5]) | uint32(data[6])<<8 | uint32(data[7])<<16)

	if da == addressGlobal && data[0] == ctrlBAM {
		return tpcm{
			Kind:          tpcmBAM,
			MessageSize:   uint16(data[1]) | uint16(data[2])<<8,
			PacketCount:   data[3],
			PGN:           pgn,
			RemoteAddress: header.SourceAddress,
			LocalAddress:  da,
		}, nil
	}
	switch data[0] {
	case ctrlRTS:
		return tpcm{
			Kind:             tpcmRTS,
			MessageSize:      uint16(data[1]) | uint16(data[2])<<8,
			PacketCount:      data[3],
			MaxPacketsPerCTS: data[4],
			PGN:              pgn,
			RemoteAddress:    header.SourceAddress,
			LocalAddress:     da,
		}, nil
	case ctrlCTS:
		return tpcm{
			Kind:             tpcmCTS,
			ExpectedPackets:  data[1],
			NextPacketNumber: data[2],
			PGN:              pgn,
			RemoteAddress:    header.SourceAddress,
			LocalAddress:     da,
		}, nil
	case ctrlEndOfMsg:
		return tpcm{
			Kind:          tpcmEndOfMsg,
			MessageSize:   uint16(data[1]) | uint16(data[2])<<8,
			PacketCount:   data[3],
			PGN:           pgn,
			RemoteAddress: header.SourceAddress,
			LocalAddress:  da,
		}, nil
	case ctrlConnAbort:
		return tpcm{
			Kind:          tpcmAbort,
			AbortReason:   abortReasonFromByte(data[1]),
			PGN:           pgn,
			RemoteAddress: header.SourceAddress,
			LocalAddress:  da,
		}, nil
	default:
		return tpcm{}, fmt.Errorf("%w: TP.CM control byte 0x%02X is not recognized", j1939.ErrMalformedFrame, data[0])
	}
}

// tpdt is a decoded TP.DT data packet: a 1-based sequence number plus up to
// 7 bytes of payload (right-padded with 0xFF on the wire).
type tpdt struct {
	RemoteAddress  uint8
	LocalAddress   uint8
	SequenceNumber uint8
	Data           [7]byte
}

func tpdtToFrame(d tpdt) j1939.Frame {
	data := [8]byte{}
	data[0] = d.SequenceNumber
	copy(data[1:], d.Data[:])
	return j1939.NewFrame(j1939.NewHeaderTo(j1939.PGNTransportData, 7, d.LocalAddress, d.RemoteAddress), data[:])
}

func tpdtFromFrame(header j1939.Header, data []byte) (tpdt, error) {
	if len(data) < 8 {
		return tpdt{}, fmt.Errorf("%w: TP.DT payload shorter than 8 bytes", j1939.ErrMalformedFrame)
	}
	if header.DestinationAddress == nil {
		return tpdt{}, fmt.Errorf("%w: TP.DT frame without a destination address", j1939.ErrMalformedFrame)
	}
	d := tpdt{
		RemoteAddress:  header.SourceAddress,
		LocalAddress:   *header.DestinationAddress,
		SequenceNumber: data[0],
	}
	copy(d.Data[:], data[1:8])
	return d, nil
}
