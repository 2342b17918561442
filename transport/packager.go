package transport

import (
	"github.com/tinshed-iot/go-j1939"
)

const maxTPPayload = 1785

// bamSession tracks an in-progress ingress broadcast (BAM) reassembly, keyed
// by the sender's source address.
type bamSession struct {
	pgn     j1939.PGN
	size    uint16
	data    []byte
	lastSeq uint8
}

// ptpInSession tracks an in-progress ingress peer-to-peer (RTS/CTS)
// reassembly, keyed by (remote, local) address pair.
type ptpInSession struct {
	pgn              j1939.PGN
	size             uint16
	maxPacketsPerCTS uint8
	data             []byte
	lastSeq          uint8
	sinceLastCTS     uint8
}

type ptpInKey struct {
	remote uint8
	local  uint8
}

// ptpOutSession tracks an in-progress egress peer-to-peer (RTS/CTS) send,
// keyed by (local, remote) address pair.
type ptpOutSession struct {
	pgn             j1939.PGN
	data            []byte
	lastPacketIndex int // 0-based: number of packets already sent
	sendTillIndex   int
}

type ptpOutKey struct {
	local  uint8
	remote uint8
}

// bamOutSession is the single in-flight broadcast send slot.
type bamOutSession struct {
	header  j1939.Header
	data    []byte
	nextIdx int
}

// Delivery wraps a reassembled Frame. It carries no control frames:
// HandleFrame returns the CTS/EndOfMsg/Abort frames to transmit separately.
type Delivery struct {
	Frame j1939.Frame
}

// Packager implements SAE J1939-21 Transport Protocol: BAM and RTS/CTS
// segmentation and reassembly. It is not safe for concurrent use.
type Packager struct {
	bamIn  map[uint8]*bamSession
	ptpIn  map[ptpInKey]*ptpInSession
	ptpOut map[ptpOutKey]*ptpOutSession
	bamOut *bamOutSession
}

// NewPackager creates an empty Packager.
func NewPackager() *Packager {
	return &Packager{
		bamIn:  make(map[uint8]*bamSession),
		ptpIn:  make(map[ptpInKey]*ptpInSession),
		ptpOut: make(map[ptpOutKey]*ptpOutSession),
	}
}

// HandleFrame processes one incoming TP.CM/TP.DT frame. It returns a
// reassembled Frame (ok=true) if this frame completed one, plus any control
// frames (CTS/EndOfMsg/Abort) that must be transmitted synchronously as a
// result.
func (p *Packager) HandleFrame(header j1939.Header, data []byte) (delivered j1939.Frame, ok bool, toSend []j1939.Frame) {
	if header.PGN == j1939.PGNTransportData {
		return p.handleTPDT(header, data)
	}
	c, err := tpcmFromFrame(header, data)
	if err != nil {
		return j1939.Frame{}, false, nil
	}
	switch c.Kind {
	case tpcmBAM:
		p.bamIn[c.RemoteAddress] = &bamSession{
			pgn:  c.PGN,
			size: c.MessageSize,
			data: make([]byte, 0, c.MessageSize),
		}
	case tpcmRTS:
		key := ptpInKey{remote: c.RemoteAddress, local: c.LocalAddress}
		if _, exists := p.ptpIn[key]; exists {
			abort := tpcm{
				Kind:          tpcmAbort,
				AbortReason:   AbortReasonAlreadyConnected,
				PGN:           c.PGN,
				RemoteAddress: c.RemoteAddress,
				LocalAddress:  c.LocalAddress,
			}
			return j1939.Frame{}, false, []j1939.Frame{tpcmToFrame(abort)}
		}
		p.ptpIn[key] = &ptpInSession{
			pgn:              c.PGN,
			size:             c.MessageSize,
			maxPacketsPerCTS: c.MaxPacketsPerCTS,
			data:             make([]byte, 0, c.MessageSize),
		}
		cts := tpcm{
			Kind:             tpcmCTS,
			ExpectedPackets:  c.MaxPacketsPerCTS,
			NextPacketNumber: 1,
			PGN:              c.PGN,
			RemoteAddress:    c.RemoteAddress,
			LocalAddress:     c.LocalAddress,
		}
		return j1939.Frame{}, false, []j1939.Frame{tpcmToFrame(cts)}
	case tpcmCTS:
		key := ptpOutKey{local: c.LocalAddress, remote: c.RemoteAddress}
		if sess, exists := p.ptpOut[key]; exists {
			sess.lastPacketIndex = int(c.NextPacketNumber) - 1
			sess.sendTillIndex = sess.lastPacketIndex + int(c.ExpectedPackets)
		}
	case tpcmEndOfMsg:
		delete(p.ptpOut, ptpOutKey{local: c.LocalAddress, remote: c.RemoteAddress})
	case tpcmAbort:
		delete(p.ptpOut, ptpOutKey{local: c.LocalAddress, remote: c.RemoteAddress})
	}
	return j1939.Frame{}, false, nil
}

func (p *Packager) handleTPDT(header j1939.Header, data []byte) (j1939.Frame, bool, []j1939.Frame) {
	d, err := tpdtFromFrame(header, data)
	if err != nil {
		return j1939.Frame{}, false, nil
	}
	if d.LocalAddress == j1939.AddressGlobal {
		return p.handleBAMData(d)
	}
	return p.handlePTPData(d)
}

func (p *Packager) handleBAMData(d tpdt) (j1939.Frame, bool, []j1939.Frame) {
	sess, ok := p.bamIn[d.RemoteAddress]
	if !ok {
		return j1939.Frame{}, false, nil
	}
	if d.SequenceNumber != sess.lastSeq+1 {
		delete(p.bamIn, d.RemoteAddress)
		return j1939.Frame{}, false, nil
	}
	sess.lastSeq = d.SequenceNumber
	remaining := int(sess.size) - len(sess.data)
	n := 7
	if remaining < n {
		n = remaining
	}
	sess.data = append(sess.data, d.Data[:n]...)
	if len(sess.data) >= int(sess.size) {
		delete(p.bamIn, d.RemoteAddress)
		frame := j1939.NewFrame(j1939.NewHeaderBroadcast(sess.pgn, 0, d.RemoteAddress), sess.data)
		return frame, true, nil
	}
	return j1939.Frame{}, false, nil
}

func (p *Packager) handlePTPData(d tpdt) (j1939.Frame, bool, []j1939.Frame) {
	key := ptpInKey{remote: d.RemoteAddress, local: d.LocalAddress}
	sess, ok := p.ptpIn[key]
	if !ok {
		return j1939.Frame{}, false, nil
	}
	if d.SequenceNumber != sess.lastSeq+1 {
		delete(p.ptpIn, key)
		abort := tpcm{
			Kind:          tpcmAbort,
			AbortReason:   AbortReasonUnexpectedTransfer,
			PGN:           sess.pgn,
			RemoteAddress: d.RemoteAddress,
			LocalAddress:  d.LocalAddress,
		}
		return j1939.Frame{}, false, []j1939.Frame{tpcmToFrame(abort)}
	}
	sess.lastSeq = d.SequenceNumber
	sess.sinceLastCTS++
	remaining := int(sess.size) - len(sess.data)
	n := 7
	if remaining < n {
		n = remaining
	}
	sess.data = append(sess.data, d.Data[:n]...)

	if len(sess.data) >= int(sess.size) {
		delete(p.ptpIn, key)
		frame := j1939.NewFrame(j1939.NewHeaderTo(sess.pgn, 0, d.RemoteAddress, d.LocalAddress), sess.data)
		endOfMsg := tpcm{
			Kind:          tpcmEndOfMsg,
			MessageSize:   sess.size,
			PacketCount:   packetCount(sess.size),
			PGN:           sess.pgn,
			RemoteAddress: d.RemoteAddress,
			LocalAddress:  d.LocalAddress,
		}
		return frame, true, []j1939.Frame{tpcmToFrame(endOfMsg)}
	}
	if sess.sinceLastCTS >= sess.maxPacketsPerCTS {
		sess.sinceLastCTS = 0
		cts := tpcm{
			Kind:             tpcmCTS,
			ExpectedPackets:  sess.maxPacketsPerCTS,
			NextPacketNumber: sess.lastSeq + 1,
			PGN:              sess.pgn,
			RemoteAddress:    d.RemoteAddress,
			LocalAddress:     d.LocalAddress,
		}
		return j1939.Frame{}, false, []j1939.Frame{tpcmToFrame(cts)}
	}
	return j1939.Frame{}, false, nil
}

// NewOutTransfer begins sending frame via Transport Protocol. Broadcast (DA
// absent, or DA == AddressGlobal) uses BAM; otherwise RTS/CTS. frame.Data
// must be more than 8 bytes -- callers are expected to route short payloads
// directly to the CAN driver instead.
func (p *Packager) NewOutTransfer(frame j1939.Frame) (ctrl j1939.Frame) {
	if frame.Header.DestinationAddress == nil || *frame.Header.DestinationAddress == j1939.AddressGlobal {
		bam := tpcm{
			Kind:          tpcmBAM,
			MessageSize:   uint16(len(frame.Data)),
			PacketCount:   packetCount(uint16(len(frame.Data))),
			PGN:           frame.Header.PGN,
			RemoteAddress: j1939.AddressGlobal,
			LocalAddress:  frame.Header.SourceAddress,
		}
		p.bamOut = &bamOutSession{header: frame.Header, data: frame.Data}
		return tpcmToFrame(bam)
	}

	da := *frame.Header.DestinationAddress
	key := ptpOutKey{local: frame.Header.SourceAddress, remote: da}
	p.ptpOut[key] = &ptpOutSession{pgn: frame.Header.PGN, data: frame.Data}
	rts := tpcm{
		Kind:             tpcmRTS,
		MessageSize:      uint16(len(frame.Data)),
		PacketCount:      packetCount(uint16(len(frame.Data))),
		MaxPacketsPerCTS: 1,
		PGN:              frame.Header.PGN,
		RemoteAddress:    da,
		LocalAddress:     frame.Header.SourceAddress,
	}
	return tpcmToFrame(rts)
}

// ProcessOutTransfers emits at most one TPDT per active egress session:
// the broadcast-out slot first, then every peer-to-peer session.
func (p *Packager) ProcessOutTransfers() []j1939.Frame {
	var out []j1939.Frame
	if p.bamOut != nil {
		frame, done := p.stepBAMOut()
		out = append(out, frame)
		if done {
			p.bamOut = nil
		}
	}
	for key, sess := range p.ptpOut {
		if sess.lastPacketIndex >= sess.sendTillIndex {
			continue
		}
		out = append(out, p.stepPTPOut(key, sess))
	}
	return out
}

func (p *Packager) stepBAMOut() (j1939.Frame, bool) {
	sess := p.bamOut
	start := sess.nextIdx * 7
	end := start + 7
	var chunk [7]byte
	for i := range chunk {
		chunk[i] = 0xFF
	}
	if start < len(sess.data) {
		n := copy(chunk[:], sess.data[start:min(end, len(sess.data))])
		_ = n
	}
	seq := uint8(sess.nextIdx + 1)
	sess.nextIdx++
	frame := tpdtToFrame(tpdt{
		RemoteAddress:  j1939.AddressGlobal,
		LocalAddress:   sess.header.SourceAddress,
		SequenceNumber: seq,
		Data:           chunk,
	})
	done := sess.nextIdx*7 >= len(sess.data)
	return frame, done
}

func (p *Packager) stepPTPOut(key ptpOutKey, sess *ptpOutSession) j1939.Frame {
	idx := sess.lastPacketIndex
	start := idx * 7
	end := start + 7
	var chunk [7]byte
	for i := range chunk {
		chunk[i] = 0xFF
	}
	if start < len(sess.data) {
		copy(chunk[:], sess.data[start:min(end, len(sess.data))])
	}
	seq := uint8(idx + 1)
	sess.lastPacketIndex++
	return tpdtToFrame(tpdt{
		RemoteAddress:  key.remote,
		LocalAddress:   key.local,
		SequenceNumber: seq,
		Data:           chunk,
	})
}

func packetCount(size uint16) uint8 {
	return uint8((size + 6) / 7)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
