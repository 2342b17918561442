package transport

import (
	"github.com/tinshed-iot/go-j1939"
)

// maxFastPacketPayload is the largest payload Fast-Packet can carry: one
// byte of size plus 6 bytes in frame 0, plus 7 bytes in each of up to 31
// follow-on frames.
const maxFastPacketPayload = 223

type fastPacketReceiver struct {
	expectedBytes uint8
	sequence      uint8
	data          []byte
}

type fastPacketTransmitter struct {
	header   j1939.Header
	data     []byte
	item     uint8
	sequence uint8
}

// FastPacketCoder segments and reassembles NMEA-2000 Fast-Packet payloads
// for a configured set of PGNs. Only one reassembly and one send may be in
// flight per PGN at a time. Not safe for concurrent use.
type FastPacketCoder struct {
	pgns             map[j1939.PGN]struct{}
	receiver         map[j1939.PGN]*fastPacketReceiver
	transmitter      map[j1939.PGN]*fastPacketTransmitter
	lastUsedSequence map[j1939.PGN]uint8
}

// NewFastPacketCoder creates a FastPacketCoder that treats the given PGNs as
// Fast-Packet encoded.
func NewFastPacketCoder(pgns []j1939.PGN) *FastPacketCoder {
	set := make(map[j1939.PGN]struct{}, len(pgns))
	for _, p := range pgns {
		set[p] = struct{}{}
	}
	return &FastPacketCoder{
		pgns:             set,
		receiver:         make(map[j1939.PGN]*fastPacketReceiver),
		transmitter:      make(map[j1939.PGN]*fastPacketTransmitter),
		lastUsedSequence: make(map[j1939.PGN]uint8),
	}
}

// IsFastPacket reports whether pgn is one of the configured Fast-Packet PGNs.
func (c *FastPacketCoder) IsFastPacket(pgn j1939.PGN) bool {
	_, ok := c.pgns[pgn]
	return ok
}

// HandleFrame processes one incoming Fast-Packet frame. It returns the
// reassembled Frame (ok=true) once the transfer identified by header.PGN is
// complete.
func (c *FastPacketCoder) HandleFrame(header j1939.Header, data []byte) (j1939.Frame, bool) {
	if len(data) == 0 {
		return j1939.Frame{}, false
	}
	identifier := data[0]
	sequence := (identifier & 0xE0) >> 5
	item := identifier & 0x1F

	if item == 0 {
		if len(data) < 2 {
			return j1939.Frame{}, false
		}
		if _, exists := c.receiver[header.PGN]; exists {
			return j1939.Frame{}, false
		}
		expectedBytes := data[1]
		rx := make([]byte, 0, expectedBytes)
		rx = append(rx, data[2:]...)
		if len(rx) >= int(expectedBytes) {
			// the whole payload fit in frame 0
			return j1939.NewFrame(header, rx[:expectedBytes]), true
		}
		c.receiver[header.PGN] = &fastPacketReceiver{
			expectedBytes: expectedBytes,
			sequence:      sequence,
			data:          rx,
		}
		return j1939.Frame{}, false
	}

	rec, ok := c.receiver[header.PGN]
	if !ok || rec.sequence != sequence {
		return j1939.Frame{}, false
	}
	copyTill := len(data)
	if max := int(rec.expectedBytes) - len(rec.data) + 1; copyTill > max {
		copyTill = max
	}
	if copyTill < 1 {
		copyTill = 1
	}
	rec.data = append(rec.data, data[1:copyTill]...)

	if len(rec.data) >= int(rec.expectedBytes) {
		delete(c.receiver, header.PGN)
		return j1939.NewFrame(header, rec.data), true
	}
	return j1939.Frame{}, false
}

// SendFrame begins sending frame via Fast-Packet, emitting the item-0 frame
// synchronously. A second send on the same PGN while one is already in
// flight is a no-op.
func (c *FastPacketCoder) SendFrame(frame j1939.Frame) (ctrl j1939.Frame, sent bool) {
	pgn := frame.Header.PGN
	if _, inFlight := c.transmitter[pgn]; inFlight {
		return j1939.Frame{}, false
	}
	sequence := c.lastUsedSequence[pgn]

	data := [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	data[0] = sequence<<5 | (0 & 0x1F)
	data[1] = byte(len(frame.Data))
	copy(data[2:8], frame.Data)

	// the whole payload may already fit in the frame-0 6-byte window, in
	// which case there is nothing left for ProcessOutTransfers to send.
	if len(frame.Data) > 6 {
		c.transmitter[pgn] = &fastPacketTransmitter{
			header:   frame.Header,
			data:     frame.Data,
			item:     0,
			sequence: sequence,
		}
	}
	c.lastUsedSequence[pgn] = (sequence + 1) & 0x07

	return j1939.NewFrame(frame.Header, data[:]), true
}

// ProcessOutTransfers emits one follow-on Fast-Packet frame per in-flight
// transmitter, advancing its item counter. Completed transmitters are
// removed.
func (c *FastPacketCoder) ProcessOutTransfers() []j1939.Frame {
	var out []j1939.Frame
	var finished []j1939.PGN

	for pgn, tx := range c.transmitter {
		bytesSendMin := 6 + int(tx.item)*7
		bytesSendMax := len(tx.data)
		if bytesSendMin+7 < bytesSendMax {
			bytesSendMax = bytesSendMin + 7
		}
		bytesToCopy := bytesSendMax - bytesSendMin

		tx.item++
		data := [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
		data[0] = tx.sequence<<5 | (tx.item & 0x1F)
		copy(data[1:1+bytesToCopy], tx.data[bytesSendMin:bytesSendMax])

		out = append(out, j1939.NewFrame(tx.header, data[:]))

		if bytesSendMax >= len(tx.data) {
			finished = append(finished, pgn)
		}
	}

	for _, pgn := range finished {
		delete(c.transmitter, pgn)
	}
	return out
}
