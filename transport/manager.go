package transport

import (
	"fmt"

	"github.com/tinshed-iot/go-j1939"
)

// Manager is the single entry point for everything that needs segmentation:
// SAE J1939 Transport Protocol (via Packager) and NMEA-2000 Fast-Packet (via
// FastPacketCoder). Callers route frames and outbound sends through Manager
// rather than touching Packager or FastPacketCoder directly.
type Manager struct {
	packager   *Packager
	fastPacket *FastPacketCoder
}

// NewManager creates a Manager. fastPacketPGNs names the PGNs that should be
// treated as NMEA-2000 Fast-Packet encoded rather than routed through
// ordinary Transport Protocol.
func NewManager(fastPacketPGNs []j1939.PGN) *Manager {
	return &Manager{
		packager:   NewPackager(),
		fastPacket: NewFastPacketCoder(fastPacketPGNs),
	}
}

// IsTPFrame reports whether pgn needs to be routed through the Manager
// instead of being delivered directly: Transport Protocol (TP.CM/TP.DT),
// Extended Transport Protocol (routing only -- ETP itself is unsupported),
// or one of the configured Fast-Packet PGNs.
func (m *Manager) IsTPFrame(pgn j1939.PGN) bool {
	switch pgn {
	case j1939.PGNTransportControl, j1939.PGNTransportData,
		j1939.PGNExtTransportControl, j1939.PGNExtTransportData:
		return true
	}
	return m.fastPacket.IsFastPacket(pgn)
}

// HandleFrame dispatches an incoming frame to the Packager or the
// FastPacketCoder depending on its PGN. It returns a reassembled Frame
// (ok=true) if this frame completed one, plus any control frames that must
// be transmitted synchronously as a side effect.
func (m *Manager) HandleFrame(header j1939.Header, data []byte) (delivered j1939.Frame, ok bool, toSend []j1939.Frame) {
	if m.fastPacket.IsFastPacket(header.PGN) {
		delivered, ok = m.fastPacket.HandleFrame(header, data)
		return delivered, ok, nil
	}
	switch header.PGN {
	case j1939.PGNTransportControl, j1939.PGNTransportData:
		return m.packager.HandleFrame(header, data)
	default:
		// ETP.CM / ETP.DT: routing only, we do not implement Extended
		// Transport Protocol. Silently dropped.
		return j1939.Frame{}, false, nil
	}
}

// Process advances both the Packager's and the FastPacketCoder's egress
// state machines by one tick, returning every frame that must be
// transmitted as a result.
func (m *Manager) Process() []j1939.Frame {
	out := m.packager.ProcessOutTransfers()
	out = append(out, m.fastPacket.ProcessOutTransfers()...)
	return out
}

// SendFrame begins sending frame, routing it to the FastPacketCoder if its
// PGN is Fast-Packet encoded, otherwise to the Packager. Payloads over 1785
// bytes are rejected -- Extended Transport Protocol, which would lift that
// limit, is unsupported.
func (m *Manager) SendFrame(frame j1939.Frame) (ctrl j1939.Frame, err error) {
	if m.fastPacket.IsFastPacket(frame.Header.PGN) {
		if len(frame.Data) > maxFastPacketPayload {
			return j1939.Frame{}, fmt.Errorf("%w: %d bytes exceeds the %d byte Fast-Packet limit", j1939.ErrMessageTooLarge, len(frame.Data), maxFastPacketPayload)
		}
		ctrl, _ = m.fastPacket.SendFrame(frame)
		return ctrl, nil
	}
	if len(frame.Data) > maxTPPayload {
		return j1939.Frame{}, j1939.ErrMessageTooLarge
	}
	return m.packager.NewOutTransfer(frame), nil
}
