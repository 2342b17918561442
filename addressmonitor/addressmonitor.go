// Package addressmonitor tracks which NAME currently claims which source
// address on the bus, by observing AddressClaim and Request traffic.
package addressmonitor

import (
	"github.com/tinshed-iot/go-j1939"
)

// Monitor maintains a map of source address to claiming NAME, kept
// current purely by observing frames that pass through the stack. It is not
// safe for concurrent use.
type Monitor struct {
	byAddress map[uint8]j1939.Name
}

// New creates an empty Monitor.
func New() *Monitor {
	return &Monitor{byAddress: make(map[uint8]j1939.Name)}
}

// NameAt returns the NAME currently claiming address, if any.
func (m *Monitor) NameAt(address uint8) (j1939.Name, bool) {
	n, ok := m.byAddress[address]
	return n, ok
}

// IsFree reports whether no NAME currently claims address.
func (m *Monitor) IsFree(address uint8) bool {
	_, ok := m.byAddress[address]
	return !ok
}

// Nodes returns a snapshot of every address currently claimed, and by whom.
// The returned map is a copy; mutating it does not affect the Monitor.
func (m *Monitor) Nodes() map[uint8]j1939.Name {
	out := make(map[uint8]j1939.Name, len(m.byAddress))
	for addr, name := range m.byAddress {
		out[addr] = name
	}
	return out
}

// HandleFrame updates the map in response to an AddressClaim or a
// Request-for-AddressClaim frame. Any other PGN is ignored.
func (m *Monitor) HandleFrame(frame j1939.Frame) {
	switch frame.Header.PGN {
	case j1939.PGNAddressClaim:
		m.handleAddressClaim(frame)
	case j1939.PGNRequest:
		m.handleRequest(frame)
	}
}

func (m *Monitor) handleAddressClaim(frame j1939.Frame) {
	if len(frame.Data) < 8 {
		return
	}
	name := j1939.NameFromBytes(frame.Data[:8])
	sa := frame.Header.SourceAddress

	for addr, existing := range m.byAddress {
		if existing == name && addr != sa {
			delete(m.byAddress, addr)
		}
	}
	m.byAddress[sa] = name
}

func (m *Monitor) handleRequest(frame j1939.Frame) {
	req, err := j1939.RequestFromFrame(frame)
	if err != nil {
		return
	}
	if req.RequestedPGN != j1939.PGNAddressClaim {
		return
	}
	if frame.Header.DestinationAddress != nil && *frame.Header.DestinationAddress != j1939.AddressGlobal {
		return
	}
	for addr := range m.byAddress {
		delete(m.byAddress, addr)
	}
}
