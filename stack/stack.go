// Package stack ties the Address Monitor, the per-node Control Functions
// and the Transport Manager together into the single object an application
// drives: register Control Functions, call Process once per tick (which
// pulls received CAN frames from the Driver), and drain received
// application Frames with GetFrame.
package stack

import (
	"github.com/tinshed-iot/go-j1939"
	"github.com/tinshed-iot/go-j1939/addressmonitor"
	"github.com/tinshed-iot/go-j1939/controlfunction"
	"github.com/tinshed-iot/go-j1939/transport"
)

// ControlFunctionHandle identifies a Control Function registered with a
// Stack. It is opaque: callers must not construct one themselves, and it
// is only valid for the Stack that issued it.
type ControlFunctionHandle struct {
	index int
}

// Stack is the top-level J1939 engine. It owns the CAN Driver, every
// registered Control Function, the shared Address Monitor and the Transport
// Manager, and drives them all forward one tick at a time from Process.
// Not safe for concurrent use.
type Stack struct {
	driver j1939.Driver
	clock  j1939.Clock

	receivedFrames *j1939.Queue[j1939.Frame]
	acceptedSA     []uint8
	acceptAllDA    bool

	controlFunctions []*controlfunction.ControlFunction
	addressMonitor   *addressmonitor.Monitor
	transportManager *transport.Manager
}

// receivedFramesCapacity bounds the Stack's own inbound queue -- frames
// that are broadcast or addressed to us but not claimed by any registered
// Control Function's receive logic still land here.
const receivedFramesCapacity = 20

// New creates a Stack driving driver for I/O and clock for the millisecond
// timestamps fed to every Control Function's Process call. fastPacketPGNs
// names the PGNs that should be treated as NMEA-2000 Fast-Packet encoded.
func New(driver j1939.Driver, clock j1939.Clock, fastPacketPGNs []j1939.PGN) *Stack {
	return &Stack{
		driver:           driver,
		clock:            clock,
		receivedFrames:   j1939.NewQueue[j1939.Frame](receivedFramesCapacity),
		addressMonitor:   addressmonitor.New(),
		transportManager: transport.NewManager(fastPacketPGNs),
	}
}

// SetAcceptedSA restricts which destination addresses the Stack will accept
// frames for on behalf of no particular Control Function (e.g. a diagnostic
// tool listening on a fixed address it never formally claims). Broadcast
// frames and frames addressed to an online Control Function are accepted
// regardless of this list.
func (s *Stack) SetAcceptedSA(sa []uint8) {
	s.acceptedSA = sa
}

// SetAcceptAllDA, when true, disables destination-address filtering
// entirely: every frame that reaches pushCANFrame is considered for
// delivery regardless of addressing. Useful for passive bus monitoring.
func (s *Stack) SetAcceptAllDA(accept bool) {
	s.acceptAllDA = accept
}

// RegisterControlFunction adds a new Control Function that will attempt to
// claim preferredAddress, and returns a handle usable with ControlFunction.
func (s *Stack) RegisterControlFunction(name j1939.Name, preferredAddress uint8) ControlFunctionHandle {
	s.controlFunctions = append(s.controlFunctions, controlfunction.New(name, preferredAddress))
	return ControlFunctionHandle{index: len(s.controlFunctions) - 1}
}

// ControlFunction returns the Control Function identified by handle.
func (s *Stack) ControlFunction(handle ControlFunctionHandle) *controlfunction.ControlFunction {
	return s.controlFunctions[handle.index]
}

// Nodes returns a snapshot of every address currently claimed on the bus,
// as observed by the Address Monitor.
func (s *Stack) Nodes() map[uint8]j1939.Name {
	return s.addressMonitor.Nodes()
}

// GetFrame dequeues the oldest application Frame delivered to the Stack
// itself (as opposed to one of its registered Control Functions), if any.
func (s *Stack) GetFrame() (j1939.Frame, bool) {
	return s.receivedFrames.Pop()
}

// SendFrame transmits frame, routing payloads over 8 bytes through the
// Transport Manager for segmentation and sending anything else directly on
// the Driver.
func (s *Stack) SendFrame(frame j1939.Frame) error {
	if len(frame.Data) > 8 {
		ctrl, err := s.transportManager.SendFrame(frame)
		if err != nil {
			return err
		}
		return s.transmit(ctrl)
	}
	return s.transmit(frame)
}

func (s *Stack) transmit(frame j1939.Frame) error {
	return s.driver.Transmit(frame.Header.CANID(), frame.Data)
}

// Process drains every frame currently available on the Driver, advances
// every registered Control Function's address-claim state machine and
// drains its outbound queue, then advances the Transport Manager's egress
// state machines. Call this once per tick.
func (s *Stack) Process() {
	for {
		id, data, err := s.driver.Receive()
		if err != nil {
			break
		}
		s.pushCANFrame(id, data)
	}

	now := s.clock.NowMillis()
	for _, cf := range s.controlFunctions {
		cf.Process(s.addressMonitor, now)
		for {
			frame, ok := cf.PopSend()
			if !ok {
				break
			}
			if err := s.SendFrame(frame); err != nil {
				return
			}
			s.handleNewFrame(frame, now, cf)
		}
	}

	for _, frame := range s.transportManager.Process() {
		if err := s.transmit(frame); err != nil {
			return
		}
	}
}

// pushCANFrame decodes a raw CAN identifier and payload into a Header and
// routes it either to the Transport Manager (if its PGN needs
// reassembly) or straight to handleNewFrame.
func (s *Stack) pushCANFrame(id uint32, data []byte) {
	header := j1939.HeaderFromCANID(id)
	if !s.checkDestination(header.DestinationAddress) {
		return
	}
	now := s.clock.NowMillis()
	if s.transportManager.IsTPFrame(header.PGN) {
		delivered, ok, toSend := s.transportManager.HandleFrame(header, data)
		for _, ctrl := range toSend {
			_ = s.transmit(ctrl)
		}
		if ok {
			s.handleNewFrame(delivered, now, nil)
		}
		return
	}
	s.handleNewFrame(j1939.NewFrame(header, data), now, nil)
}

// handleNewFrame offers frame to every registered Control Function other
// than source (the Control Function whose Send produced frame, or nil for a
// frame that arrived from the bus), keeps the Address Monitor current, and
// -- if frame is broadcast, addressed to one of the SetAcceptedSA addresses
// or acceptAllDA is set -- delivers it to the Stack's own receive queue. An
// ErrNameCollision returned by a Control Function is discarded here.
func (s *Stack) handleNewFrame(frame j1939.Frame, now uint64, source *controlfunction.ControlFunction) {
	if frame.Header.PGN == j1939.PGNAddressClaim || frame.Header.PGN == j1939.PGNRequest {
		s.addressMonitor.HandleFrame(frame)
	}
	for _, cf := range s.controlFunctions {
		if cf == source {
			continue
		}
		_ = cf.HandleNewFrame(frame, now)
	}
	da := frame.Header.DestinationAddress
	deliver := da == nil || *da == j1939.AddressGlobal || s.acceptAllDA
	for _, sa := range s.acceptedSA {
		if da != nil && sa == *da {
			deliver = true
		}
	}
	if deliver {
		s.receivedFrames.Push(frame)
	}
}

// checkDestination reports whether the Stack should consider a frame
// addressed to da (nil for broadcast) at all, before spending any effort
// decoding or reassembling it.
func (s *Stack) checkDestination(da *uint8) bool {
	if da == nil || *da == j1939.AddressGlobal || s.acceptAllDA {
		return true
	}
	for _, sa := range s.acceptedSA {
		if sa == *da {
			return true
		}
	}
	for _, cf := range s.controlFunctions {
		if addr, online := cf.IsOnline(); online && addr == *da {
			return true
		}
	}
	return false
}
