// Package controlfunction implements the per-Control-Function address-claim
// state machine and local send/receive queues described by SAE J1939-81.
package controlfunction

import (
	"github.com/tinshed-iot/go-j1939"
	"github.com/tinshed-iot/go-j1939/addressmonitor"
)

const queueCapacity = 20

// requestedTimeout is how long a Control Function waits after enqueueing a
// Request for PGN_ADDRESSCLAIM before it consults the Address Monitor.
const requestedTimeout = 1500

// waitForVetoTimeout is how long a Control Function waits after emitting an
// AddressClaim before considering the address uncontested.
const waitForVetoTimeout = 250

// addressScanFloor and addressScanCeil bound the auto-selected address
// range used both for the initial scan out of Requested and for bumping
// away from a lost conflict.
const (
	addressScanFloor = 128
	addressScanCeil  = 247
)

// State is one of the five address-claim states a Control Function can be
// in. The zero value is StatePreferred.
type State int

const (
	StatePreferred State = iota
	StateRequested
	StateWaitForVeto
	StateAddressClaimed
	StateCannotClaim
)

// ControlFunction is one local node participating in J1939 address-claim
// and message exchange. It owns its own bounded send and receive queues;
// the stack dispatcher drains the send queue and feeds the receive queue.
// Not safe for concurrent use.
type ControlFunction struct {
	name                j1939.Name
	address             uint8
	addressConfigurable bool

	state      State
	stateSince uint64

	sendQueue    *j1939.Queue[j1939.Frame]
	receiveQueue *j1939.Queue[j1939.Frame]
}

// New creates a ControlFunction that will attempt to claim preferredAddress.
// Whether it may fall back to scanning for a free address is determined by
// name.AddressCapable().
func New(name j1939.Name, preferredAddress uint8) *ControlFunction {
	return &ControlFunction{
		name:                name,
		address:             preferredAddress,
		addressConfigurable: name.AddressCapable(),
		state:               StatePreferred,
		sendQueue:           j1939.NewQueue[j1939.Frame](queueCapacity),
		receiveQueue:        j1939.NewQueue[j1939.Frame](queueCapacity),
	}
}

// IsOnline reports the claimed address, if the Control Function currently
// holds one.
func (cf *ControlFunction) IsOnline() (uint8, bool) {
	if cf.state == StateAddressClaimed {
		return cf.address, true
	}
	return 0, false
}

// State returns the Control Function's current address-claim state.
func (cf *ControlFunction) State() State {
	return cf.state
}

// Name returns the Control Function's NAME.
func (cf *ControlFunction) Name() j1939.Name {
	return cf.name
}

// PopReceived dequeues the oldest frame delivered to this Control Function,
// if any.
func (cf *ControlFunction) PopReceived() (j1939.Frame, bool) {
	return cf.receiveQueue.Pop()
}

// PopSend dequeues the oldest frame this Control Function has queued for
// transmission, if any. Used by the stack dispatcher to drain outbound
// traffic once per process tick.
func (cf *ControlFunction) PopSend() (j1939.Frame, bool) {
	return cf.sendQueue.Pop()
}

// Send validates that the Control Function currently holds a claimed
// address, stamps frame with it as the source address, and enqueues it for
// transmission. It reports false if the Control Function is not currently
// AddressClaimed.
func (cf *ControlFunction) Send(frame j1939.Frame) bool {
	if cf.state != StateAddressClaimed {
		return false
	}
	cf.sendQueue.Push(frame.WithSourceAddress(cf.address))
	return true
}

// Process advances the address-claim state machine by one tick. monitor is
// consulted when, after a Request for PGN_ADDRESSCLAIM has been outstanding
// long enough, the Control Function needs to know which addresses are free.
func (cf *ControlFunction) Process(monitor *addressmonitor.Monitor, now uint64) {
	switch cf.state {
	case StatePreferred:
		if cf.addressConfigurable {
			req := j1939.NewRequest(j1939.PGNAddressClaim, j1939.AddressNull, j1939.AddressGlobal)
			cf.sendQueue.Push(req.AsFrame())
			cf.enterState(StateRequested, now)
		} else {
			cf.sendAddressClaim()
			cf.enterState(StateWaitForVeto, now)
		}
	case StateRequested:
		if now-cf.stateSince > requestedTimeout {
			if monitor.IsFree(cf.address) {
				cf.sendAddressClaim()
				cf.enterState(StateWaitForVeto, now)
				return
			}
			if addr, ok := cf.scanForFreeAddress(monitor); ok {
				cf.address = addr
				cf.sendAddressClaim()
				cf.enterState(StateWaitForVeto, now)
			} else {
				cf.enterState(StateCannotClaim, now)
				cf.sendCannotClaim()
			}
		}
	case StateWaitForVeto:
		if now-cf.stateSince > waitForVetoTimeout {
			cf.enterState(StateAddressClaimed, now)
		}
	case StateAddressClaimed, StateCannotClaim:
		// steady / terminal: nothing to do on a tick.
	}
}

// scanForFreeAddress looks for the lowest free address in [128, 247).
func (cf *ControlFunction) scanForFreeAddress(monitor *addressmonitor.Monitor) (uint8, bool) {
	for addr := uint16(addressScanFloor); addr < addressScanCeil; addr++ {
		if monitor.IsFree(uint8(addr)) {
			return uint8(addr), true
		}
	}
	return 0, false
}

// HandleNewFrame is offered every frame that arrives on the bus or is
// emitted by a sibling Control Function. Frames that fail the DA targeting
// rule are ignored. It returns an error only in the fatal case of an
// AddressClaim carrying a NAME identical to ours but from another source
// address.
func (cf *ControlFunction) HandleNewFrame(frame j1939.Frame, now uint64) error {
	if !cf.accepts(frame.Header) {
		return nil
	}
	switch frame.Header.PGN {
	case j1939.PGNAddressClaim:
		return cf.handleIngressAddressClaim(frame, now)
	case j1939.PGNRequest:
		req, err := j1939.RequestFromFrame(frame)
		if err == nil && req.RequestedPGN == j1939.PGNAddressClaim {
			cf.respondToAddressClaimRequest()
			return nil
		}
		cf.receiveQueue.Push(frame)
	default:
		cf.receiveQueue.Push(frame)
	}
	return nil
}

// accepts implements the frame-targeting rule: broadcast (no DA, or DA ==
// AddressGlobal), or peer-to-peer addressed to us while claimed.
func (cf *ControlFunction) accepts(header j1939.Header) bool {
	if header.DestinationAddress == nil {
		return true
	}
	if *header.DestinationAddress == j1939.AddressGlobal {
		return true
	}
	return cf.state == StateAddressClaimed && *header.DestinationAddress == cf.address
}

func (cf *ControlFunction) handleIngressAddressClaim(frame j1939.Frame, now uint64) error {
	if cf.state != StateAddressClaimed && cf.state != StateWaitForVeto {
		return nil
	}
	if len(frame.Data) < 8 {
		return nil
	}
	incoming := j1939.NameFromBytes(frame.Data[:8])
	if incoming != cf.name && frame.Header.SourceAddress != cf.address {
		// a claim for some other address does not contest ours
		return nil
	}

	switch {
	case incoming < cf.name:
		// we lose the address
		if cf.addressConfigurable {
			if cf.address < addressScanFloor || cf.address >= addressScanCeil {
				cf.address = addressScanFloor
			} else {
				cf.address++
			}
			cf.enterState(StateWaitForVeto, now)
			cf.sendAddressClaim()
		} else {
			cf.enterState(StateCannotClaim, now)
			cf.sendCannotClaim()
		}
	case incoming > cf.name:
		// we hold the address: re-assert our claim
		cf.sendAddressClaim()
	default:
		if frame.Header.SourceAddress != cf.address {
			return j1939.ErrNameCollision
		}
	}
	return nil
}

// respondToAddressClaimRequest answers a Request for PGN_ADDRESSCLAIM from
// any peer according to our current state.
func (cf *ControlFunction) respondToAddressClaimRequest() {
	switch cf.state {
	case StateAddressClaimed, StateWaitForVeto:
		cf.sendAddressClaim()
	case StateCannotClaim:
		cf.sendCannotClaim()
	default:
		// Preferred/Requested: we have nothing settled to report yet.
	}
}

func (cf *ControlFunction) sendAddressClaim() {
	b := cf.name.Bytes()
	frame := j1939.NewFrame(j1939.NewHeaderTo(j1939.PGNAddressClaim, 6, cf.address, j1939.AddressGlobal), b[:])
	cf.sendQueue.Push(frame)
}

func (cf *ControlFunction) sendCannotClaim() {
	b := cf.name.Bytes()
	frame := j1939.NewFrame(j1939.NewHeaderTo(j1939.PGNAddressClaim, 6, j1939.AddressNull, j1939.AddressGlobal), b[:])
	cf.sendQueue.Push(frame)
}

func (cf *ControlFunction) enterState(s State, now uint64) {
	cf.state = s
	cf.stateSince = now
}
