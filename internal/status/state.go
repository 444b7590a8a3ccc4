package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/rishta/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Syncing, AuthRequired, Reconnecting, Error},
	Syncing:      {Ready, Reconnecting, Degraded, AuthRequired, Error},
	Ready:        {Reconnecting, Degraded, AuthRequired, Error},
	Reconnecting: {Connecting, Degraded, AuthRequired, Error},
	Degraded:     {Connecting, Reconnecting, Ready, AuthRequired, Error},
	Error:        {Booting},
}

// Snapshot is the current state together with when it was entered and why.
type Snapshot struct {
	State  State
	Reason string
	Since  time.Time
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	reason  string
	since   time.Time
	bus     *bus.Bus
	now     func() time.Time
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
		now:     time.Now,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state with its reason and entry time.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.current, Reason: m.reason, Since: m.since}
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	return m.TransitionReason(to, "")
}

// TransitionReason is Transition with a human-readable cause attached,
// e.g. the dial error that sent the daemon to RECONNECTING.
func (m *Machine) TransitionReason(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.reason = reason
	m.since = m.now()
	m.bus.Publish(bus.Event{
		Kind:      bus.KindSessionStatusChanged,
		Timestamp: m.since,
		Payload: StatusChange{
			From:   from,
			To:     to,
			Reason: reason,
		},
	})
	return nil
}

// Walk applies each transition in turn and stops at the first invalid one.
// States equal to the current one are skipped, so callers can drive the
// machine toward a target without tracking where it is.
func (m *Machine) Walk(states ...State) error {
	for _, s := range states {
		if m.Current() == s {
			continue
		}
		if err := m.Transition(s); err != nil {
			return err
		}
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State
	To     State
	Reason string
}
