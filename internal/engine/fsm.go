package engine

import (
	"fmt"
	"sync"
)

// State is one stage of a call session's lifecycle
type State string

const (
	StateAlerting     State = "alerting"               // dialing, remote side ringing
	StateConnectingAI State = "answered_connecting_ai" // leg answered, AI connector dialing
	StateBridged      State = "bridged"                // audio bridged, conversation running
	StateResultCap    State = "result_captured"        // outcome received, closing remark playing
	StateTerminating  State = "terminating"            // tearing down leg and AI connection
	StateTerminated   State = "terminated"             // both sides closed
)

// transitions is the complete set of legal state changes. Any non-terminal
// state may jump to Terminating (remote hangup, carrier loss, shutdown).
var transitions = map[State][]State{
	StateAlerting:     {StateConnectingAI, StateTerminating},
	StateConnectingAI: {StateBridged, StateTerminating},
	StateBridged:      {StateResultCap, StateTerminating},
	StateResultCap:    {StateTerminating},
	StateTerminating:  {StateTerminated},
	StateTerminated:   {},
}

// FSM tracks a session's state and rejects impossible transitions
type FSM struct {
	state State
	mu    sync.RWMutex
}

// NewFSM creates an FSM in the Alerting state
func NewFSM() *FSM {
	return &FSM{state: StateAlerting}
}

// State returns the current state
func (f *FSM) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Transition moves to the target state, or fails if the change is not in
// the transition table
func (f *FSM) Transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, allowed := range transitions[f.state] {
		if allowed == to {
			f.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", f.state, to)
}

// TransitionIf moves to the target state only if currently in from.
// Returns false without error when the current state differs.
func (f *FSM) TransitionIf(from, to State) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != from {
		return false, nil
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			f.state = to
			return true, nil
		}
	}
	return false, fmt.Errorf("invalid transition %s -> %s", from, to)
}
