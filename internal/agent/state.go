package agent

import "fmt"

// State is a host's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateRunning
	StateShuttingDown
	StateTerminated
)

var stateNames = [...]string{"created", "initializing", "running", "shutting-down", "terminated"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further ticks will run.
func (s State) Terminal() bool { return s == StateTerminated }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// AllStates lists the states in lifecycle order.
func AllStates() []State {
	return []State{StateCreated, StateInitializing, StateRunning, StateShuttingDown, StateTerminated}
}
