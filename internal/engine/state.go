package engine

// State is the engine connection state. Transitions:
// NotStarted -> Starting -> Ready -> (Stopping | Crashed) -> NotStarted.
// Starting leaves only to Ready (handshake) or back to NotStarted (failed
// outcome). Stopping and Crashed converge on the same cleanup.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateReady      State = "ready"
	StateStopping   State = "stopping"
	StateCrashed    State = "crashed"
)

var allStates = []State{StateNotStarted, StateStarting, StateReady, StateStopping, StateCrashed}

func (s State) String() string { return string(s) }
