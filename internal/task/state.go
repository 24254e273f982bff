// Package task tracks the lifecycle of a run delegated to an external
// agent: its state transitions, accumulated artifacts, and which of the
// two history sources (live stream or persisted replay log) the view
// should trust.
package task

// State is a remote task lifecycle state.
type State string

const (
	StateUnknown       State = "unknown"
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input-required"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCanceled      State = "canceled"
	StateRejected      State = "rejected"
)

// ParseState maps a wire state string to a State, defaulting to unknown
// so newer servers cannot break the fold.
func ParseState(s string) State {
	switch State(s) {
	case StateSubmitted, StateWorking, StateInputRequired,
		StateCompleted, StateFailed, StateCanceled, StateRejected:
		return State(s)
	default:
		return StateUnknown
	}
}

// Terminal reports whether no further transition is accepted from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled, StateRejected:
		return true
	default:
		return false
	}
}

// Display maps a state to the label the console shows for it.
func (s State) Display() string {
	switch s {
	case StateSubmitted:
		return "Submitted"
	case StateWorking:
		return "Running"
	case StateInputRequired:
		return "Waiting for input"
	case StateCompleted:
		return "Success"
	case StateFailed:
		return "Error"
	case StateCanceled:
		return "Canceled"
	case StateRejected:
		return "Rejected"
	default:
		return "Calling"
	}
}
