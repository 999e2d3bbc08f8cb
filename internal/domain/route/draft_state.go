package route

// DraftState is the phase of a route-authoring session.
type DraftState string

const (
	StateIdle          DraftState = "idle"
	StateAwaitingStart DraftState = "awaiting_start"
	StateAwaitingEnd   DraftState = "awaiting_end"
	StateReady         DraftState = "ready"
	StateSaving        DraftState = "saving"
)

// validTransitions defines the state machine for route authoring.
var validTransitions = map[DraftState][]DraftState{
	StateIdle:          {StateAwaitingStart},
	StateAwaitingStart: {StateAwaitingEnd, StateIdle},
	StateAwaitingEnd:   {StateReady, StateIdle},
	StateReady:         {StateSaving, StateIdle},
	StateSaving:        {StateIdle, StateReady},
}

// CanTransitionTo returns true if a transition from this state to the target is allowed.
func (s DraftState) CanTransitionTo(target DraftState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// AcceptsPoints reports whether a map tap means something in this state.
func (s DraftState) AcceptsPoints() bool {
	return s == StateAwaitingStart || s == StateAwaitingEnd
}

// CanBeCancelled returns true if Cancel applies in this state.
func (s DraftState) CanBeCancelled() bool {
	return s == StateAwaitingStart || s == StateAwaitingEnd || s == StateReady
}

// String returns the string representation of the state.
func (s DraftState) String() string {
	return string(s)
}
