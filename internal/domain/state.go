package domain

// State is a core lifecycle state of a submission.
type State string

const (
	StateDraft          State = "draft"
	StateInProgress     State = "in_progress"
	StateAwaitingInput  State = "awaiting_input"
	StateAwaitingUpload State = "awaiting_upload"
	StateSubmitted      State = "submitted"
	StateNeedsReview    State = "needs_review"
	StateApproved       State = "approved"
	StateRejected       State = "rejected"
	StateFinalized      State = "finalized"
	StateCancelled      State = "cancelled"
	StateExpired        State = "expired"
)

// Terminal reports whether the state ends the lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateFinalized, StateRejected, StateCancelled, StateExpired:
		return true
	}
	return false
}

// transitions enumerates the allowed state changes. Cancel and expire are
// handled separately: both are allowed from any non-terminal state.
var transitions = map[State]map[State]bool{
	StateDraft: {
		StateInProgress: true,
	},
	StateInProgress: {
		StateInProgress:     true, // repeated set-fields / idempotent validate
		StateAwaitingInput:  true,
		StateAwaitingUpload: true,
		StateSubmitted:      true,
		StateNeedsReview:    true,
	},
	StateAwaitingInput: {
		StateInProgress: true,
	},
	StateAwaitingUpload: {
		StateInProgress: true,
	},
	StateSubmitted: {
		StateFinalized: true,
	},
	StateNeedsReview: {
		StateApproved:   true,
		StateRejected:   true,
		StateInProgress: true, // request-changes
	},
	StateApproved: {
		StateFinalized: true,
	},
}

// CanTransition reports whether from → to is an allowed transition.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateCancelled || to == StateExpired {
		return true
	}
	return transitions[from][to]
}
