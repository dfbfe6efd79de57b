package domain

import "fmt"

type State string

const (
	StateOpen          State = "open"
	StatePendingReview State = "pending_review"
	StateApproved      State = "approved"
	StateRejected      State = "rejected"
)

var States = []State{StateOpen, StatePendingReview, StateApproved, StateRejected}

// StateOf maps (completion set, approval flag) to a State. An approval flag
// on an assignment that was never completed is not reachable through the
// engine and is treated as Open.
func StateOf(completed bool, approved *bool) State {
	if !completed {
		return StateOpen
	}
	if approved == nil {
		return StatePendingReview
	}
	if *approved {
		return StateApproved
	}
	return StateRejected
}

// Active reports whether the state counts against the one-active-assignment
// per task rule.
func (s State) Active() bool {
	return s == StateOpen || s == StatePendingReview
}

func ParseState(v string) (State, error) {
	for _, s := range States {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown assignment state %q", v)
}

// EnsureCanComplete checks the Complete transition: Open -> PendingReview and
// the redo path Rejected -> PendingReview.
func EnsureCanComplete(s State) error {
	switch s {
	case StateOpen, StateRejected:
		return nil
	case StatePendingReview, StateApproved:
		return ErrAlreadyPendingOrApproved
	}
	return fmt.Errorf("invalid assignment state %q", s)
}

// EnsureCanReject checks the Reject transition: PendingReview -> Rejected.
func EnsureCanReject(s State) error {
	if s == StatePendingReview {
		return nil
	}
	return ErrNotPendingReview
}
