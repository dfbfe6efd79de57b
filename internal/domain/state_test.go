package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool { return &v }

func TestStateOf(t *testing.T) {
	tests := []struct {
		completed bool
		approved  *bool
		want      State
	}{
		{false, nil, StateOpen},
		{true, nil, StatePendingReview},
		{true, boolPtr(true), StateApproved},
		{true, boolPtr(false), StateRejected},
		{false, boolPtr(false), StateOpen},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%v", tt.completed, tt.approved != nil), func(t *testing.T) {
			require.Equal(t, tt.want, StateOf(tt.completed, tt.approved))
		})
	}
}

func TestAssignmentState(t *testing.T) {
	ts := "2024-01-01T00:00:00Z"
	a := Assignment{}
	require.Equal(t, StateOpen, a.State())
	a.CompletedAt = &ts
	require.Equal(t, StatePendingReview, a.State())
	a.Approved = boolPtr(false)
	require.Equal(t, StateRejected, a.State())
	a.Approved = boolPtr(true)
	require.Equal(t, StateApproved, a.State())
}

func TestActiveStates(t *testing.T) {
	require.True(t, StateOpen.Active())
	require.True(t, StatePendingReview.Active())
	require.False(t, StateApproved.Active())
	require.False(t, StateRejected.Active())
}

func TestCompleteTransitions(t *testing.T) {
	require.NoError(t, EnsureCanComplete(StateOpen))
	require.NoError(t, EnsureCanComplete(StateRejected))
	require.ErrorIs(t, EnsureCanComplete(StatePendingReview), ErrAlreadyPendingOrApproved)
	require.ErrorIs(t, EnsureCanComplete(StateApproved), ErrAlreadyPendingOrApproved)
}

func TestRejectTransitions(t *testing.T) {
	require.NoError(t, EnsureCanReject(StatePendingReview))
	for _, s := range []State{StateOpen, StateApproved, StateRejected} {
		require.ErrorIs(t, EnsureCanReject(s), ErrNotPendingReview, s)
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("pending_review")
	require.NoError(t, err)
	require.Equal(t, StatePendingReview, s)
	_, err = ParseState("done")
	require.Error(t, err)
}

func TestErrorMatchingByReason(t *testing.T) {
	custom := ErrTaskNotFound.WithMessage("task %d not found", 7)
	require.ErrorIs(t, custom, ErrTaskNotFound)
	require.NotErrorIs(t, custom, ErrUserNotFound)
	require.Equal(t, "task 7 not found", custom.Error())

	wrapped := fmt.Errorf("assign: %w", custom)
	require.Equal(t, KindNotFound, KindOf(wrapped))
	require.Equal(t, "task_not_found", ReasonOf(wrapped))

	store := Unavailable("get task", errors.New("disk I/O error"))
	require.ErrorIs(t, store, ErrStoreUnavailable)
	require.Equal(t, KindUnavailable, KindOf(store))
	require.Equal(t, KindUnavailable, KindOf(errors.New("boom")))
}
