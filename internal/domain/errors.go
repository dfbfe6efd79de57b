package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindForbidden            Kind = "forbidden"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindUnavailable          Kind = "unavailable"
)

// Error is the typed result for every failure the engine reports. Reason is
// the short machine-checkable string surfaced to clients.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Reason so callers can compare against the sentinels below
// even when the message was customized.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput, Reason: "invalid_input", Message: "invalid input"}
	ErrInvalidFilter      = &Error{Kind: KindInvalidInput, Reason: "invalid_filter", Message: "invalid filter"}
	ErrDuplicateUsername  = &Error{Kind: KindConflict, Reason: "duplicate_username", Message: "username already exists"}
	ErrDuplicateTaskName  = &Error{Kind: KindConflict, Reason: "duplicate_task_name", Message: "task name already exists"}
	ErrInvalidCredentials = &Error{Kind: KindAuthenticationFailed, Reason: "invalid_credentials", Message: "invalid username or password"}

	ErrTaskNotFound       = &Error{Kind: KindNotFound, Reason: "task_not_found", Message: "task not found"}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Reason: "user_not_found", Message: "user not found"}
	ErrAssignmentNotFound = &Error{Kind: KindNotFound, Reason: "assignment_not_found", Message: "assignment not found"}
	ErrReferenceNotFound  = &Error{Kind: KindNotFound, Reason: "reference_not_found", Message: "referenced task or user does not exist"}

	ErrTaskAlreadyAssigned      = &Error{Kind: KindConflict, Reason: "task_already_assigned", Message: "task already has an active assignment"}
	ErrAlreadyPendingOrApproved = &Error{Kind: KindConflict, Reason: "already_pending_or_approved", Message: "assignment is already completed and awaiting review or approved"}
	ErrNotPendingReview         = &Error{Kind: KindConflict, Reason: "not_pending_review", Message: "assignment is not pending review"}
	ErrRotationConflict         = &Error{Kind: KindConflict, Reason: "rotation_conflict", Message: "rotation raced with concurrent assignments"}

	ErrNotOwner         = &Error{Kind: KindForbidden, Reason: "not_owner", Message: "assignment belongs to another user"}
	ErrPermissionDenied = &Error{Kind: KindForbidden, Reason: "permission_denied", Message: "permission denied"}
	ErrActorMismatch    = &Error{Kind: KindForbidden, Reason: "actor_mismatch", Message: "acting user does not match the authenticated user"}

	ErrStoreUnavailable = &Error{Kind: KindUnavailable, Reason: "store_unavailable", Message: "store unavailable"}
)

// Unavailable wraps a storage failure the engine cannot reason about.
func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Reason: ErrStoreUnavailable.Reason, Message: op, Err: err}
}

// KindOf returns the kind of a domain error, or KindUnavailable for any
// other error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnavailable
}

// ReasonOf returns the reason string of a domain error.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ErrStoreUnavailable.Reason
}
