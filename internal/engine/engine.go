package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"choreline/internal/config"
	"choreline/internal/domain"
	"choreline/internal/engine/auth"
	"choreline/internal/events"
	"choreline/internal/metrics"
	"choreline/internal/repo"

	"github.com/jmoiron/sqlx"
)

type Engine struct {
	DB      *sqlx.DB
	Repo    repo.Repo
	Events  events.Writer
	Auth    auth.Service
	Config  *config.Config
	Metrics *metrics.Collector
	Logger  *slog.Logger
	Now     func() time.Time

	// beforeAssignWrite runs inside the transaction just before an
	// assignment row is inserted. Tests use it to race the insert.
	beforeAssignWrite func(ctx context.Context, tx *sqlx.Tx, taskID int64) error
}

func New(db *sqlx.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{Now: time.Now},
		Auth:   auth.Service{Repo: r, Config: cfg},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// observe records the outcome of a public engine call.
func (e Engine) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = domain.ReasonOf(err)
		if domain.KindOf(err) == domain.KindUnavailable {
			e.logger().Warn("store failure", "op", op, "err", err)
		}
	}
	e.Metrics.ObserveOperation(op, result)
}

// storeErr passes domain errors through and wraps anything else as
// store_unavailable.
func storeErr(op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Unavailable(op, err)
}

// CreateTask adds a task with no assignments. actorID may be zero for
// anonymous callers unless task creation is gated.
func (e Engine) CreateTask(ctx context.Context, name, description string, actorID int64) (t domain.Task, err error) {
	defer func() { e.observe("create_task", err) }()
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Task{}, domain.ErrInvalidInput.WithMessage("task name is required")
	}
	tx, err := e.Repo.Begin(ctx)
	if err != nil {
		return domain.Task{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	if e.Config != nil && e.Config.Tasks.RequirePermission {
		if err := e.Auth.Require(ctx, tx, actorID, config.PermTaskCreate); err != nil {
			return domain.Task{}, storeErr("check permission", err)
		}
	}
	t, err = e.Repo.InsertTaskTx(ctx, tx, name, description, e.stamp())
	if err != nil {
		if errors.Is(err, repo.ErrUniqueViolation) {
			return domain.Task{}, domain.ErrDuplicateTaskName.WithMessage("task %q already exists", name)
		}
		return domain.Task{}, storeErr("insert task", err)
	}
	if err := e.events().Append(ctx, tx, events.TypeTaskCreated, events.KindTask, t.ID, actorID, events.EventPayload{"name": t.Name}); err != nil {
		return domain.Task{}, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(repo.Translate(err), repo.ErrUniqueViolation) {
			return domain.Task{}, domain.ErrDuplicateTaskName.WithMessage("task %q already exists", name)
		}
		return domain.Task{}, storeErr("commit", err)
	}
	return t, nil
}

// AssignTask claims a task for a user, creating an Open assignment.
func (e Engine) AssignTask(ctx context.Context, taskID, userID int64) (a domain.Assignment, err error) {
	defer func() { e.observe("assign_task", err) }()
	tx, err := e.Repo.Begin(ctx)
	if err != nil {
		return domain.Assignment{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTaskTx(ctx, tx, taskID, true); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Assignment{}, domain.ErrTaskNotFound.WithMessage("task %d not found", taskID)
		}
		return domain.Assignment{}, storeErr("get task", err)
	}
	if _, err := e.Repo.GetUserTx(ctx, tx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Assignment{}, domain.ErrUserNotFound.WithMessage("user %d not found", userID)
		}
		return domain.Assignment{}, storeErr("get user", err)
	}
	if err := e.ensureNoActive(ctx, tx, taskID); err != nil {
		return domain.Assignment{}, err
	}
	if err := e.hookAssignWrite(ctx, tx, taskID); err != nil {
		return domain.Assignment{}, err
	}
	a, err = e.Repo.InsertAssignmentTx(ctx, tx, taskID, userID, e.stamp())
	if err != nil {
		return domain.Assignment{}, assignWriteErr(taskID, userID, err)
	}
	if err := e.events().Append(ctx, tx, events.TypeAssignmentClaimed, events.KindAssignment, a.ID, userID,
		events.EventPayload{"task_id": taskID, "user_id": userID}); err != nil {
		return domain.Assignment{}, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, assignWriteErr(taskID, userID, repo.Translate(err))
	}
	return a, nil
}

func (e Engine) hookAssignWrite(ctx context.Context, tx *sqlx.Tx, taskID int64) error {
	if e.beforeAssignWrite == nil {
		return nil
	}
	return e.beforeAssignWrite(ctx, tx, taskID)
}

func (e Engine) ensureNoActive(ctx context.Context, tx *sqlx.Tx, taskID int64) error {
	active, err := e.Repo.ActiveAssignmentForTaskTx(ctx, tx, taskID)
	if err == nil {
		return domain.ErrTaskAlreadyAssigned.WithMessage("task %d is already assigned (assignment %d)", taskID, active.ID)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return storeErr("get active assignment", err)
	}
	return nil
}

// assignWriteErr maps constraint failures from writes that make an
// assignment active onto the errors the precondition checks report. SQLite
// does not name the violated foreign key, so it yields ErrReferenceNotFound.
func assignWriteErr(taskID, userID int64, err error) error {
	switch {
	case errors.Is(err, repo.ErrUniqueViolation):
		return domain.ErrTaskAlreadyAssigned.WithMessage("task %d is already assigned", taskID)
	case errors.Is(err, repo.ErrForeignKeyViolation):
		switch repo.ConstraintName(err) {
		case repo.ConstraintAssignmentTask:
			return domain.ErrTaskNotFound.WithMessage("task %d not found", taskID)
		case repo.ConstraintAssignmentUser:
			return domain.ErrUserNotFound.WithMessage("user %d not found", userID)
		}
		return domain.ErrReferenceNotFound
	}
	return storeErr("write assignment", err)
}

// CompleteTask submits an Open or Rejected assignment for review. Only the
// assignee may complete it.
func (e Engine) CompleteTask(ctx context.Context, assignmentID, userID int64, notes string) (a domain.Assignment, err error) {
	defer func() { e.observe("complete_task", err) }()
	tx, err := e.Repo.Begin(ctx)
	if err != nil {
		return domain.Assignment{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	a, err = e.Repo.GetAssignmentTx(ctx, tx, assignmentID, true)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Assignment{}, domain.ErrAssignmentNotFound.WithMessage("assignment %d not found", assignmentID)
		}
		return domain.Assignment{}, storeErr("get assignment", err)
	}
	if a.UserID != userID {
		return domain.Assignment{}, domain.ErrNotOwner.WithMessage("assignment %d belongs to another user", assignmentID)
	}
	prev := a.State()
	if err := domain.EnsureCanComplete(prev); err != nil {
		return domain.Assignment{}, err
	}
	if prev == domain.StateRejected {
		if err := e.ensureNoActive(ctx, tx, a.TaskID); err != nil {
			return domain.Assignment{}, err
		}
	}
	now := e.stamp()
	var notesPtr *string
	if n := strings.TrimSpace(notes); n != "" {
		notesPtr = &n
	}
	if err := e.Repo.MarkCompletedTx(ctx, tx, a.ID, now, notesPtr); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Assignment{}, domain.ErrAlreadyPendingOrApproved
		}
		return domain.Assignment{}, assignWriteErr(a.TaskID, a.UserID, err)
	}
	payload := events.EventPayload{"task_id": a.TaskID, "redo": prev == domain.StateRejected}
	if notesPtr != nil {
		payload["notes"] = *notesPtr
	}
	if err := e.events().Append(ctx, tx, events.TypeAssignmentCompleted, events.KindAssignment, a.ID, userID, payload); err != nil {
		return domain.Assignment{}, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, assignWriteErr(a.TaskID, a.UserID, repo.Translate(err))
	}
	a.CompletedAt = &now
	a.Approved = nil
	a.Notes = notesPtr
	return a, nil
}

// RejectTask sends a PendingReview assignment back to its assignee. The
// reason is kept in the event log.
func (e Engine) RejectTask(ctx context.Context, assignmentID, reviewerID int64, reason string) (a domain.Assignment, err error) {
	defer func() { e.observe("reject_task", err) }()
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Assignment{}, domain.ErrInvalidInput.WithMessage("rejection reason is required")
	}
	tx, err := e.Repo.Begin(ctx)
	if err != nil {
		return domain.Assignment{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetUserTx(ctx, tx, reviewerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Assignment{}, domain.ErrUserNotFound.WithMessage("reviewer %d not found", reviewerID)
		}
		return domain.Assignment{}, storeErr("get reviewer", err)
	}
	a, err = e.Repo.GetAssignmentTx(ctx, tx, assignmentID, true)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Assignment{}, domain.ErrAssignmentNotFound.WithMessage("assignment %d not found", assignmentID)
		}
		return domain.Assignment{}, storeErr("get assignment", err)
	}
	if err := domain.EnsureCanReject(a.State()); err != nil {
		return domain.Assignment{}, err
	}
	if err := e.Repo.MarkRejectedTx(ctx, tx, a.ID); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Assignment{}, domain.ErrNotPendingReview
		}
		return domain.Assignment{}, storeErr("reject assignment", err)
	}
	if err := e.events().Append(ctx, tx, events.TypeAssignmentRejected, events.KindAssignment, a.ID, reviewerID,
		events.EventPayload{"task_id": a.TaskID, "reason": reason, "reviewer_id": reviewerID}); err != nil {
		return domain.Assignment{}, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, storeErr("commit", err)
	}
	rejected := false
	a.Approved = &rejected
	return a, nil
}

// GrantRole gives a user a configured role. It is an operator command and
// performs no permission check of its own.
func (e Engine) GrantRole(ctx context.Context, userID int64, role string, actorID int64) (err error) {
	defer func() { e.observe("grant_role", err) }()
	return e.changeRole(ctx, userID, role, actorID, true)
}

func (e Engine) RevokeRole(ctx context.Context, userID int64, role string, actorID int64) (err error) {
	defer func() { e.observe("revoke_role", err) }()
	return e.changeRole(ctx, userID, role, actorID, false)
}

func (e Engine) changeRole(ctx context.Context, userID int64, role string, actorID int64, grant bool) error {
	if e.Config != nil {
		if _, ok := e.Config.RBAC.Roles[role]; !ok {
			return domain.ErrInvalidInput.WithMessage("unknown role %q", role)
		}
	}
	tx, err := e.Repo.Begin(ctx)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetUserTx(ctx, tx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ErrUserNotFound.WithMessage("user %d not found", userID)
		}
		return storeErr("get user", err)
	}
	evtType := events.TypeRoleGranted
	if grant {
		err = e.Repo.AssignRoleTx(ctx, tx, userID, role)
	} else {
		evtType = events.TypeRoleRevoked
		err = e.Repo.RevokeRoleTx(ctx, tx, userID, role)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ErrInvalidInput.WithMessage("user %d does not hold role %q", userID, role)
		}
	}
	if err != nil {
		return storeErr("change role", err)
	}
	if err := e.events().Append(ctx, tx, evtType, events.KindUser, userID, actorID, events.EventPayload{"role": role}); err != nil {
		return storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}
