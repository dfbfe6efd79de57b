package engine

import (
	"context"
	"errors"
	"sort"

	"choreline/internal/config"
	"choreline/internal/domain"
	"choreline/internal/events"
	"choreline/internal/repo"
)

const maxRotationAttempts = 3

var errRotationRace = errors.New("rotation raced with a concurrent assignment")

// UserLoad is a user's number of Open and PendingReview assignments.
type UserLoad struct {
	UserID int64
	Active int
}

type Pick struct {
	TaskID int64
	UserID int64
}

type RotationResult struct {
	Rotated     int                 `json:"rotated"`
	Assignments []domain.Assignment `json:"assignments"`
}

// Distribute hands out tasks in the given order, each to the user with the
// fewest active assignments at that moment. Ties go to the lowest user id.
// loads is not modified.
func Distribute(taskIDs []int64, loads []UserLoad) []Pick {
	if len(taskIDs) == 0 || len(loads) == 0 {
		return nil
	}
	ls := append([]UserLoad(nil), loads...)
	sort.Slice(ls, func(i, j int) bool { return ls[i].UserID < ls[j].UserID })
	picks := make([]Pick, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		best := 0
		for i := 1; i < len(ls); i++ {
			if ls[i].Active < ls[best].Active {
				best = i
			}
		}
		picks = append(picks, Pick{TaskID: taskID, UserID: ls[best].UserID})
		ls[best].Active++
	}
	return picks
}

// RotateTasks assigns every task without an active assignment, least-loaded
// user first. The batch is all or nothing; a batch that collides with a
// concurrent claim is retried with fresh counts.
func (e Engine) RotateTasks(ctx context.Context, actorID int64) (res RotationResult, err error) {
	defer func() { e.observe("rotate_tasks", err) }()
	for attempt := 1; attempt <= maxRotationAttempts; attempt++ {
		res, err = e.rotateOnce(ctx, actorID)
		if !errors.Is(err, errRotationRace) {
			break
		}
		e.Metrics.IncRotationRetry()
		e.logger().Debug("rotation retry", "attempt", attempt)
	}
	if errors.Is(err, errRotationRace) {
		return RotationResult{}, domain.ErrRotationConflict
	}
	if err != nil {
		return RotationResult{}, err
	}
	e.Metrics.AddRotated(res.Rotated)
	e.logger().Info("rotation completed", "rotated", res.Rotated, "actor_id", actorID)
	return res, nil
}

func (e Engine) rotateOnce(ctx context.Context, actorID int64) (RotationResult, error) {
	tx, err := e.Repo.Begin(ctx)
	if err != nil {
		return RotationResult{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	if e.Config != nil && e.Config.Rotation.RequirePermission {
		if err := e.Auth.Require(ctx, tx, actorID, config.PermRotationRun); err != nil {
			return RotationResult{}, storeErr("check permission", err)
		}
	}
	userIDs, err := e.Repo.ListUserIDsTx(ctx, tx)
	if err != nil {
		return RotationResult{}, storeErr("list users", err)
	}
	taskIDs, err := e.Repo.UnassignedTaskIDsTx(ctx, tx)
	if err != nil {
		return RotationResult{}, storeErr("list unassigned tasks", err)
	}
	res := RotationResult{Assignments: []domain.Assignment{}}
	if len(userIDs) == 0 || len(taskIDs) == 0 {
		return res, nil
	}
	counts, err := e.Repo.ActiveCountsByUserTx(ctx, tx)
	if err != nil {
		return RotationResult{}, storeErr("count active assignments", err)
	}
	loads := make([]UserLoad, 0, len(userIDs))
	for _, id := range userIDs {
		loads = append(loads, UserLoad{UserID: id, Active: counts[id]})
	}

	w := e.events()
	now := e.stamp()
	for _, p := range Distribute(taskIDs, loads) {
		if err := e.hookAssignWrite(ctx, tx, p.TaskID); err != nil {
			return RotationResult{}, err
		}
		a, err := e.Repo.InsertAssignmentTx(ctx, tx, p.TaskID, p.UserID, now)
		if err != nil {
			if errors.Is(err, repo.ErrUniqueViolation) {
				return RotationResult{}, errRotationRace
			}
			return RotationResult{}, storeErr("insert assignment", err)
		}
		if err := w.Append(ctx, tx, events.TypeAssignmentClaimed, events.KindAssignment, a.ID, actorID,
			events.EventPayload{"task_id": p.TaskID, "user_id": p.UserID, "rotation": true}); err != nil {
			return RotationResult{}, storeErr("append event", err)
		}
		res.Assignments = append(res.Assignments, a)
	}
	res.Rotated = len(res.Assignments)
	if err := w.Append(ctx, tx, events.TypeRotationCompleted, events.KindHousehold, 0, actorID,
		events.EventPayload{"rotated": res.Rotated, "users": len(userIDs)}); err != nil {
		return RotationResult{}, storeErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(repo.Translate(err), repo.ErrUniqueViolation) {
			return RotationResult{}, errRotationRace
		}
		return RotationResult{}, storeErr("commit", err)
	}
	return res, nil
}
