package engine

import (
	"context"
	"errors"

	"choreline/internal/domain"
	"choreline/internal/repo"
)

func (e Engine) ListUsers(ctx context.Context, q repo.Query) ([]domain.User, error) {
	res, err := e.Repo.ListUsers(ctx, q)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return res, nil
}

func (e Engine) ListTasks(ctx context.Context, q repo.Query) ([]domain.Task, error) {
	res, err := e.Repo.ListTasks(ctx, q)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return res, nil
}

func (e Engine) ListAssignments(ctx context.Context, q repo.Query) ([]domain.AssignmentView, error) {
	res, err := e.Repo.ListAssignments(ctx, q)
	if err != nil {
		return nil, storeErr("list assignments", err)
	}
	return res, nil
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	res, err := e.Repo.LatestEvents(ctx, f)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return res, nil
}

func (e Engine) GetAssignment(ctx context.Context, id int64) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Assignment{}, domain.ErrAssignmentNotFound.WithMessage("assignment %d not found", id)
	}
	if err != nil {
		return domain.Assignment{}, storeErr("get assignment", err)
	}
	return a, nil
}

func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, domain.ErrTaskNotFound.WithMessage("task %d not found", id)
	}
	if err != nil {
		return domain.Task{}, storeErr("get task", err)
	}
	return t, nil
}
