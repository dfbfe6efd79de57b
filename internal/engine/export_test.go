package engine

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// WithAssignWriteHook returns a copy of e that calls fn in the transaction
// right before each assignment insert.
func WithAssignWriteHook(e Engine, fn func(ctx context.Context, tx *sqlx.Tx, taskID int64) error) Engine {
	e.beforeAssignWrite = fn
	return e
}

var AssignWriteErr = assignWriteErr
