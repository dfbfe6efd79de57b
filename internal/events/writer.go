package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	TypeUserRegistered      = "user.registered"
	TypeTaskCreated         = "task.created"
	TypeAssignmentClaimed   = "assignment.claimed"
	TypeAssignmentCompleted = "assignment.completed"
	TypeAssignmentRejected  = "assignment.rejected"
	TypeRotationCompleted   = "rotation.completed"
	TypeRoleGranted         = "role.granted"
	TypeRoleRevoked         = "role.revoked"

	KindUser       = "user"
	KindTask       = "task"
	KindAssignment = "assignment"
	KindHousehold  = "household"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the
// change it describes. Zero ids are stored as NULL.
func (w Writer) Append(ctx context.Context, tx *sqlx.Tx, evtType, entityKind string, entityID, actorID int64, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, entityKind, nullableID(entityID), nullableID(actorID), string(data))
	return err
}

func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
