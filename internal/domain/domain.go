package domain

type User struct {
	ID        int64  `json:"user_id" db:"id"`
	Username  string `json:"username" db:"username"`
	CreatedAt string `json:"created_at" db:"created_at" format:"date-time"`
}

type Task struct {
	ID          int64  `json:"task_id" db:"id"`
	Name        string `json:"task_name" db:"name"`
	Description string `json:"description" db:"description"`
	CreatedAt   string `json:"created_at" db:"created_at" format:"date-time"`
}

// Assignment binds one task to one user. CompletedAt and Approved are the
// only columns that change after insert; together they encode the State.
type Assignment struct {
	ID          int64   `json:"assignment_id" db:"id"`
	TaskID      int64   `json:"task_id" db:"task_id"`
	UserID      int64   `json:"user_id" db:"user_id"`
	AssignedAt  string  `json:"assigned_at" db:"assigned_at" format:"date-time"`
	CompletedAt *string `json:"completed_at" db:"completed_at" format:"date-time"`
	Approved    *bool   `json:"is_approved" db:"approved"`
	Notes       *string `json:"notes,omitempty" db:"notes"`
}

// State derives the lifecycle state from the stored nullable columns.
func (a Assignment) State() State {
	return StateOf(a.CompletedAt != nil, a.Approved)
}

// AssignmentView is an assignment row with its user and task optionally
// embedded.
type AssignmentView struct {
	Assignment
	Users *UserRef `json:"users,omitempty"`
	Tasks *TaskRef `json:"tasks,omitempty"`
}

type UserRef struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type TaskRef struct {
	TaskID      int64  `json:"task_id"`
	TaskName    string `json:"task_name"`
	Description string `json:"description"`
}

type Event struct {
	ID         int64  `json:"id" db:"id"`
	TS         string `json:"ts" db:"ts" format:"date-time"`
	Type       string `json:"type" db:"type"`
	EntityKind string `json:"entity_kind" db:"entity_kind"`
	EntityID   *int64 `json:"entity_id,omitempty" db:"entity_id"`
	ActorID    *int64 `json:"actor_id,omitempty" db:"actor_id"`
	Payload    string `json:"payload_json" db:"payload_json"`
}
