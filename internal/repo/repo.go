package repo

import (
	"context"
	"database/sql"
	"fmt"

	"choreline/internal/db"
	"choreline/internal/domain"

	"github.com/jmoiron/sqlx"
)

type Repo struct {
	DB *sqlx.DB
}

// Credential is a user row together with its stored password hash. It never
// leaves the credentials package.
type Credential struct {
	domain.User
	PasswordHash string `db:"password_hash"`
}

const (
	userColumns       = `id,username,created_at`
	taskColumns       = `id,name,description,created_at`
	assignmentColumns = `id,task_id,user_id,assigned_at,completed_at,approved,notes`
)

func (r Repo) Postgres() bool {
	return db.IsPostgres(r.DB)
}

func (r Repo) rebind(query string) string {
	return r.DB.Rebind(query)
}

// lockClause returns the row lock suffix for locking reads. SQLite serializes
// writers at BEGIN IMMEDIATE so it needs none.
func (r Repo) lockClause(lock bool) string {
	if lock && r.Postgres() {
		return " FOR UPDATE"
	}
	return ""
}

// Begin starts a write transaction.
func (r Repo) Begin(ctx context.Context) (*sqlx.Tx, error) {
	return r.DB.BeginTxx(ctx, nil)
}

func get(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) error {
	return translate(sqlx.GetContext(ctx, q, dest, query, args...))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// Users

func (r Repo) InsertUserTx(ctx context.Context, tx *sqlx.Tx, username, passwordHash, now string) (domain.User, error) {
	u := domain.User{Username: username, CreatedAt: now}
	err := tx.QueryRowxContext(ctx, r.rebind(`INSERT INTO users(username,password_hash,created_at) VALUES (?,?,?) RETURNING id`),
		username, passwordHash, now).Scan(&u.ID)
	if err != nil {
		return domain.User{}, translate(err)
	}
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return r.getUser(ctx, r.DB, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sqlx.Tx, id int64) (domain.User, error) {
	return r.getUser(ctx, tx, id)
}

func (r Repo) getUser(ctx context.Context, q sqlx.QueryerContext, id int64) (domain.User, error) {
	var u domain.User
	err := get(ctx, q, &u, r.rebind(`SELECT `+userColumns+` FROM users WHERE id=?`), id)
	return u, err
}

func (r Repo) GetCredentialByUsername(ctx context.Context, username string) (Credential, error) {
	var c Credential
	err := get(ctx, r.DB, &c, r.rebind(`SELECT `+userColumns+`,password_hash FROM users WHERE username=?`), username)
	return c, err
}

// LockUsersTx blocks concurrent registrations until tx ends, so the user count
// read next stays accurate. SQLite transactions are already serialized.
func (r Repo) LockUsersTx(ctx context.Context, tx *sqlx.Tx) error {
	if !r.Postgres() {
		return nil
	}
	_, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`)
	return err
}

func (r Repo) CountUsersTx(ctx context.Context, tx *sqlx.Tx) (int, error) {
	var n int
	err := get(ctx, tx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

// ListUserIDsTx returns every user id in ascending order.
func (r Repo) ListUserIDsTx(ctx context.Context, tx *sqlx.Tx) ([]int64, error) {
	var ids []int64
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY id`); err != nil {
		return nil, err
	}
	return ids, nil
}

// Tasks

func (r Repo) InsertTaskTx(ctx context.Context, tx *sqlx.Tx, name, description, now string) (domain.Task, error) {
	t := domain.Task{Name: name, Description: description, CreatedAt: now}
	err := tx.QueryRowxContext(ctx, r.rebind(`INSERT INTO tasks(name,description,created_at) VALUES (?,?,?) RETURNING id`),
		name, description, now).Scan(&t.ID)
	if err != nil {
		return domain.Task{}, translate(err)
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var t domain.Task
	err := get(ctx, r.DB, &t, r.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id=?`), id)
	return t, err
}

// GetTaskTx reads a task inside tx. With lock set the row is held until the
// transaction ends so concurrent claims on the same task queue up.
func (r Repo) GetTaskTx(ctx context.Context, tx *sqlx.Tx, id int64, lock bool) (domain.Task, error) {
	var t domain.Task
	err := get(ctx, tx, &t, r.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id=?`+r.lockClause(lock)), id)
	return t, err
}

// UnassignedTaskIDsTx returns, in ascending id order, the tasks that have no
// Open or PendingReview assignment.
func (r Repo) UnassignedTaskIDsTx(ctx context.Context, tx *sqlx.Tx) ([]int64, error) {
	var ids []int64
	err := tx.SelectContext(ctx, &ids, `SELECT t.id FROM tasks t
WHERE NOT EXISTS (SELECT 1 FROM assignments a WHERE a.task_id=t.id AND a.approved IS NULL)
ORDER BY t.id`)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Assignments

func (r Repo) InsertAssignmentTx(ctx context.Context, tx *sqlx.Tx, taskID, userID int64, now string) (domain.Assignment, error) {
	a := domain.Assignment{TaskID: taskID, UserID: userID, AssignedAt: now}
	err := tx.QueryRowxContext(ctx, r.rebind(`INSERT INTO assignments(task_id,user_id,assigned_at) VALUES (?,?,?) RETURNING id`),
		taskID, userID, now).Scan(&a.ID)
	if err != nil {
		return domain.Assignment{}, translate(err)
	}
	return a, nil
}

func (r Repo) GetAssignment(ctx context.Context, id int64) (domain.Assignment, error) {
	var a domain.Assignment
	err := get(ctx, r.DB, &a, r.rebind(`SELECT `+assignmentColumns+` FROM assignments WHERE id=?`), id)
	return a, err
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sqlx.Tx, id int64, lock bool) (domain.Assignment, error) {
	var a domain.Assignment
	err := get(ctx, tx, &a, r.rebind(`SELECT `+assignmentColumns+` FROM assignments WHERE id=?`+r.lockClause(lock)), id)
	return a, err
}

// ActiveAssignmentForTaskTx returns the Open or PendingReview assignment of a
// task, or ErrNotFound.
func (r Repo) ActiveAssignmentForTaskTx(ctx context.Context, tx *sqlx.Tx, taskID int64) (domain.Assignment, error) {
	var a domain.Assignment
	err := get(ctx, tx, &a, r.rebind(`SELECT `+assignmentColumns+` FROM assignments WHERE task_id=? AND approved IS NULL`), taskID)
	return a, err
}

// ActiveCountsByUserTx counts Open and PendingReview assignments per user.
// Users without any are absent from the map.
func (r Repo) ActiveCountsByUserTx(ctx context.Context, tx *sqlx.Tx) (map[int64]int, error) {
	var rows []struct {
		UserID int64 `db:"user_id"`
		N      int   `db:"n"`
	}
	if err := tx.SelectContext(ctx, &rows, `SELECT user_id, COUNT(*) AS n FROM assignments WHERE approved IS NULL GROUP BY user_id`); err != nil {
		return nil, err
	}
	counts := make(map[int64]int, len(rows))
	for _, row := range rows {
		counts[row.UserID] = row.N
	}
	return counts, nil
}

// MarkCompletedTx moves an Open or Rejected assignment to PendingReview.
// Clearing approved makes the row active again, so a redo that collides with
// another active assignment of the task fails with ErrUniqueViolation.
func (r Repo) MarkCompletedTx(ctx context.Context, tx *sqlx.Tx, id int64, now string, notes *string) error {
	res, err := tx.ExecContext(ctx, r.rebind(`UPDATE assignments SET completed_at=?, approved=NULL, notes=?
WHERE id=? AND (completed_at IS NULL OR approved=?)`), now, nullableStringPtr(notes), id, false)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

// MarkRejectedTx moves a PendingReview assignment to Rejected. completed_at
// is left as is.
func (r Repo) MarkRejectedTx(ctx context.Context, tx *sqlx.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, r.rebind(`UPDATE assignments SET approved=?
WHERE id=? AND completed_at IS NOT NULL AND approved IS NULL`), false, id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
