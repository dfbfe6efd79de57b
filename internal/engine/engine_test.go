package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"choreline/internal/config"
	"choreline/internal/credentials"
	"choreline/internal/db"
	"choreline/internal/domain"
	"choreline/internal/engine"
	"choreline/internal/migrate"
	"choreline/internal/repo"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	Engine engine.Engine
	Creds  credentials.Service
	Clock  *clock
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err, "open db")
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn), "migrate")

	cfg := config.Default("test household", "test-secret")
	cfg.Auth.BcryptCost = bcrypt.MinCost
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	eng := engine.New(conn, cfg)
	eng.Now = clk.Now
	creds := credentials.New(conn, cfg)
	creds.Now = clk.Now
	return testEnv{Engine: eng, Creds: creds, Clock: clk, Ctx: ctx}
}

func (env testEnv) user(t *testing.T, name string) domain.User {
	t.Helper()
	u, err := env.Creds.Register(env.Ctx, name, "password123")
	require.NoError(t, err)
	return u
}

func (env testEnv) task(t *testing.T, name string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, name, "", 0)
	require.NoError(t, err)
	return task
}

// approve sets the approval flag directly; no engine operation does this.
func (env testEnv) approve(t *testing.T, assignmentID int64) {
	t.Helper()
	_, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE assignments SET approved=1 WHERE id=?`, assignmentID)
	require.NoError(t, err)
}

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, "  Kitchen Cleaning ", "Clean the kitchen", 0)
	require.NoError(t, err)
	require.Equal(t, "Kitchen Cleaning", task.Name)
	require.Equal(t, "Clean the kitchen", task.Description)
	require.NotZero(t, task.ID)

	_, err = env.Engine.CreateTask(env.Ctx, "Kitchen Cleaning", "again", 0)
	require.ErrorIs(t, err, domain.ErrDuplicateTaskName)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))

	_, err = env.Engine.CreateTask(env.Ctx, "   ", "blank", 0)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateTaskPermissionGate(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Tasks.RequirePermission = true
	coordinator := env.user(t, "first") // bootstrap role
	member := env.user(t, "second")

	_, err := env.Engine.CreateTask(env.Ctx, "Trash", "", member.ID)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.CreateTask(env.Ctx, "Trash", "", 0)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.CreateTask(env.Ctx, "Trash", "", coordinator.ID)
	require.NoError(t, err)
}

func TestAssignTask(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	task := env.task(t, "Vacuuming")

	a, err := env.Engine.AssignTask(env.Ctx, task.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, a.TaskID)
	require.Equal(t, alice.ID, a.UserID)
	require.Equal(t, domain.StateOpen, a.State())
	require.Equal(t, "2024-01-01T00:00:00Z", a.AssignedAt)

	_, err = env.Engine.AssignTask(env.Ctx, task.ID, bob.ID)
	require.ErrorIs(t, err, domain.ErrTaskAlreadyAssigned)

	_, err = env.Engine.AssignTask(env.Ctx, 999, bob.ID)
	require.ErrorIs(t, err, domain.ErrTaskNotFound)
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))

	other := env.task(t, "Dishwashing")
	_, err = env.Engine.AssignTask(env.Ctx, other.ID, 999)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "Trash Duty")
	const n = 10
	users := make([]domain.User, n)
	for i := range users {
		users[i] = env.user(t, fmt.Sprintf("user%d", i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := env.Engine.AssignTask(env.Ctx, task.ID, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case domain.ReasonOf(err) == domain.ErrTaskAlreadyAssigned.Reason:
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()
	require.Equal(t, 1, wins)
	require.Equal(t, n-1, conflict)

	q, err := repo.ParseQuery(repo.ResourceAssignments, map[string][]string{"task_id": {fmt.Sprintf("eq.%d", task.ID)}})
	require.NoError(t, err)
	rows, err := env.Engine.ListAssignments(env.Ctx, q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestCompleteTask(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	task := env.task(t, "Kitchen")
	a, err := env.Engine.AssignTask(env.Ctx, task.ID, alice.ID)
	require.NoError(t, err)

	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, bob.ID, "")
	require.ErrorIs(t, err, domain.ErrNotOwner)
	require.Equal(t, domain.KindForbidden, domain.KindOf(err))

	env.Clock.Advance(time.Hour)
	done, err := env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "wiped the counters")
	require.NoError(t, err)
	require.Equal(t, domain.StatePendingReview, done.State())
	require.Nil(t, done.Approved)
	require.NotNil(t, done.CompletedAt)
	require.Equal(t, "2024-01-01T01:00:00Z", *done.CompletedAt)
	require.Equal(t, "wiped the counters", *done.Notes)

	stored, err := env.Engine.GetAssignment(env.Ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, done, stored)

	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "")
	require.ErrorIs(t, err, domain.ErrAlreadyPendingOrApproved)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))

	_, err = env.Engine.CompleteTask(env.Ctx, 4242, alice.ID, "")
	require.ErrorIs(t, err, domain.ErrAssignmentNotFound)
}

func TestNonOwnerForbiddenInEveryState(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	task := env.task(t, "Laundry")
	a, err := env.Engine.AssignTask(env.Ctx, task.ID, alice.ID)
	require.NoError(t, err)

	check := func(want domain.State) {
		t.Helper()
		cur, err := env.Engine.GetAssignment(env.Ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, want, cur.State())
		_, err = env.Engine.CompleteTask(env.Ctx, a.ID, bob.ID, "")
		require.ErrorIs(t, err, domain.ErrNotOwner, want)
	}
	check(domain.StateOpen)
	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "")
	require.NoError(t, err)
	check(domain.StatePendingReview)
	_, err = env.Engine.RejectTask(env.Ctx, a.ID, bob.ID, "streaks on the mirror")
	require.NoError(t, err)
	check(domain.StateRejected)
	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "")
	require.NoError(t, err)
	env.approve(t, a.ID)
	check(domain.StateApproved)
}

func TestRejectTask(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	task := env.task(t, "Bathroom")
	a, err := env.Engine.AssignTask(env.Ctx, task.ID, alice.ID)
	require.NoError(t, err)

	_, err = env.Engine.RejectTask(env.Ctx, a.ID, bob.ID, "not done yet")
	require.ErrorIs(t, err, domain.ErrNotPendingReview)

	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "")
	require.NoError(t, err)

	_, err = env.Engine.RejectTask(env.Ctx, a.ID, bob.ID, "  ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = env.Engine.RejectTask(env.Ctx, a.ID, 999, "missed a spot")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = env.Engine.RejectTask(env.Ctx, 999, bob.ID, "missed a spot")
	require.ErrorIs(t, err, domain.ErrAssignmentNotFound)

	rej, err := env.Engine.RejectTask(env.Ctx, a.ID, bob.ID, "missed a spot")
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, rej.State())
	require.NotNil(t, rej.CompletedAt)

	_, err = env.Engine.RejectTask(env.Ctx, a.ID, bob.ID, "again")
	require.ErrorIs(t, err, domain.ErrNotPendingReview)

	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{Type: "assignment.rejected"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	require.Equal(t, bob.ID, *evts[0].ActorID)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(evts[0].Payload), &payload))
	require.Equal(t, "missed a spot", payload["reason"])
}

func TestApprovedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	task := env.task(t, "Windows")
	a, err := env.Engine.AssignTask(env.Ctx, task.ID, alice.ID)
	require.NoError(t, err)
	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "")
	require.NoError(t, err)
	env.approve(t, a.ID)

	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "")
	require.ErrorIs(t, err, domain.ErrAlreadyPendingOrApproved)
	_, err = env.Engine.RejectTask(env.Ctx, a.ID, bob.ID, "late")
	require.ErrorIs(t, err, domain.ErrNotPendingReview)

	next, err := env.Engine.AssignTask(env.Ctx, task.ID, bob.ID)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, next.ID)
}

func TestRedoBlockedWhileTaskHasAnotherActiveAssignment(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	task := env.task(t, "Garden")
	a, err := env.Engine.AssignTask(env.Ctx, task.ID, alice.ID)
	require.NoError(t, err)
	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "")
	require.NoError(t, err)
	_, err = env.Engine.RejectTask(env.Ctx, a.ID, bob.ID, "weeds left")
	require.NoError(t, err)

	_, err = env.Engine.AssignTask(env.Ctx, task.ID, bob.ID)
	require.NoError(t, err, "rejected assignments are not active")

	_, err = env.Engine.CompleteTask(env.Ctx, a.ID, alice.ID, "redo")
	require.ErrorIs(t, err, domain.ErrTaskAlreadyAssigned)
	cur, err := env.Engine.GetAssignment(env.Ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, cur.State())
}

func TestEndToEndRejectRedo(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "A")
	b := env.user(t, "B")

	task, err := env.Engine.CreateTask(env.Ctx, "T1", "first chore", 0)
	require.NoError(t, err)
	asg, err := env.Engine.AssignTask(env.Ctx, task.ID, a.ID)
	require.NoError(t, err)

	env.Clock.Advance(time.Minute)
	done, err := env.Engine.CompleteTask(env.Ctx, asg.ID, a.ID, "")
	require.NoError(t, err)
	firstCompletion := *done.CompletedAt

	_, err = env.Engine.CreateTask(env.Ctx, "T1", "dup", 0)
	require.ErrorIs(t, err, domain.ErrDuplicateTaskName)

	rej, err := env.Engine.RejectTask(env.Ctx, asg.ID, b.ID, "not clean")
	require.NoError(t, err)
	require.Equal(t, asg.ID, rej.ID)
	require.NotNil(t, rej.Approved)
	require.False(t, *rej.Approved)
	require.Equal(t, firstCompletion, *rej.CompletedAt)

	env.Clock.Advance(time.Minute)
	redo, err := env.Engine.CompleteTask(env.Ctx, asg.ID, a.ID, "second pass")
	require.NoError(t, err)
	require.Equal(t, asg.ID, redo.ID)
	require.Nil(t, redo.Approved)
	require.NotEqual(t, firstCompletion, *redo.CompletedAt)
	require.Equal(t, domain.StatePendingReview, redo.State())

	stored, err := env.Engine.GetAssignment(env.Ctx, asg.ID)
	require.NoError(t, err)
	require.Equal(t, redo, stored)

	_, err = env.Engine.CreateTask(env.Ctx, "T1", "dup", 0)
	require.ErrorIs(t, err, domain.ErrDuplicateTaskName)
}

func TestGrantAndRevokeRole(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "first")
	bob := env.user(t, "bob")

	require.ErrorIs(t, env.Engine.GrantRole(env.Ctx, bob.ID, "wizard", 0), domain.ErrInvalidInput)
	require.ErrorIs(t, env.Engine.GrantRole(env.Ctx, 999, "coordinator", 0), domain.ErrUserNotFound)
	require.NoError(t, env.Engine.GrantRole(env.Ctx, bob.ID, "coordinator", 0))
	require.NoError(t, env.Engine.GrantRole(env.Ctx, bob.ID, "coordinator", 0))

	who, err := env.Engine.Auth.Whoami(env.Ctx, bob.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"coordinator", "member"}, who.Roles)
	require.Contains(t, who.Permissions, config.PermRotationRun)

	require.NoError(t, env.Engine.RevokeRole(env.Ctx, bob.ID, "coordinator", 0))
	require.ErrorIs(t, env.Engine.RevokeRole(env.Ctx, bob.ID, "coordinator", 0), domain.ErrInvalidInput)
}
