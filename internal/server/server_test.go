package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"choreline/internal/config"
	"choreline/internal/credentials"
	"choreline/internal/db"
	"choreline/internal/engine"
	"choreline/internal/metrics"
	"choreline/internal/migrate"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("test household", "test-secret")
	cfg.Auth.BcryptCost = bcrypt.MinCost
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m := metrics.New("choreline")
	e := engine.New(conn, cfg)
	e.Metrics = m
	handler, err := New(Config{
		Engine:      e,
		Credentials: credentials.New(conn, cfg),
		Auth:        AuthConfig{TokenSecret: cfg.Auth.TokenSecret},
		Metrics:     m,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope %s: %v", string(data), err)
	}
	return env.Error.Code
}

func register(t *testing.T, srv *testServer, name string) int64 {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/rpc/register_user", map[string]any{
		"p_username": name,
		"p_password": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	body := decode[UserResponse](t, data)
	require.Equal(t, "User registered successfully", body.Message)
	return body.UserID
}

func login(t *testing.T, srv *testServer, name string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/rpc/login", map[string]any{
		"p_username": name,
		"p_password": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	body := decode[LoginResponse](t, data)
	require.NotEmpty(t, body.Token)
	return map[string]string{"Authorization": "Bearer " + body.Token}
}

func createTask(t *testing.T, srv *testServer, name string) int64 {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/rpc/create_task", map[string]any{
		"p_task_name":   name,
		"p_description": name + " description",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return decode[TaskResponse](t, data).TaskID
}

func TestAssignmentLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	user1 := register(t, srv, "user1")
	user2 := register(t, srv, "user2")
	taskID := createTask(t, srv, "Kitchen Cleaning")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/rpc/assign_task", map[string]any{
		"p_task_id": taskID,
		"p_user_id": user1,
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	assigned := decode[AssignTaskResponse](t, data)
	require.Equal(t, user1, assigned.UserID)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/assign_task", map[string]any{
		"p_task_id": taskID,
		"p_user_id": user2,
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "task_already_assigned", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/complete_task", map[string]any{
		"p_assignment_id": assigned.AssignmentID,
		"p_user_id":       user2,
	}, nil)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Equal(t, "not_owner", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/complete_task", map[string]any{
		"p_assignment_id": assigned.AssignmentID,
		"p_user_id":       user1,
		"p_notes":         "done",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	done := decode[TransitionResponse](t, data)
	require.Equal(t, "Task completed successfully", done.Message)
	require.Equal(t, "pending_review", string(done.Assignment.State))
	require.NotNil(t, done.Assignment.CompletedAt)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/complete_task", map[string]any{
		"p_assignment_id": assigned.AssignmentID,
		"p_user_id":       user1,
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "already_pending_or_approved", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/reject_task", map[string]any{
		"p_assignment_id": assigned.AssignmentID,
		"p_reviewer_id":   user2,
		"p_reason":        "floor still sticky",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rejected := decode[TransitionResponse](t, data)
	require.Equal(t, "rejected", string(rejected.Assignment.State))

	res, data = doJSON(t, client, http.MethodGet,
		srv.URL+"/task_assignments?select=*,users(username),tasks(task_name)&state=rejected", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rows := decode[[]map[string]any](t, data)
	require.Len(t, rows, 1)
	require.Equal(t, "user1", rows[0]["users"].(map[string]any)["username"])
	require.Equal(t, "Kitchen Cleaning", rows[0]["tasks"].(map[string]any)["task_name"])
	require.Equal(t, false, rows[0]["is_approved"])
}

func TestRotateTasksRequiresCoordinatorToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	register(t, srv, "user1")
	register(t, srv, "user2")
	for _, name := range []string{"Trash Duty", "Vacuuming", "Dishwashing"} {
		createTask(t, srv, name)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/rpc/rotate_tasks", nil, nil)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Equal(t, "permission_denied", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/rotate_tasks", nil, login(t, srv, "user2"))
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Equal(t, "permission_denied", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/rotate_tasks", nil, login(t, srv, "user1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rotated := decode[RotateTasksResponse](t, data)
	require.Equal(t, 3, rotated.Rotated)
	require.Equal(t, "Tasks rotated successfully", rotated.Message)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/task_assignments?state=open", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[[]map[string]any](t, data), 3)
}

func TestTokenIdentity(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	user1 := register(t, srv, "user1")
	user2 := register(t, srv, "user2")
	taskID := createTask(t, srv, "Bathroom Cleaning")
	auth1 := login(t, srv, "user1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/rpc/assign_task", map[string]any{
		"p_task_id": taskID,
		"p_user_id": user2,
	}, auth1)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Equal(t, "actor_mismatch", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/assign_task", map[string]any{
		"p_task_id": taskID,
	}, auth1)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	require.Equal(t, user1, decode[AssignTaskResponse](t, data).UserID)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/me", nil, auth1)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[WhoAmIResponse](t, data)
	require.Equal(t, "user1", me.Username)
	require.Contains(t, me.Roles, "coordinator")
	require.Contains(t, me.Permissions, config.PermRotationRun)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/tasks", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "invalid_token", errorCode(t, data))
}

func TestAccountErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	register(t, srv, "user1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/rpc/register_user", map[string]any{
		"p_username": "user1",
		"p_password": "other",
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "duplicate_username", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/login", map[string]any{
		"p_username": "user1",
		"p_password": "wrong",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "invalid_credentials", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/login", map[string]any{
		"p_username": "nobody",
		"p_password": "password123",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "invalid_credentials", errorCode(t, data))

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/create_task", map[string]any{}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/rpc/assign_task", map[string]any{
		"p_task_id": 999,
		"p_user_id": 1,
	}, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestReadFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	register(t, srv, "user1")
	register(t, srv, "user2")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/users?username=eq.user2", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	users := decode[[]map[string]any](t, data)
	require.Len(t, users, 1)
	require.Equal(t, "user2", users[0]["username"])
	require.NotContains(t, string(data), "password")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/users?order=user_id.desc&limit=1", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	users = decode[[]map[string]any](t, data)
	require.Len(t, users, 1)
	require.Equal(t, "user2", users[0]["username"])

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/users?password_hash=eq.x", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "invalid_filter", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/task_assignments?state=finished", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "invalid_filter", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/tasks", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "[]", strings.TrimSpace(string(data)))
}

func TestEventsAndOperationalEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	register(t, srv, "user1")
	createTask(t, srv, "Living Room Tidying")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/events?type=task.created", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[paginatedEvents](t, data)
	require.Len(t, page.Items, 1)
	require.Equal(t, "task", page.Items[0].EntityKind)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/events?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page = decode[paginatedEvents](t, data)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/events?cursor="+page.NextCursor, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[paginatedEvents](t, data).Items, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Equal(t, "test household", decode[IndexResponse](t, data).Household)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(data), "ok")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(data), "/rpc/complete_task")
	require.Contains(t, string(data), "bearerAuth")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(data), "choreline_engine_operations_total")
}
