package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"choreline/internal/config"
	"choreline/internal/domain"
	"choreline/internal/events"
	"choreline/internal/repo"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// dummyHashes holds one hash per bcrypt cost. Authenticate compares against it
// when the username is unknown so a miss costs the same as a wrong password.
var dummyHashes sync.Map

func dummyHash(cost int) []byte {
	if h, ok := dummyHashes.Load(cost); ok {
		return h.([]byte)
	}
	h, err := bcrypt.GenerateFromPassword([]byte("choreline-dummy-password"), cost)
	if err != nil {
		h, _ = bcrypt.GenerateFromPassword([]byte("choreline-dummy-password"), bcrypt.DefaultCost)
	}
	actual, _ := dummyHashes.LoadOrStore(cost, h)
	return actual.([]byte)
}

type Service struct {
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sqlx.DB, cfg *config.Config) Service {
	return Service{
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: time.Now},
		Config: cfg,
		Now:    time.Now,
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) cost() int {
	if s.Config == nil {
		return bcrypt.DefaultCost
	}
	return s.Config.BcryptCost()
}

// Register creates a user with a bcrypt hash of password. New users receive
// the default role; the very first user also receives the bootstrap role.
func (s Service) Register(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, domain.ErrInvalidInput.WithMessage("username is required")
	}
	if password == "" {
		return domain.User{}, domain.ErrInvalidInput.WithMessage("password is required")
	}
	if len(password) > 72 {
		return domain.User{}, domain.ErrInvalidInput.WithMessage("password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost())
	if err != nil {
		return domain.User{}, domain.Unavailable("hash password", err)
	}

	tx, err := s.Repo.Begin(ctx)
	if err != nil {
		return domain.User{}, domain.Unavailable("begin", err)
	}
	defer tx.Rollback()

	if err := s.Repo.LockUsersTx(ctx, tx); err != nil {
		return domain.User{}, domain.Unavailable("lock users", err)
	}
	existing, err := s.Repo.CountUsersTx(ctx, tx)
	if err != nil {
		return domain.User{}, domain.Unavailable("count users", err)
	}
	ts := s.now().UTC().Format(time.RFC3339Nano)
	u, err := s.Repo.InsertUserTx(ctx, tx, username, string(hash), ts)
	if err != nil {
		if errors.Is(err, repo.ErrUniqueViolation) {
			return domain.User{}, domain.ErrDuplicateUsername.WithMessage("username %q already exists", username)
		}
		return domain.User{}, domain.Unavailable("insert user", err)
	}
	roles := s.initialRoles(existing == 0)
	for _, role := range roles {
		if err := s.Repo.AssignRoleTx(ctx, tx, u.ID, role); err != nil {
			return domain.User{}, domain.Unavailable("assign role", err)
		}
	}
	w := s.Events
	w.Now = s.now
	if err := w.Append(ctx, tx, events.TypeUserRegistered, events.KindUser, u.ID, u.ID,
		events.EventPayload{"username": u.Username, "roles": roles}); err != nil {
		return domain.User{}, domain.Unavailable("append event", err)
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(repo.Translate(err), repo.ErrUniqueViolation) {
			return domain.User{}, domain.ErrDuplicateUsername.WithMessage("username %q already exists", username)
		}
		return domain.User{}, domain.Unavailable("commit", err)
	}
	return u, nil
}

func (s Service) initialRoles(first bool) []string {
	roles := []string{}
	if s.Config == nil {
		return roles
	}
	if r := s.Config.RBAC.DefaultRole; r != "" {
		roles = append(roles, r)
	}
	if r := s.Config.RBAC.BootstrapRole; first && r != "" && r != s.Config.RBAC.DefaultRole {
		roles = append(roles, r)
	}
	return roles
}

// Authenticate checks a username and password. Unknown users, wrong passwords
// and empty input all yield ErrInvalidCredentials.
func (s Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash(s.cost()), []byte(password))
		return domain.User{}, domain.ErrInvalidCredentials
	}
	cred, err := s.Repo.GetCredentialByUsername(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash(s.cost()), []byte(password))
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, domain.Unavailable("get credential", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return cred.User, nil
}
