package auth

import (
	"context"
	"fmt"
	"sort"

	"choreline/internal/config"
	"choreline/internal/domain"
	"choreline/internal/repo"

	"github.com/jmoiron/sqlx"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Unwrap lets callers match on domain.ErrPermissionDenied.
func (e ForbiddenError) Unwrap() error {
	return domain.ErrPermissionDenied.WithMessage("permission %s required", e.Permission)
}

// Service resolves stored user roles against the permissions configured per
// role.
type Service struct {
	Repo   repo.Repo
	Config *config.Config
}

func (s Service) UserPermissions(ctx context.Context, tx *sqlx.Tx, userID int64) ([]string, error) {
	roles, err := s.Repo.UserRolesTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	return s.permissionsFor(roles), nil
}

func (s Service) permissionsFor(roles []string) []string {
	if s.Config == nil {
		return nil
	}
	set := s.Config.Permissions(roles)
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

func (s Service) UserHasPermission(ctx context.Context, tx *sqlx.Tx, userID int64, perm string) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	perms, err := s.UserPermissions(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

// Require returns ForbiddenError unless userID holds perm.
func (s Service) Require(ctx context.Context, tx *sqlx.Tx, userID int64, perm string) error {
	ok, err := s.UserHasPermission(ctx, tx, userID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

// Whoami describes a user's roles and effective permissions.
type Whoami struct {
	User        domain.User `json:"user"`
	Roles       []string    `json:"roles"`
	Permissions []string    `json:"permissions"`
}

func (s Service) Whoami(ctx context.Context, userID int64) (Whoami, error) {
	u, err := s.Repo.GetUser(ctx, userID)
	if err != nil {
		return Whoami{}, err
	}
	roles, err := s.Repo.UserRoles(ctx, userID)
	if err != nil {
		return Whoami{}, err
	}
	perms := s.permissionsFor(roles)
	return Whoami{User: u, Roles: roles, Permissions: perms}, nil
}
