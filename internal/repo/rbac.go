package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func (r Repo) AssignRoleTx(ctx context.Context, tx *sqlx.Tx, userID int64, role string) error {
	_, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO user_roles(user_id, role) VALUES (?,?) ON CONFLICT DO NOTHING`), userID, role)
	return translate(err)
}

func (r Repo) RevokeRoleTx(ctx context.Context, tx *sqlx.Tx, userID int64, role string) error {
	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM user_roles WHERE user_id=? AND role=?`), userID, role)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	return r.userRoles(ctx, r.DB, userID)
}

func (r Repo) UserRolesTx(ctx context.Context, tx *sqlx.Tx, userID int64) ([]string, error) {
	return r.userRoles(ctx, tx, userID)
}

func (r Repo) userRoles(ctx context.Context, q sqlx.QueryerContext, userID int64) ([]string, error) {
	roles := []string{}
	if err := sqlx.SelectContext(ctx, q, &roles, r.rebind(`SELECT role FROM user_roles WHERE user_id=? ORDER BY role`), userID); err != nil {
		return nil, err
	}
	return roles, nil
}
