package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"choreline/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationsFS embed.FS

// Status is one migration as seen by the store.
type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

func provider(conn *sqlx.DB) (*goose.Provider, error) {
	dialect, dir := goose.DialectSQLite3, "sql/sqlite"
	if db.IsPostgres(conn) {
		dialect, dir = goose.DialectPostgres, "sql/postgres"
	}
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(dialect, conn.DB, sub)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

// Migrate applies embedded migrations in order.
func Migrate(ctx context.Context, conn *sqlx.DB) error {
	p, err := provider(conn)
	if err != nil {
		return err
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// List reports every embedded migration and whether it has been applied.
func List(ctx context.Context, conn *sqlx.DB) ([]Status, error) {
	p, err := provider(conn)
	if err != nil {
		return nil, err
	}
	results, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]Status, 0, len(results))
	for _, r := range results {
		out = append(out, Status{
			Version:   r.Source.Version,
			Name:      r.Source.Path,
			Applied:   r.State == goose.StateApplied,
			AppliedAt: r.AppliedAt,
		})
	}
	return out, nil
}
