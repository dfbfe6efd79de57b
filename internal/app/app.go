package app

import (
	"context"
	"fmt"
	"log/slog"

	"choreline/internal/config"
	"choreline/internal/credentials"
	"choreline/internal/db"
	"choreline/internal/engine"
	"choreline/internal/metrics"
	"choreline/internal/migrate"

	"github.com/jmoiron/sqlx"
)

// App bundles the services built on one store connection.
type App struct {
	DB          *sqlx.DB
	Config      *config.Config
	Engine      engine.Engine
	Credentials credentials.Service
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// Open connects to the configured store, applies migrations and wires the
// engine and credential service.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN, Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	m := metrics.New("choreline")
	eng := engine.New(conn, cfg)
	eng.Metrics = m
	eng.Logger = logger
	logger.Debug("store ready", "driver", conn.DriverName())
	return &App{
		DB:          conn,
		Config:      cfg,
		Engine:      eng,
		Credentials: credentials.New(conn, cfg),
		Metrics:     m,
		Logger:      logger,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
