package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/config"
	"coursehub/internal/db"
	"coursehub/internal/engine"
	"coursehub/internal/logging"
	"coursehub/internal/migrate"
)

// Context bundles what every entry point needs: config, an open and migrated
// database, and an engine wired to both.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sqlx.DB
	Engine    engine.Engine
	Log       *logging.Logger
}

// Open loads the workspace config (defaults when absent) unless cfg is given,
// opens the configured database and applies pending migrations.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *logging.Logger) (*Context, error) {
	if log == nil {
		log = logging.Nop()
	}
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOrDefault(workspace); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
		Workspace: workspace,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	eng.Log = log
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    eng,
		Log:       log,
	}, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
