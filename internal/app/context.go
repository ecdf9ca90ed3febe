package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"playbook/internal/config"
	"playbook/internal/db"
	"playbook/internal/engine"
	"playbook/internal/migrate"
)

// Workspace is an opened playbook workspace: the migrated database, the
// playbook.yml config (defaults when absent) and an engine over both.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Logger *slog.Logger
}

// Open ensures the workspace directory exists, loads config and applies
// pending migrations. A nil logger gets a stderr logger at the configured
// level. Callers must Close the workspace.
func Open(ctx context.Context, dir string, logger *slog.Logger) (*Workspace, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logger == nil {
		if logger, err = NewLogger(cfg.Log.Level, os.Stderr); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	return &Workspace{
		Dir:    dir,
		DB:     conn,
		Config: cfg,
		Engine: e,
		Logger: logger,
	}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// NewLogger builds the text logger for the configured level. An empty
// level means info.
func NewLogger(level string, out io.Writer) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), nil
}
