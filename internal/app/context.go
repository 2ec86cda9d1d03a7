package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/engine"
	"certline/internal/migrate"
)

// Overrides replace config values, typically from CERTLINE_* env or flags.
type Overrides struct {
	RenderBaseURL string
	RenderAPIKey  string
	PublicBaseURL string
	ConfigPath    string
}

// Workspace is an opened certline workspace: its database, config and engine.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares the workspace directory, migrates the database and loads
// certline.yml, falling back to defaults when the file is absent. Attempts
// a previous process left running are marked failed.
func Open(ctx context.Context, dir string, ov Overrides, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return nil, err
	}
	cfg, err := ResolveConfig(dir, ov)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg, dir)
	e.Logger = logger
	if n, err := e.RecoverAttempts(ctx); err != nil {
		conn.Close()
		return nil, err
	} else if n > 0 {
		logger.Warn("marked interrupted exports as failed", "count", n)
	}
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: e}, nil
}

// ResolveConfig loads the workspace config, or the file at ov.ConfigPath,
// and applies overrides.
func ResolveConfig(dir string, ov Overrides) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if ov.ConfigPath != "" {
		cfg, err = config.FromFile(ov.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(dir)
	}
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(ov.RenderBaseURL); v != "" {
		cfg.Render.BaseURL = v
	}
	if v := strings.TrimSpace(ov.RenderAPIKey); v != "" {
		cfg.Render.APIKey = v
	}
	if v := strings.TrimSpace(ov.PublicBaseURL); v != "" {
		cfg.Storage.PublicBaseURL = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Close waits for background exports and closes the database.
func (w *Workspace) Close() error {
	w.Engine.Wait()
	return w.DB.Close()
}
