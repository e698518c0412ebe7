// Package sqlite opens embedded SQLite databases through the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/animus-labs/runlog/internal/platform/env"
)

const MemoryPath = ":memory:"

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	busy, err := env.Duration("RUNLOG_SQLITE_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Path:        env.String("RUNLOG_SQLITE_PATH", "runlog.db"),
		BusyTimeout: busy,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("RUNLOG_SQLITE_PATH is required")
	}
	if c.BusyTimeout < 0 {
		return errors.New("RUNLOG_SQLITE_BUSY_TIMEOUT must be >= 0")
	}
	return nil
}

// Open returns a handle limited to a single connection: SQLite serialises
// writers anyway and an in-memory database exists only on the connection
// that created it.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}
