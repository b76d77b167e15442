// Package store is Aphrodite's persistence layer: an embedded DuckDB
// database holding jobs, job items, schedules, and the Config Store's
// settings tables. It owns schema migrations and a small set of
// compare-and-set helpers the job engine relies on for lost-update safety.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
)

// Store wraps the DuckDB connection pool and exposes the tables Aphrodite
// persists state in.
type Store struct {
	conn *sql.DB
}

// Open creates (if absent) and opens the database at path, applying every
// pending migration.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.New("store.Open", apperr.StorageIO, err)
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, apperr.New("store.Open", apperr.StorageIO, err)
	}
	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// DB exposes the raw *sql.DB for packages that need direct query access
// (e.g. internal/configstore).
func (s *Store) DB() *sql.DB {
	return s.conn
}

type migration struct {
	version     int
	name        string
	description string
	sql         string
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func migrations() []migration {
	return []migration{
		{
			version:     1,
			name:        "initial_schema",
			description: "jobs, job_items, job_history, schedules, settings, caches",
			sql:         initialSchema,
		},
	}
}

// migrate applies every migration that has not yet been recorded in
// schema_migrations, in version order. Migrations must be append-only.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, migrationsTable); err != nil {
		return apperr.New("store.migrate", apperr.StorageIO, fmt.Errorf("creating schema_migrations: %w", err))
	}

	applied := make(map[int]bool)
	rows, err := s.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return apperr.New("store.migrate", apperr.StorageIO, err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return apperr.New("store.migrate", apperr.StorageIO, err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return apperr.New("store.migrate", apperr.StorageIO, err)
	}

	applyCount := 0
	for _, m := range migrations() {
		if applied[m.version] {
			continue
		}
		if _, err := s.conn.ExecContext(ctx, m.sql); err != nil {
			return apperr.New("store.migrate", apperr.StorageIO, fmt.Errorf("applying migration v%d (%s): %w", m.version, m.name, err))
		}
		if _, err := s.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
			m.version, m.name, m.description); err != nil {
			return apperr.New("store.migrate", apperr.StorageIO, err)
		}
		applyCount++
	}
	if applyCount > 0 {
		logging.Info().Int("count", applyCount).Msg("applied database migrations")
	}
	return nil
}
