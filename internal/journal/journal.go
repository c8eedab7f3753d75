// Package journal records what the view displayed in a SQLite database.
//
// A Journal is a view.Sink: every snapshot, command listing, event row,
// status change and reported error is appended with a sequence number shared
// across tables, so a session can be replayed in order afterwards. Event rows
// are de-duplicated by content fingerprint. The journal is a record of the
// display, not a store of business state.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/hyperdash/internal/clock"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - no schema
// 1 - initial tables
const currentSchemaVersion = 1

// Journal is a SQLite-backed view.Sink.
// Uses SQLite with WAL mode so the journal command can read while a watch
// session writes.
type Journal struct {
	db    *sql.DB
	seq   *clock.Sequence
	clock clock.Clock

	// failures counts writes that could not be recorded. Sink methods
	// cannot return errors, so failures are logged and counted.
	failures atomic.Int64
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock sets the clock used for recorded_at. Defaults to clock.Real.
func WithClock(c clock.Clock) Option {
	return func(j *Journal) {
		j.clock = c
	}
}

// Open creates or opens a journal database at path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	last, err := lastSeq(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{
		db:    db,
		seq:   clock.NewSequenceAt(last),
		clock: clock.Real{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Failures returns the number of entries that could not be written.
func (j *Journal) Failures() int64 {
	return j.failures.Load()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported version %d",
			version, currentSchemaVersion)
	}

	// Version 1 is the schema itself; later versions migrate from here.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// lastSeq returns the highest sequence number stored in any table.
func lastSeq(db *sql.DB) (int64, error) {
	var last int64
	err := db.QueryRow(`
		SELECT MAX(m) FROM (
			SELECT COALESCE(MAX(seq), 0) AS m FROM snapshots
			UNION ALL SELECT COALESCE(MAX(seq), 0) FROM commands
			UNION ALL SELECT COALESCE(MAX(seq), 0) FROM event_rows
			UNION ALL SELECT COALESCE(MAX(seq), 0) FROM status_changes
			UNION ALL SELECT COALESCE(MAX(seq), 0) FROM errors
		)
	`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("read last sequence: %w", err)
	}
	return last, nil
}

// exec runs one insert and logs instead of returning failures.
func (j *Journal) exec(op string, query string, args ...any) bool {
	if _, err := j.db.ExecContext(context.Background(), query, args...); err != nil {
		j.failures.Add(1)
		slog.Error("journal write failed", "op", op, "error", err)
		return false
	}
	return true
}
