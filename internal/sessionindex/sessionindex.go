// Package sessionindex maintains an optional derived SQLite index over
// cryo.log's session events (SPEC_FULL.md §4.11), grounded on the teacher's
// internal/statedb package: WAL mode, a busy timeout, a package-level
// singleton, a SchemaVersion constant, and idempotent
// CREATE TABLE IF NOT EXISTS migrations. Every write here is best-effort —
// the text log remains the sole authoritative record (spec.md §8), and
// `cryo status` always scans cryo.log directly without reading the index.
package sessionindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema. Bump when adding a
// migration to ensureSchema.
const SchemaVersion = 1

// DB wraps a SQLite database recording one project's session history.
// Safe for concurrent use from multiple goroutines in one process; WAL
// mode plus a busy timeout make it also safe for a second process (e.g.
// a `cryo status` invocation) to read concurrently.
type DB struct {
	sql *sql.DB
}

var (
	global   *DB
	globalMu sync.RWMutex
)

// SetGlobal installs db as the package-level singleton returned by
// GetGlobal. Passing nil clears it. The event log writer does not use the
// singleton; it receives its indexer through eventlog.Writer.WithIndex.
func SetGlobal(db *DB) {
	globalMu.Lock()
	global = db
	globalMu.Unlock()
}

// GetGlobal returns the current singleton, or nil if none is installed.
func GetGlobal() *DB {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Open creates or opens the index database at path, enabling WAL mode and
// a busy timeout, and ensures the schema exists.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sessionindex: mkdir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionindex: open: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sessionindex: wal mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sessionindex: busy timeout: %w", err)
	}

	db := &DB{sql: sqlDB}
	if err := db.ensureSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	return db.sql.Close()
}

func (db *DB) ensureSchema() error {
	tx, err := db.sql.Begin()
	if err != nil {
		return fmt.Errorf("sessionindex: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("sessionindex: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_number  INTEGER PRIMARY KEY,
			started_at      INTEGER NOT NULL,
			ended_at        INTEGER,
			outcome         TEXT NOT NULL DEFAULT '',
			provider_index  INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("sessionindex: create sessions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			session_number INTEGER NOT NULL,
			offset         INTEGER NOT NULL,
			timestamp      INTEGER NOT NULL,
			kind           TEXT NOT NULL,
			raw_line       TEXT NOT NULL,
			PRIMARY KEY (session_number, offset)
		)
	`); err != nil {
		return fmt.Errorf("sessionindex: create events: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", SchemaVersion),
	); err != nil {
		return fmt.Errorf("sessionindex: set schema version: %w", err)
	}

	return tx.Commit()
}

// SessionStarted records a new session row. Implements eventlog.Indexer.
func (db *DB) SessionStarted(sessionNumber uint32, startedAt time.Time, providerIndex int) error {
	_, err := db.sql.Exec(
		`INSERT OR REPLACE INTO sessions (session_number, started_at, provider_index) VALUES (?, ?, ?)`,
		sessionNumber, startedAt.Unix(), providerIndex,
	)
	return err
}

// Event appends one raw event line's metadata. Implements eventlog.Indexer.
func (db *DB) Event(sessionNumber uint32, offset int64, timestamp time.Time, kind, rawLine string) error {
	_, err := db.sql.Exec(
		`INSERT OR REPLACE INTO events (session_number, offset, timestamp, kind, raw_line) VALUES (?, ?, ?, ?, ?)`,
		sessionNumber, offset, timestamp.Unix(), kind, rawLine,
	)
	return err
}

// SessionEnded records a session's terminal outcome. Implements
// eventlog.Indexer.
func (db *DB) SessionEnded(sessionNumber uint32, endedAt time.Time, outcome string) error {
	_, err := db.sql.Exec(
		`UPDATE sessions SET ended_at = ?, outcome = ? WHERE session_number = ?`,
		endedAt.Unix(), outcome, sessionNumber,
	)
	return err
}

// SessionRow is one row of the derived sessions table.
type SessionRow struct {
	SessionNumber uint32
	StartedAt     time.Time
	EndedAt       *time.Time
	Outcome       string
	ProviderIndex int
}

// LatestSession returns the most recently started session, if any.
func (db *DB) LatestSession() (SessionRow, bool, error) {
	row := db.sql.QueryRow(`
		SELECT session_number, started_at, ended_at, outcome, provider_index
		FROM sessions ORDER BY session_number DESC LIMIT 1
	`)
	var r SessionRow
	var startedUnix int64
	var endedUnix sql.NullInt64
	if err := row.Scan(&r.SessionNumber, &startedUnix, &endedUnix, &r.Outcome, &r.ProviderIndex); err != nil {
		if err == sql.ErrNoRows {
			return SessionRow{}, false, nil
		}
		return SessionRow{}, false, err
	}
	r.StartedAt = time.Unix(startedUnix, 0)
	if endedUnix.Valid {
		t := time.Unix(endedUnix.Int64, 0)
		r.EndedAt = &t
	}
	return r, true, nil
}

// SessionsSince returns every session row started at or after since,
// ordered oldest-first. The Reporter and status server do not call it;
// both scan cryo.log.
func (db *DB) SessionsSince(since time.Time) ([]SessionRow, error) {
	rows, err := db.sql.Query(`
		SELECT session_number, started_at, ended_at, outcome, provider_index
		FROM sessions WHERE started_at >= ? ORDER BY session_number
	`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SessionRow
	for rows.Next() {
		var r SessionRow
		var startedUnix int64
		var endedUnix sql.NullInt64
		if err := rows.Scan(&r.SessionNumber, &startedUnix, &endedUnix, &r.Outcome, &r.ProviderIndex); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(startedUnix, 0)
		if endedUnix.Valid {
			t := time.Unix(endedUnix.Int64, 0)
			r.EndedAt = &t
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
