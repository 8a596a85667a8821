// Package manifest persists one row per finished pull task to SQLite so
// operators can audit what a run retrieved without scraping the log file.
// Writes are best-effort: a manifest error never fails the pull that
// triggered it.
package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// Store writes pull records into a SQLite database. A nil *Store is a valid
// no-op sink, so callers never need to branch on whether the manifest is
// enabled.
type Store struct {
	db      *sql.DB
	session string
}

// Record describes the terminal outcome of one pull task.
type Record struct {
	Filename   string
	Bytes      int64
	Attempts   int
	OK         bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Open creates (or opens) the SQLite database at path and ensures the schema
// exists. The session identifier is stamped on every row written through the
// returned store.
func Open(path, session string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("manifest: database path is empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("manifest: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, session: session}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS pull_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session TEXT,
    filename TEXT,
    bytes INTEGER,
    attempts INTEGER,
    ok INTEGER,
    started_at INTEGER,
    finished_at INTEGER
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("manifest: init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts the outcome of one pull task. Insert failures are logged and
// swallowed.
func (s *Store) Record(rec Record) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.Exec(`
INSERT INTO pull_records (session, filename, bytes, attempts, ok, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.session,
		rec.Filename,
		rec.Bytes,
		rec.Attempts,
		boolToInt(rec.OK),
		rec.StartedAt.UTC().Unix(),
		rec.FinishedAt.UTC().Unix(),
	)
	if err != nil {
		log.Warn().Err(err).Str("file", rec.Filename).Msg("manifest insert failed")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
