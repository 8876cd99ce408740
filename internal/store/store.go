// Package store persists optional structured event-log rows (results
// shown, actions, submissions, SOM queries) to SQLite, grounded on the
// teacher's pkg/core.SQLiteStore.Init — same driver
// (modernc.org/sqlite, CGO-free), same WAL/busy-timeout pragmas, same
// connection-pool tuning — repurposed from vector-embedding rows to
// retrieval-engine event rows. A zero-value *Store (never Opened) or
// one built from an empty path is a no-op sink, matching
// internal/eventlog's "optional" contract.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/logging"
)

// Store is a structured, append-only event log backed by SQLite.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
	log    logging.Logger
}

// Open creates (if needed) and opens the SQLite database at path,
// tunes the connection pool, and creates the event tables. An empty
// path returns a no-op Store whose every method silently succeeds.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NopLogger()
	}
	if path == "" {
		return &Store{closed: true, log: log}, nil
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.WrapLoad("store.open", fmt.Errorf("opening database: %w", err))
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(2 * time.Hour)

	s := &Store{db: db, path: path, log: log}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, errs.WrapLoad("store.open", err)
	}
	log.Info("event store opened", "path", path)
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS rescores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		context_id INTEGER NOT NULL,
		used_text INTEGER NOT NULL,
		used_canvas_text INTEGER NOT NULL,
		used_canvas_bitmap INTEGER NOT NULL,
		used_relocation INTEGER NOT NULL,
		used_feedback INTEGER NOT NULL,
		used_filters INTEGER NOT NULL,
		used_knn INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rescores_context ON rescores(context_id);

	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		context_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		frame_id INTEGER,
		new_state INTEGER,
		kind TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_context ON actions(context_id);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		context_id INTEGER NOT NULL,
		frame_id INTEGER NOT NULL,
		result TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS som_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		context_id INTEGER NOT NULL,
		slot INTEGER NOT NULL,
		frame_count INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("creating event tables: %w", err)
	}
	return nil
}

// Close releases the underlying database handle. A no-op on a Store
// opened with an empty path.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
