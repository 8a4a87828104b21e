package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps one row per thread in a single-file database. Designed for:
//   - Development with zero setup
//   - Single-process deployments that must survive restarts
//
// The store enables WAL mode and a busy timeout, and creates its table on
// first use. Use ":memory:" for a throwaway database in tests.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path.
//
// Example:
//
//	st, err := store.NewSQLiteStore[analyst.SessionState]("./checkpoints.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path, now: time.Now}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	const threadsTable = `
		CREATE TABLE IF NOT EXISTS workflow_threads (
			thread_id TEXT NOT NULL PRIMARY KEY,
			state TEXT NOT NULL,
			status TEXT NOT NULL,
			node TEXT NOT NULL DEFAULT '',
			step INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, threadsTable); err != nil {
		return fmt.Errorf("failed to create workflow_threads table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_threads_updated ON workflow_threads(updated_at)"); err != nil {
		return fmt.Errorf("failed to create idx_threads_updated: %w", err)
	}
	return nil
}

func (s *SQLiteStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	if err := s.checkOpen(); err != nil {
		return Checkpoint[S]{}, err
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+" FROM workflow_threads WHERE thread_id = ?", threadID)
	return scanCheckpoint[S](row)
}

// Save implements Store.
//
// A first save (Version 0) inserts and fails with ErrConflict if the row
// already exists; later saves update only the row still at cp.Version.
func (s *SQLiteStore[S]) Save(ctx context.Context, cp Checkpoint[S]) (Checkpoint[S], error) {
	if err := s.checkOpen(); err != nil {
		return Checkpoint[S]{}, err
	}
	stateJSON, saved, err := prepareSave(cp, s.now())
	if err != nil {
		return Checkpoint[S]{}, err
	}

	var res sql.Result
	if cp.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO workflow_threads (thread_id, state, status, node, step, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(thread_id) DO NOTHING`,
			saved.ThreadID, stateJSON, string(saved.Status), saved.Node, saved.Step, saved.Version, saved.UpdatedAt.UnixMilli())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE workflow_threads
			SET state = ?, status = ?, node = ?, step = ?, version = ?, updated_at = ?
			WHERE thread_id = ? AND version = ?`,
			stateJSON, string(saved.Status), saved.Node, saved.Step, saved.Version, saved.UpdatedAt.UnixMilli(),
			saved.ThreadID, cp.Version)
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if n == 0 {
		return Checkpoint[S]{}, ErrConflict
	}
	return saved, nil
}

// Delete implements Store.
func (s *SQLiteStore[S]) Delete(ctx context.Context, threadID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM workflow_threads WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore[S]) List(ctx context.Context) ([]Info, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+infoColumns+" FROM workflow_threads ORDER BY updated_at DESC, thread_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return scanInfos(rows)
}

// Path returns the database location the store was opened with.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}

// Close releases the database. Further calls return ErrStoreClosed.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
