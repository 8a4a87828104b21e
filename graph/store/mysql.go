package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for deployments where several server processes share threads.
// The version column makes concurrent writers safe: the loser of a race gets
// ErrConflict instead of silently overwriting.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// NewMySQLStore connects using dsn and creates the table if needed.
//
// DSN format:
//
//	user:password@tcp(localhost:3306)/queryflow
//
// Never hardcode credentials; read the DSN from the environment (see config).
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore[S]{db: db, now: time.Now}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	const threadsTable = `
		CREATE TABLE IF NOT EXISTS workflow_threads (
			thread_id VARCHAR(255) NOT NULL PRIMARY KEY,
			state JSON NOT NULL,
			status VARCHAR(32) NOT NULL,
			node VARCHAR(255) NOT NULL DEFAULT '',
			step INT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_threads_updated (updated_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, threadsTable); err != nil {
		return fmt.Errorf("failed to create workflow_threads table: %w", err)
	}
	return nil
}

func (m *MySQLStore[S]) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Load implements Store.
func (m *MySQLStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	if err := m.checkOpen(); err != nil {
		return Checkpoint[S]{}, err
	}
	row := m.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+" FROM workflow_threads WHERE thread_id = ?", threadID)
	return scanCheckpoint[S](row)
}

// Save implements Store with compare-and-swap on the version column.
func (m *MySQLStore[S]) Save(ctx context.Context, cp Checkpoint[S]) (Checkpoint[S], error) {
	if err := m.checkOpen(); err != nil {
		return Checkpoint[S]{}, err
	}
	stateJSON, saved, err := prepareSave(cp, m.now())
	if err != nil {
		return Checkpoint[S]{}, err
	}

	if cp.Version == 0 {
		_, err = m.db.ExecContext(ctx, `
			INSERT INTO workflow_threads (thread_id, state, status, node, step, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			saved.ThreadID, stateJSON, string(saved.Status), saved.Node, saved.Step, saved.Version, saved.UpdatedAt.UnixMilli())
		if isDuplicateEntry(err) {
			return Checkpoint[S]{}, ErrConflict
		}
		if err != nil {
			return Checkpoint[S]{}, fmt.Errorf("failed to save checkpoint: %w", err)
		}
		return saved, nil
	}

	res, err := m.db.ExecContext(ctx, `
		UPDATE workflow_threads
		SET state = ?, status = ?, node = ?, step = ?, version = ?, updated_at = ?
		WHERE thread_id = ? AND version = ?`,
		stateJSON, string(saved.Status), saved.Node, saved.Step, saved.Version, saved.UpdatedAt.UnixMilli(),
		saved.ThreadID, cp.Version)
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	// The version always changes, so MySQL reports the row as affected when it matched.
	n, err := res.RowsAffected()
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if n == 0 {
		return Checkpoint[S]{}, ErrConflict
	}
	return saved, nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

// Delete implements Store.
func (m *MySQLStore[S]) Delete(ctx context.Context, threadID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, "DELETE FROM workflow_threads WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// List implements Store.
func (m *MySQLStore[S]) List(ctx context.Context) ([]Info, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		"SELECT "+infoColumns+" FROM workflow_threads ORDER BY updated_at DESC, thread_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return scanInfos(rows)
}

// Close releases the connection pool. Further calls return ErrStoreClosed.
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
