// Package querydb executes generated read-only SQL against the portfolio
// database and describes its schema.
package querydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// DefaultMaxRows caps how many rows a single query returns.
const DefaultMaxRows = 500

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("querydb: database is closed")

// DB is a SQLite database that only ever runs read-only statements on behalf
// of callers. Seeding is the one write path and is explicit.
type DB struct {
	db      *sql.DB
	path    string
	maxRows int

	mu     sync.RWMutex
	closed bool
}

// Option configures a DB.
type Option func(*DB) error

// WithMaxRows sets the row cap for Execute. Rows past the cap are dropped
// and the result is marked Truncated.
func WithMaxRows(n int) Option {
	return func(d *DB) error {
		if n <= 0 {
			return fmt.Errorf("max rows must be positive, got %d", n)
		}
		d.maxRows = n
		return nil
	}
}

// Open opens (or creates) the database at path and makes sure the portfolio
// tables exist. Use ":memory:" for a throwaway database.
func Open(path string, opts ...Option) (*DB, error) {
	d := &DB{path: path, maxRows: DefaultMaxRows}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and lets
	// Execute toggle query_only on the connection it runs on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	d.db = db
	if err := d.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return d, nil
}

func (d *DB) createTables(ctx context.Context) error {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			ticker TEXT PRIMARY KEY,
			name TEXT,
			sector TEXT,
			asset_class TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT,
			side TEXT,
			qty REAL,
			price REAL,
			date TEXT,
			asset_class TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS holdings (
			ticker TEXT PRIMARY KEY,
			qty REAL,
			avg_cost REAL
		)`,
	} {
		if _, err := d.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database location.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database. Calling it again is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

func (d *DB) checkOpen() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

// Execute runs query with the connection switched to query_only, so any
// statement that would write fails inside SQLite no matter what the guardrail
// let through. At most the configured row cap is returned.
func (d *DB) Execute(ctx context.Context, query string) (Rows, error) {
	if err := d.checkOpen(); err != nil {
		return Rows{}, err
	}
	if strings.TrimSpace(query) == "" {
		return Rows{}, errors.New("query is empty")
	}

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return Rows{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only=ON"); err != nil {
		return Rows{}, fmt.Errorf("enable query_only: %w", err)
	}
	defer func() {
		// The connection goes back to the pool; later seeding needs writes.
		_, _ = conn.ExecContext(context.Background(), "PRAGMA query_only=OFF")
	}()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return Rows{}, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()
	return collect(rows, d.maxRows)
}

func collect(rows *sql.Rows, maxRows int) (Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Rows{}, fmt.Errorf("read columns: %w", err)
	}
	out := Rows{Columns: columns, Data: [][]any{}}
	for rows.Next() {
		if len(out.Data) >= maxRows {
			out.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Data = append(out.Data, values)
	}
	if err := rows.Err(); err != nil {
		return Rows{}, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Schema returns the CREATE statements of every user table, one per line,
// for inclusion in generation prompts.
func (d *DB) Schema(ctx context.Context) (string, error) {
	if err := d.checkOpen(); err != nil {
		return "", err
	}
	rows, err := d.db.QueryContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL ORDER BY name")
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scan schema: %w", err)
		}
		stmts = append(stmts, stmt)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	return strings.Join(stmts, "\n"), nil
}

// TableStat is the row count of one table.
type TableStat struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Stats returns per-table row counts in table-name order.
func (d *DB) Stats(ctx context.Context) ([]TableStat, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	tables, err := d.tables(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]TableStat, 0, len(tables))
	for _, table := range tables {
		var n int64
		// Table names come from sqlite_master, not from callers.
		if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "`+table+`"`).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats = append(stats, TableStat{Table: table, Rows: n})
	}
	return stats, nil
}

func (d *DB) tables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
