package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Columns shared by the SQL-backed stores, in scan order.
const checkpointColumns = "thread_id, state, status, node, step, version, updated_at"
const infoColumns = "thread_id, status, node, step, version, updated_at"

func scanCheckpoint[S any](row rowScanner) (Checkpoint[S], error) {
	var (
		cp        Checkpoint[S]
		stateJSON string
		status    string
		updatedAt int64
	)
	err := row.Scan(&cp.ThreadID, &stateJSON, &status, &cp.Node, &cp.Step, &cp.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	cp.Status = Status(status)
	cp.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return cp, nil
}

func scanInfos(rows *sql.Rows) ([]Info, error) {
	defer rows.Close()

	infos := make([]Info, 0)
	for rows.Next() {
		var (
			info      Info
			status    string
			updatedAt int64
		)
		if err := rows.Scan(&info.ThreadID, &status, &info.Node, &info.Step, &info.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		info.Status = Status(status)
		info.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return infos, nil
}

// prepareSave validates cp and returns its JSON state plus the checkpoint as
// it will look once saved.
func prepareSave[S any](cp Checkpoint[S], now time.Time) (string, Checkpoint[S], error) {
	if err := validateCheckpoint(cp); err != nil {
		return "", Checkpoint[S]{}, err
	}
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return "", Checkpoint[S]{}, fmt.Errorf("failed to marshal state: %w", err)
	}
	saved := cp
	saved.Version = cp.Version + 1
	// Millisecond precision is what the tables hold.
	saved.UpdatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return string(stateJSON), saved, nil
}
