// Package store persists workflow checkpoints, one per thread.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested thread has no checkpoint.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by Save when the stored checkpoint version no longer
// matches the version the writer loaded. Another writer got there first.
var ErrConflict = errors.New("checkpoint version conflict")

// ErrStoreClosed is returned by every operation on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Status describes where a thread's workflow currently stands.
type Status string

const (
	// StatusRunning means a run was in flight when the checkpoint was written.
	StatusRunning Status = "running"

	// StatusSuspended means the run is parked at an interrupt node, waiting
	// for a human decision.
	StatusSuspended Status = "suspended"

	// StatusTerminated means the last run reached the end of the graph.
	StatusTerminated Status = "terminated"
)

// Checkpoint is the durable snapshot of one thread.
//
// Version is 0 for a checkpoint that has never been saved. Every successful
// Save stores Version+1, so a writer holding a stale copy is rejected with
// ErrConflict instead of overwriting newer progress.
type Checkpoint[S any] struct {
	// ThreadID identifies the conversation this checkpoint belongs to.
	ThreadID string `json:"thread_id"`

	// State is the merged session state after the last applied node.
	State S `json:"state"`

	// Status is the lifecycle status at the time of the save.
	Status Status `json:"status"`

	// Node is the last node applied, or the gate node when suspended.
	Node string `json:"node"`

	// Step counts nodes executed over the lifetime of the thread.
	Step int `json:"step"`

	// Version is the optimistic concurrency token.
	Version int64 `json:"version"`

	// UpdatedAt is set by the store on Save.
	UpdatedAt time.Time `json:"updated_at"`
}

// Info is a lightweight description of a stored thread, without its state.
type Info struct {
	ThreadID  string    `json:"thread_id"`
	Status    Status    `json:"status"`
	Node      string    `json:"node"`
	Step      int       `json:"step"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides persistence for per-thread workflow checkpoints.
//
// Implementations:
//   - MemStore: in-process maps, for tests and the console demo
//   - SQLiteStore: single file database via modernc.org/sqlite
//   - MySQLStore: MySQL/MariaDB via go-sql-driver/mysql
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Store[S any] interface {
	// Load returns the latest checkpoint for threadID, or ErrNotFound.
	Load(ctx context.Context, threadID string) (Checkpoint[S], error)

	// Save persists cp if the stored version equals cp.Version, writing
	// cp.Version+1. It returns the saved checkpoint (new Version and
	// UpdatedAt) or ErrConflict.
	Save(ctx context.Context, cp Checkpoint[S]) (Checkpoint[S], error)

	// Delete removes the thread. Deleting an unknown thread is not an error.
	Delete(ctx context.Context, threadID string) error

	// List describes every stored thread, most recently updated first.
	List(ctx context.Context) ([]Info, error)
}

// InfoOf returns the Info view of a checkpoint.
func InfoOf[S any](cp Checkpoint[S]) Info {
	return Info{
		ThreadID:  cp.ThreadID,
		Status:    cp.Status,
		Node:      cp.Node,
		Step:      cp.Step,
		Version:   cp.Version,
		UpdatedAt: cp.UpdatedAt,
	}
}

func validateCheckpoint[S any](cp Checkpoint[S]) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id is required")
	}
	switch cp.Status {
	case StatusRunning, StatusSuspended, StatusTerminated:
	default:
		return fmt.Errorf("invalid checkpoint status %q", cp.Status)
	}
	if cp.Version < 0 {
		return fmt.Errorf("invalid checkpoint version %d", cp.Version)
	}
	return nil
}

// cloneState isolates a state value from the caller using a JSON round trip,
// the same encoding the durable stores use.
func cloneState[S any](state S) (S, error) {
	var zero S
	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}
	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return copied, nil
}
