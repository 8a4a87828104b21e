package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for:
//   - Testing and development
//   - The single-process console assistant
//
// States are copied through JSON on both Save and Load, so a MemStore behaves
// like the durable stores: nothing a caller does to a loaded state leaks back
// into the stored checkpoint.
//
// MemStore is thread-safe. Data is lost when the process terminates.
type MemStore[S any] struct {
	mu      sync.RWMutex
	threads map[string]Checkpoint[S]
	now     func() time.Time
}

// NewMemStore creates a new in-memory store.
//
// Example:
//
//	st := store.NewMemStore[analyst.SessionState]()
//	engine := graph.New(analyst.Merge, st, emitter)
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		threads: make(map[string]Checkpoint[S]),
		now:     time.Now,
	}
}

// Load implements Store.
func (m *MemStore[S]) Load(_ context.Context, threadID string) (Checkpoint[S], error) {
	m.mu.RLock()
	cp, ok := m.threads[threadID]
	m.mu.RUnlock()
	if !ok {
		return Checkpoint[S]{}, ErrNotFound
	}

	state, err := cloneState(cp.State)
	if err != nil {
		return Checkpoint[S]{}, err
	}
	cp.State = state
	return cp, nil
}

// Save implements Store with compare-and-swap on Version.
func (m *MemStore[S]) Save(_ context.Context, cp Checkpoint[S]) (Checkpoint[S], error) {
	if err := validateCheckpoint(cp); err != nil {
		return Checkpoint[S]{}, err
	}
	state, err := cloneState(cp.State)
	if err != nil {
		return Checkpoint[S]{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.threads[cp.ThreadID]
	switch {
	case exists && current.Version != cp.Version:
		return Checkpoint[S]{}, ErrConflict
	case !exists && cp.Version != 0:
		return Checkpoint[S]{}, ErrConflict
	}

	cp.Version++
	cp.UpdatedAt = m.now().UTC()
	stored := cp
	stored.State = state
	m.threads[cp.ThreadID] = stored
	return cp, nil
}

// Delete implements Store.
func (m *MemStore[S]) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

// List implements Store.
func (m *MemStore[S]) List(_ context.Context) ([]Info, error) {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.threads))
	for _, cp := range m.threads {
		infos = append(infos, InfoOf(cp))
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].ThreadID < infos[j].ThreadID
		}
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}
