package emit

import "sync"

// DefaultBufferLimit is the number of events a BufferedEmitter keeps per thread.
const DefaultBufferLimit = 200

// BufferedEmitter implements Emitter by keeping the most recent events of
// each thread in memory.
//
// It backs the HTTP events endpoint and test assertions. Older events are
// discarded once a thread exceeds the limit, so memory stays bounded for
// long-lived conversations.
type BufferedEmitter struct {
	mu     sync.RWMutex
	limit  int
	events map[string][]Event // threadID -> events, oldest first
}

// HistoryFilter selects events from a thread's history. Empty fields match
// everything; set fields are combined with AND.
type HistoryFilter struct {
	NodeID string
	Msg    string
}

// NewBufferedEmitter creates a BufferedEmitter holding up to limit events per
// thread. A non-positive limit uses DefaultBufferLimit.
func NewBufferedEmitter(limit int) *BufferedEmitter {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &BufferedEmitter{
		limit:  limit,
		events: make(map[string][]Event),
	}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := append(b.events[event.ThreadID], event)
	if over := len(events) - b.limit; over > 0 {
		events = append([]Event(nil), events[over:]...)
	}
	b.events[event.ThreadID] = events
}

// History returns a copy of the thread's buffered events, oldest first.
func (b *BufferedEmitter) History(threadID string) []Event {
	return b.HistoryWithFilter(threadID, HistoryFilter{})
}

// HistoryWithFilter returns the thread's events that match filter.
func (b *BufferedEmitter) HistoryWithFilter(threadID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Event, 0, len(b.events[threadID]))
	for _, event := range b.events[threadID] {
		if filter.NodeID != "" && event.NodeID != filter.NodeID {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		result = append(result, event)
	}
	return result
}

// Clear drops the buffered events of one thread.
func (b *BufferedEmitter) Clear(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, threadID)
}
