package analyst

import (
	"context"
	"strings"
	"sync"

	"github.com/dshills/queryflow/querydb"
)

type genCall struct {
	system  string
	history []Message
}

// fakeGenerator answers by prompt kind. Queries are returned in order and
// the last one repeats.
type fakeGenerator struct {
	mu sync.Mutex

	queries  []string
	queryErr error
	// queryPanic makes query generation panic.
	queryPanic bool

	analysis    string
	analysisErr error
	summary     string
	summaryErr  error

	queryCalls    []genCall
	analysisCalls []genCall
	summaryCalls  []genCall
}

func (f *fakeGenerator) Generate(_ context.Context, system string, history []Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := genCall{system: system, history: append([]Message(nil), history...)}

	switch {
	case strings.HasPrefix(system, queryPromptIntro):
		f.queryCalls = append(f.queryCalls, call)
		if f.queryPanic {
			panic("generator exploded")
		}
		if f.queryErr != nil {
			return "", f.queryErr
		}
		idx := len(f.queryCalls) - 1
		if idx >= len(f.queries) {
			idx = len(f.queries) - 1
		}
		if idx < 0 {
			return "", nil
		}
		return f.queries[idx], nil
	case strings.HasPrefix(system, analysisPromptIntro):
		f.analysisCalls = append(f.analysisCalls, call)
		return f.analysis, f.analysisErr
	default:
		f.summaryCalls = append(f.summaryCalls, call)
		return f.summary, f.summaryErr
	}
}

func (f *fakeGenerator) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queryCalls)
}

type fakeExecutor struct {
	mu      sync.Mutex
	schema  string
	rows    querydb.Rows
	err     error
	queries []string
}

func (f *fakeExecutor) Execute(_ context.Context, query string) (querydb.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.rows, f.err
}

func (f *fakeExecutor) Schema(context.Context) (string, error) {
	if f.schema == "" {
		return "CREATE TABLE holdings (ticker TEXT PRIMARY KEY, qty REAL, avg_cost REAL)", nil
	}
	return f.schema, nil
}

func (f *fakeExecutor) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func holdingsRows() querydb.Rows {
	return querydb.Rows{
		Columns: []string{"ticker", "qty"},
		Data:    [][]any{{"AAPL", 15.0}, {"NVDA", 4.0}},
	}
}
