package analyst

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/queryflow/graph"
	"github.com/dshills/queryflow/graph/emit"
	"github.com/dshills/queryflow/graph/store"
	"github.com/dshills/queryflow/querydb"
)

const thread = "user_1234"

func newAssistant(t *testing.T, gen Generator, exec Executor, st store.Store[SessionState]) (*Assistant, *emit.BufferedEmitter) {
	t.Helper()
	if st == nil {
		st = store.NewMemStore[SessionState]()
	}
	events := emit.NewBufferedEmitter(0)
	a, err := NewAssistant(Deps{Generator: gen, Executor: exec}, st, events, Config{})
	require.NoError(t, err)
	return a, events
}

func seededDB(t *testing.T) *querydb.DB {
	t.Helper()
	db, err := querydb.Open(filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Seed(context.Background(), querydb.SeedOptions{Seed: 42}))
	return db
}

// semantic strips message IDs, which differ between otherwise equal runs.
func semantic(s SessionState) SessionState {
	out := s
	out.History = make([]Message, len(s.History))
	for i, m := range s.History {
		out.History[i] = Message{Role: m.Role, Text: m.Text}
	}
	return out
}

const techHoldings = "SELECT i.ticker, COALESCE(h.qty, 0) AS qty FROM instruments i " +
	"LEFT JOIN holdings h ON h.ticker = i.ticker WHERE i.sector = 'Technology' ORDER BY i.ticker"

func TestNewAssistant_RequiresDeps(t *testing.T) {
	_, err := NewAssistant(Deps{}, store.NewMemStore[SessionState](), nil, Config{})
	assert.Error(t, err)

	a, _ := newAssistant(t, &fakeGenerator{}, &fakeExecutor{}, nil)
	assert.Equal(t, Config{SummaryThreshold: 5, MaxAttempts: 3}, a.Config())
}

func TestScenario_Q4TechHoldings(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore[SessionState]()
	gen := &fakeGenerator{
		queries:  []string{techHoldings},
		analysis: "Your technology positions are led by a handful of large-cap names.",
		summary:  "The user explored earlier portfolio questions.",
	}
	a, events := newAssistant(t, gen, seededDB(t), st)

	// A thread with history past the compaction threshold.
	prior := messages(6)
	_, err := st.Save(ctx, store.Checkpoint[SessionState]{
		ThreadID: thread,
		State:    SessionState{History: prior},
		Status:   store.StatusTerminated,
	})
	require.NoError(t, err)

	res, err := a.Ask(ctx, thread, "show me Q4 tech holdings")
	require.NoError(t, err)
	require.True(t, res.Suspended())
	assert.Equal(t, NodeAwaitApproval, res.Node)
	assert.Equal(t, techHoldings, res.State.CandidateQuery)
	assert.Empty(t, res.State.Error)
	assert.True(t, res.State.ApprovalPending)

	compacted := res.State.History
	require.Len(t, compacted, 3)
	assert.Equal(t, prior[5], compacted[1])
	assert.Equal(t, "show me Q4 tech holdings", compacted[2].Text)

	res, err = a.Resume(ctx, thread, Accept(false))
	require.NoError(t, err)
	assert.Equal(t, store.StatusTerminated, res.Status)

	final := res.State
	assert.False(t, final.ApprovalPending)
	assert.False(t, final.VisualizeRequested)
	assert.Empty(t, final.Error)
	assert.Equal(t, 1, final.Attempts)

	rows, err := querydb.Decode(final.ResultPayload)
	require.NoError(t, err)
	assert.NotZero(t, rows.Len())

	// Compacted history (summary + last prior message) plus the user turn
	// and the analysis.
	require.Len(t, final.History, 2+2)
	assert.Equal(t, compacted, final.History[:3])
	answer, ok := LastAnswer(final)
	require.True(t, ok)
	assert.Equal(t, gen.analysis, answer.Text)
	assert.Equal(t, answer, final.History[3])

	assert.Len(t, events.HistoryWithFilter(thread, emit.HistoryFilter{Msg: emit.Suspended}), 1)
	assert.Len(t, events.HistoryWithFilter(thread, emit.HistoryFilter{Msg: emit.RunEnd}), 1)
}

func TestRetryBound_ExecutionFailures(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{queries: []string{"SELECT * FROM trades"}}
	exec := &fakeExecutor{err: errors.New("no such table: trades")}
	a, _ := newAssistant(t, gen, exec, nil)

	res, err := a.Ask(ctx, thread, "how many trades?")
	require.NoError(t, err)
	for res.Suspended() {
		res, err = a.Resume(ctx, thread, Accept(false))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, gen.queryCount(), "exactly three generate/execute cycles")
	assert.Len(t, exec.executed(), 3)
	assert.Equal(t, store.StatusTerminated, res.Status)
	assert.Equal(t, 3, res.State.Attempts)
	assert.Equal(t, ExecutionFault, res.State.Fault)

	answer, ok := LastAnswer(res.State)
	require.True(t, ok)
	assert.Contains(t, answer.Text, "no such table: trades")

	// Every retry saw the previous failure.
	for _, call := range gen.queryCalls[1:] {
		assert.Contains(t, call.system, "no such table: trades")
	}
}

func TestRetryBound_PolicyViolations(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{queries: []string{"DELETE FROM holdings"}}
	exec := &fakeExecutor{}
	a, _ := newAssistant(t, gen, exec, nil)

	res, err := a.Ask(ctx, thread, "clean up my holdings")
	require.NoError(t, err)

	assert.False(t, res.Suspended(), "violations never reach the reviewer")
	assert.Equal(t, store.StatusTerminated, res.Status)
	assert.Equal(t, 3, gen.queryCount())
	assert.Empty(t, exec.executed())
	assert.Equal(t, PolicyViolation, res.State.Fault)
	require.Len(t, res.State.History, 2)
	assert.Equal(t, RoleAssistant, res.State.History[1].Role)
}

func TestRetryBound_GenerationFaults(t *testing.T) {
	ctx := context.Background()
	for name, gen := range map[string]*fakeGenerator{
		"error": {queryErr: errors.New("rate limited")},
		"panic": {queryPanic: true},
	} {
		t.Run(name, func(t *testing.T) {
			a, events := newAssistant(t, gen, &fakeExecutor{}, nil)
			res, err := a.Ask(ctx, thread, "anything")
			require.NoError(t, err)

			assert.Equal(t, store.StatusTerminated, res.Status)
			assert.Equal(t, 3, gen.queryCount())
			assert.Equal(t, 3, res.State.Attempts)
			assert.NotEmpty(t, res.State.Error)
			if name == "panic" {
				assert.Equal(t, NodeFault, res.State.Fault)
				assert.Len(t, events.HistoryWithFilter(thread, emit.HistoryFilter{Msg: emit.NodeFault}), 3)
			} else {
				assert.Equal(t, GenerationFault, res.State.Fault)
			}
		})
	}
}

func TestSuspendResume_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)
	newGen := func() *fakeGenerator {
		return &fakeGenerator{queries: []string{techHoldings}, analysis: "Tech is concentrated."}
	}

	// Uninterrupted.
	a, _ := newAssistant(t, newGen(), db, nil)
	_, err := a.Ask(ctx, thread, "show me Q4 tech holdings")
	require.NoError(t, err)
	want, err := a.Resume(ctx, thread, Accept(false))
	require.NoError(t, err)

	// Suspended, store closed, reopened by a fresh assistant, then resumed.
	path := filepath.Join(t.TempDir(), "threads.db")
	st, err := store.NewSQLiteStore[SessionState](path)
	require.NoError(t, err)
	first, _ := newAssistant(t, newGen(), db, st)
	paused, err := first.Ask(ctx, thread, "show me Q4 tech holdings")
	require.NoError(t, err)
	require.True(t, paused.Suspended())
	require.NoError(t, st.Close())

	st, err = store.NewSQLiteStore[SessionState](path)
	require.NoError(t, err)
	defer st.Close()
	second, _ := newAssistant(t, newGen(), db, st)

	loaded, err := second.State(ctx, thread)
	require.NoError(t, err)
	assert.True(t, loaded.Suspended())
	assert.Equal(t, paused.State, loaded.State)

	got, err := second.Resume(ctx, thread, Accept(false))
	require.NoError(t, err)

	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Step, got.Step)
	assert.Equal(t, semantic(want.State), semantic(got.State))
}

func TestEditAtApproval(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{queries: []string{"SELECT * FROM holdings"}, analysis: "ok"}
	exec := &fakeExecutor{rows: holdingsRows()}
	a, _ := newAssistant(t, gen, exec, nil)

	res, err := a.Ask(ctx, thread, "holdings?")
	require.NoError(t, err)
	require.True(t, res.Suspended())

	res, err = a.Resume(ctx, thread, Edit("SELECT ticker, qty FROM holdings WHERE qty > 10", false))
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT ticker, qty FROM holdings WHERE qty > 10"}, exec.executed())
	assert.Equal(t, "SELECT ticker, qty FROM holdings WHERE qty > 10", res.State.CandidateQuery)
	assert.Equal(t, store.StatusTerminated, res.Status)
}

func TestRejectRegeneratesWithFeedback(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{queries: []string{"SELECT * FROM transactions", "SELECT * FROM holdings"}, analysis: "ok"}
	exec := &fakeExecutor{rows: holdingsRows()}
	a, _ := newAssistant(t, gen, exec, nil)

	_, err := a.Ask(ctx, thread, "what do I own?")
	require.NoError(t, err)
	res, err := a.Resume(ctx, thread, Reject("use the holdings table"))
	require.NoError(t, err)

	require.True(t, res.Suspended())
	assert.Equal(t, "SELECT * FROM holdings", res.State.CandidateQuery)
	assert.Equal(t, 2, res.State.Attempts)
	assert.Empty(t, exec.executed())

	require.Len(t, gen.queryCalls, 2)
	retry := gen.queryCalls[1]
	assert.Contains(t, retry.system, "use the holdings table")
	assert.Contains(t, retry.history[len(retry.history)-1].Text, "use the holdings table")

	res, err = a.Resume(ctx, thread, Accept(false))
	require.NoError(t, err)
	assert.Equal(t, store.StatusTerminated, res.Status)
	// user turn, rejection feedback, analysis
	assert.Len(t, res.State.History, 3)
}

func TestVisualizeBranch(t *testing.T) {
	ctx := context.Background()

	t.Run("chart appended", func(t *testing.T) {
		gen := &fakeGenerator{queries: []string{"SELECT ticker, qty FROM holdings"}, analysis: "Two positions."}
		a, _ := newAssistant(t, gen, &fakeExecutor{rows: holdingsRows()}, nil)
		_, err := a.Ask(ctx, thread, "chart my holdings")
		require.NoError(t, err)
		res, err := a.Resume(ctx, thread, Accept(true))
		require.NoError(t, err)

		assert.Equal(t, store.StatusTerminated, res.Status)
		assert.Equal(t, NodeVisualize, res.Node)
		require.Len(t, res.State.History, 2)
		assert.Contains(t, res.State.History[1].Text, "Two positions.\n\nChart of qty:")
	})

	t.Run("failure is terminal", func(t *testing.T) {
		gen := &fakeGenerator{queries: []string{"SELECT ticker FROM holdings"}, analysis: "Names only."}
		rows := querydb.Rows{Columns: []string{"ticker"}, Data: [][]any{{"AAPL"}}}
		a, _ := newAssistant(t, gen, &fakeExecutor{rows: rows}, nil)
		_, err := a.Ask(ctx, thread, "chart tickers")
		require.NoError(t, err)
		res, err := a.Resume(ctx, thread, Accept(true))
		require.NoError(t, err)

		assert.Equal(t, store.StatusTerminated, res.Status)
		assert.Equal(t, VisualizationFault, res.State.Fault)
		assert.Equal(t, 1, gen.queryCount(), "visualization failures are not retried")
		require.Len(t, res.State.History, 2)
		assert.True(t, strings.HasPrefix(res.State.History[1].Text, "Names only.\n\nChart unavailable: "), res.State.History[1].Text)
		answer, found := LastAnswer(res.State)
		require.True(t, found)
		assert.Contains(t, answer.Text, "Chart unavailable")
	})
}

func TestConcurrencyRules(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{queries: []string{"SELECT 1"}, analysis: "ok"}
	a, _ := newAssistant(t, gen, &fakeExecutor{rows: holdingsRows()}, nil)

	_, err := a.Resume(ctx, thread, Accept(false))
	assert.ErrorIs(t, err, graph.ErrNotSuspended)

	res, err := a.Ask(ctx, thread, "q")
	require.NoError(t, err)
	require.True(t, res.Suspended())

	_, err = a.Ask(ctx, thread, "another question")
	assert.ErrorIs(t, err, graph.ErrThreadSuspended)

	// Another thread is unaffected.
	other, err := a.Ask(ctx, "user_5678", "q")
	require.NoError(t, err)
	assert.True(t, other.Suspended())

	_, err = a.Resume(ctx, thread, Edit("", false))
	assert.Error(t, err)
	_, err = a.Ask(ctx, "user_9", "   ")
	assert.Error(t, err)

	threads, err := a.Threads(ctx)
	require.NoError(t, err)
	assert.Len(t, threads, 2)

	require.NoError(t, a.Delete(ctx, thread))
	_, err = a.State(ctx, thread)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNodeTimeout(t *testing.T) {
	ctx := context.Background()
	slow := &slowExecutor{delay: time.Second}
	gen := &fakeGenerator{queries: []string{"SELECT 1"}}
	a, err := NewAssistant(Deps{Generator: gen, Executor: slow}, store.NewMemStore[SessionState](), nil, Config{},
		graph.WithNodeTimeout(20*time.Millisecond))
	require.NoError(t, err)

	res, err := a.Ask(ctx, thread, "q")
	require.NoError(t, err)
	for res.Suspended() {
		res, err = a.Resume(ctx, thread, Accept(false))
		require.NoError(t, err)
	}
	assert.Equal(t, ExecutionFault, res.State.Fault)
	assert.Equal(t, 3, res.State.Attempts)
}

type slowExecutor struct {
	fakeExecutor
	delay time.Duration
}

func (s *slowExecutor) Execute(ctx context.Context, query string) (querydb.Rows, error) {
	select {
	case <-time.After(s.delay):
		return s.fakeExecutor.Execute(ctx, query)
	case <-ctx.Done():
		return querydb.Rows{}, ctx.Err()
	}
}
