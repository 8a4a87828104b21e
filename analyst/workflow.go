package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/queryflow/graph"
	"github.com/dshills/queryflow/graph/emit"
	"github.com/dshills/queryflow/graph/store"
)

// Defaults for Config.
const (
	DefaultSummaryThreshold = 5
	DefaultMaxAttempts      = 3
)

// Config tunes the assistant workflow.
type Config struct {
	// SummaryThreshold is the history length above which Summarize compacts.
	SummaryThreshold int
	// MaxAttempts bounds generate/execute cycles per turn.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.SummaryThreshold <= 0 {
		c.SummaryThreshold = DefaultSummaryThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Deps are the collaborators the nodes call out to.
type Deps struct {
	Generator Generator
	Executor  Executor
}

// ErrInvalidRequest marks questions and decisions rejected before any
// state is touched.
var ErrInvalidRequest = errors.New("invalid request")

// Result is where a thread stands after a call.
type Result = graph.Result[SessionState]

// Assistant answers questions about the portfolio database, pausing for a
// human decision before any query runs.
type Assistant struct {
	engine *graph.Engine[SessionState, Update]
	cfg    Config
}

// NewAssistant wires the workflow graph:
//
//	summarize -> generate_query -> validate -> await_approval -> execute
//	execute -> generate_query (retry) | analyze
//	analyze -> visualize | END
//	visualize -> END
func NewAssistant(deps Deps, st store.Store[SessionState], emitter emit.Emitter, cfg Config, opts ...graph.Option) (*Assistant, error) {
	if deps.Generator == nil || deps.Executor == nil {
		return nil, errors.New("assistant needs a generator and an executor")
	}
	cfg = cfg.withDefaults()

	engine, err := graph.New[SessionState, Update](Merge, st, emitter, opts...)
	if err != nil {
		return nil, err
	}

	n := &nodes{gen: deps.Generator, exec: deps.Executor, summaryThreshold: cfg.SummaryThreshold}
	for _, def := range []struct {
		id string
		fn graph.NodeFunc[SessionState, Update]
	}{
		{NodeSummarize, n.Summarize},
		{NodeGenerateQuery, n.GenerateQuery},
		{NodeValidate, n.Validate},
		{NodeAwaitApproval, n.AwaitApproval},
		{NodeExecute, n.Execute},
		{NodeAnalyze, n.Analyze},
		{NodeVisualize, n.Visualize},
	} {
		if err := engine.Add(def.id, def.fn); err != nil {
			return nil, err
		}
	}

	steps := []error{
		engine.StartAt(NodeSummarize),
		engine.Connect(NodeSummarize, NodeGenerateQuery, nil),
		engine.Connect(NodeGenerateQuery, NodeValidate, nil),
		engine.Connect(NodeValidate, NodeAwaitApproval, nil),
		engine.Connect(NodeAwaitApproval, NodeExecute, nil),
		engine.Branch(NodeExecute, RetryOrAdvance(cfg.MaxAttempts)),
		engine.Branch(NodeAnalyze, VisualizeOrEnd),
		engine.Connect(NodeVisualize, graph.End, nil),
		engine.Interrupt(NodeAwaitApproval, func(s SessionState) bool { return s.ApprovalPending }),
	}
	if err := errors.Join(steps...); err != nil {
		return nil, err
	}
	engine.OnFault(handleFault)
	if err := engine.Validate(); err != nil {
		return nil, err
	}
	return &Assistant{engine: engine, cfg: cfg}, nil
}

// RetryOrAdvance sends a failed execution back to generation until
// maxAttempts cycles have been spent, then on to analysis.
func RetryOrAdvance(maxAttempts int) graph.Router[SessionState] {
	return func(s SessionState) string {
		if s.Error != "" && s.Fault.Retryable() && s.Attempts < maxAttempts {
			return NodeGenerateQuery
		}
		return NodeAnalyze
	}
}

// VisualizeOrEnd charts the result only when the reviewer asked for it.
func VisualizeOrEnd(s SessionState) string {
	if s.VisualizeRequested {
		return NodeVisualize
	}
	return graph.End
}

// Ask starts a turn on threadID with the user's question. The result is
// suspended when a query awaits review.
func (a *Assistant) Ask(ctx context.Context, threadID, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("%w: question is empty", ErrInvalidRequest)
	}
	return a.engine.Run(ctx, threadID, UserTurn(question))
}

// Resume hands the reviewer's decision to a suspended thread.
func (a *Assistant) Resume(ctx context.Context, threadID string, d Decision) (Result, error) {
	if err := d.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return a.engine.Resume(ctx, threadID, ResumeWith(d))
}

// State returns the latest checkpoint of threadID.
func (a *Assistant) State(ctx context.Context, threadID string) (Result, error) {
	return a.engine.State(ctx, threadID)
}

// Delete forgets threadID.
func (a *Assistant) Delete(ctx context.Context, threadID string) error {
	return a.engine.Delete(ctx, threadID)
}

// Threads lists stored threads, most recent first.
func (a *Assistant) Threads(ctx context.Context) ([]store.Info, error) {
	return a.engine.Threads(ctx)
}

// Config returns the effective configuration.
func (a *Assistant) Config() Config {
	return a.cfg
}

// LastAnswer returns the most recent assistant message of state, if any.
func LastAnswer(s SessionState) (Message, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAssistant {
			return s.History[i], true
		}
	}
	return Message{}, false
}
