// Package app wires configuration into the assistant's collaborators. Both
// binaries build their runtime through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dshills/queryflow/analyst"
	"github.com/dshills/queryflow/graph"
	"github.com/dshills/queryflow/graph/emit"
	"github.com/dshills/queryflow/graph/model"
	"github.com/dshills/queryflow/graph/model/anthropic"
	"github.com/dshills/queryflow/graph/model/google"
	"github.com/dshills/queryflow/graph/model/openai"
	"github.com/dshills/queryflow/graph/store"
	"github.com/dshills/queryflow/internal/config"
	"github.com/dshills/queryflow/querydb"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Runtime holds the assistant and everything that must be closed with it.
type Runtime struct {
	Assistant *analyst.Assistant
	Data      *querydb.DB
	// Costs accumulates token usage of every model call.
	Costs   *model.CostTracker
	closers []func() error
}

// Close releases the model client, the checkpoint store and the data
// database, in reverse order of opening.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Options adjusts Build for a particular binary.
type Options struct {
	// Emitter receives workflow events. Nil discards them.
	Emitter emit.Emitter
	// Metrics, when set, records node latency and run outcomes.
	Metrics *graph.PrometheusMetrics
	// Reseed wipes the data database and loads fresh sample data.
	Reseed bool
	// Model overrides the configured provider. Used by tests.
	Model model.ChatModel
}

// Build opens the data database (seeding it when empty), the checkpoint
// store and the chat model, and wires the assistant.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{Costs: model.NewCostTracker()}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	data, err := OpenData(ctx, cfg, opts.Reseed)
	if err != nil {
		return fail(err)
	}
	rt.Data = data
	rt.closers = append(rt.closers, data.Close)

	st, closeStore, err := OpenStore(cfg.Checkpoint)
	if err != nil {
		return fail(err)
	}
	rt.closers = append(rt.closers, closeStore)

	chat := opts.Model
	if chat == nil {
		m, closeModel, err := NewChatModel(ctx, cfg.LLM)
		if err != nil {
			return fail(err)
		}
		chat = m
		rt.closers = append(rt.closers, closeModel)
	}
	chat = model.Metered(chat, modelName(cfg.LLM), rt.Costs)

	engineOpts := []graph.Option{
		graph.WithMaxSteps(cfg.Workflow.MaxSteps),
		graph.WithNodeTimeout(cfg.Workflow.NodeTimeout),
	}
	if opts.Metrics != nil {
		engineOpts = append(engineOpts, graph.WithMetrics(opts.Metrics))
	}
	a, err := analyst.NewAssistant(
		analyst.Deps{Generator: analyst.ChatGenerator{Model: chat}, Executor: data},
		st,
		opts.Emitter,
		analyst.Config{
			SummaryThreshold: cfg.Workflow.SummaryThreshold,
			MaxAttempts:      cfg.Workflow.MaxAttempts,
		},
		engineOpts...,
	)
	if err != nil {
		return fail(fmt.Errorf("build assistant: %w", err))
	}
	rt.Assistant = a
	return rt, nil
}

// OpenData opens the portfolio database and seeds it when it holds no
// instruments, or always when reseed is set.
func OpenData(ctx context.Context, cfg *config.Config, reseed bool) (*querydb.DB, error) {
	db, err := querydb.Open(cfg.DataDBPath, querydb.WithMaxRows(cfg.MaxRows))
	if err != nil {
		return nil, err
	}
	seeded, err := hasData(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if reseed && seeded {
		if err := db.Reset(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		seeded = false
	}
	if !seeded {
		if err := db.Seed(ctx, querydb.SeedOptions{}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed %s: %w", cfg.DataDBPath, err)
		}
	}
	return db, nil
}

func hasData(ctx context.Context, db *querydb.DB) (bool, error) {
	stats, err := db.Stats(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range stats {
		if s.Table == "instruments" {
			return s.Rows > 0, nil
		}
	}
	return false, nil
}

// OpenStore opens the configured checkpoint backend. The returned func
// closes it.
func OpenStore(cfg config.CheckpointConfig) (store.Store[analyst.SessionState], func() error, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemStore[analyst.SessionState](), func() error { return nil }, nil
	case "sqlite":
		st, err := store.NewSQLiteStore[analyst.SessionState](cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "mysql":
		st, err := store.NewMySQLStore[analyst.SessionState](cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

// NewChatModel builds the configured provider adapter. The returned func
// releases provider resources.
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.ChatModel, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Provider {
	case "openai":
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewChatModel(apiKey(cfg, "OPENAI_API_KEY"), cfg.Model, opts...), noop, nil
	case "anthropic":
		return anthropic.NewChatModel(apiKey(cfg, "ANTHROPIC_API_KEY"), cfg.Model), noop, nil
	case "google":
		m, err := google.NewChatModel(ctx, apiKey(cfg, "GOOGLE_API_KEY"), cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		// The Gemini SDK does not retry on its own.
		retried, err := model.WithRetry(m, model.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Retryable: func(err error) bool {
				var blocked *google.SafetyFilterError
				return !errors.As(err, &blocked)
			},
		})
		if err != nil {
			_ = m.Close()
			return nil, nil, err
		}
		return retried, m.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// modelName is the model the provider adapter will call, used to price it.
func modelName(cfg config.LLMConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	switch cfg.Provider {
	case "anthropic":
		return anthropic.DefaultModel
	case "google":
		return google.DefaultModel
	default:
		return openai.DefaultModel
	}
}

func apiKey(cfg config.LLMConfig, envVar string) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	return os.Getenv(envVar)
}
