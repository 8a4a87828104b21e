package graph

import (
	"fmt"
	"time"
)

// DefaultMaxSteps bounds the nodes a single Run or Resume may execute.
const DefaultMaxSteps = 100

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := graph.New(
//	    analyst.Merge, st, emitter,
//	    graph.WithMaxSteps(50),
//	    graph.WithNodeTimeout(30*time.Second),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	maxSteps    int
	nodeTimeout time.Duration
	metrics     *PrometheusMetrics
}

func defaultConfig() engineConfig {
	return engineConfig{maxSteps: DefaultMaxSteps}
}

// WithMaxSteps limits how many nodes one Run or Resume may execute.
//
// The retry loop of a graph is a cycle, so a missing exit condition would
// otherwise spin forever. When the limit is hit the run stops with
// EngineError code "MAX_STEPS_EXCEEDED"; the last persisted checkpoint stays.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return fmt.Errorf("max steps must be positive, got %d", n)
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithNodeTimeout bounds the execution time of each node. Zero disables the
// limit. A node that overruns sees its context cancelled; whatever error it
// returns is handled like any other node fault.
func WithNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return fmt.Errorf("node timeout must not be negative, got %s", d)
		}
		cfg.nodeTimeout = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}
