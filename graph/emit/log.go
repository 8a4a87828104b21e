package emit

import (
	"context"
	"log/slog"
	"sort"
)

// LogEmitter implements Emitter by writing each event as a structured slog
// record.
//
// Faults and run errors are logged at Warn and Error; everything else at
// Debug, except run boundaries and suspensions which are Info.
//
// Usage:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	emitter := emit.NewLogEmitter(logger)
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger falls back to slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger.With(slog.String("component", "workflow"))}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	attrs := []slog.Attr{
		slog.String("thread_id", event.ThreadID),
		slog.Int("step", event.Step),
	}
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}

	// Stable attribute order keeps text output diffable.
	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	l.logger.LogAttrs(context.Background(), levelFor(event.Msg), event.Msg, attrs...)
}

func levelFor(msg string) slog.Level {
	switch msg {
	case RunError:
		return slog.LevelError
	case NodeFault:
		return slog.LevelWarn
	case RunStart, RunEnd, Suspended, Resumed:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
