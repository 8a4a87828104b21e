package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewLogEmitter(logger).Emit(Event{
		ThreadID: "user_1234",
		Step:     3,
		NodeID:   "execute",
		Msg:      NodeEnd,
		Meta:     map[string]any{"next": "analyze", "duration_ms": int64(12)},
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "node_end", record["msg"])
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "user_1234", record["thread_id"])
	assert.Equal(t, "execute", record["node_id"])
	assert.Equal(t, "analyze", record["next"])
	assert.Equal(t, "workflow", record["component"])
}

func TestLogEmitter_Levels(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{RunStart, "INFO"},
		{Suspended, "INFO"},
		{NodeFault, "WARN"},
		{RunError, "ERROR"},
		{NodeEnd, "DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			NewLogEmitter(logger).Emit(Event{ThreadID: "t", Msg: tt.msg})
			assert.Contains(t, buf.String(), "level="+tt.want)
		})
	}
}

func TestLogEmitter_NilLoggerUsesDefault(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogEmitter(nil).Emit(Event{ThreadID: "t", Msg: RunStart})
	})
}

func TestMultiAndFunc(t *testing.T) {
	var got []string
	record := Func(func(e Event) { got = append(got, e.Msg) })
	buffered := NewBufferedEmitter(0)

	m := Multi(record, nil, buffered, NewNullEmitter())
	m.Emit(Event{ThreadID: "t", Msg: RunStart})
	m.Emit(Event{ThreadID: "t", Msg: RunEnd})

	assert.Equal(t, []string{RunStart, RunEnd}, got)
	assert.Len(t, buffered.History("t"), 2)
}

func TestBufferedEmitter(t *testing.T) {
	t.Run("keeps only the most recent events", func(t *testing.T) {
		b := NewBufferedEmitter(3)
		for i := 0; i < 5; i++ {
			b.Emit(Event{ThreadID: "t", Step: i, Msg: NodeEnd})
		}
		history := b.History("t")
		require.Len(t, history, 3)
		assert.Equal(t, 2, history[0].Step)
		assert.Equal(t, 4, history[2].Step)
	})

	t.Run("threads are independent", func(t *testing.T) {
		b := NewBufferedEmitter(10)
		b.Emit(Event{ThreadID: "a", Msg: RunStart})
		b.Emit(Event{ThreadID: "b", Msg: RunStart})
		b.Clear("a")
		assert.Empty(t, b.History("a"))
		assert.Len(t, b.History("b"), 1)
	})

	t.Run("filter", func(t *testing.T) {
		b := NewBufferedEmitter(10)
		b.Emit(Event{ThreadID: "t", NodeID: "validate", Msg: NodeEnd})
		b.Emit(Event{ThreadID: "t", NodeID: "execute", Msg: NodeFault})
		b.Emit(Event{ThreadID: "t", NodeID: "execute", Msg: NodeEnd})

		faults := b.HistoryWithFilter("t", HistoryFilter{Msg: NodeFault})
		require.Len(t, faults, 1)
		assert.Equal(t, "execute", faults[0].NodeID)
		assert.Len(t, b.HistoryWithFilter("t", HistoryFilter{NodeID: "execute"}), 2)
	})

	t.Run("history is a copy", func(t *testing.T) {
		b := NewBufferedEmitter(10)
		b.Emit(Event{ThreadID: "t", Msg: RunStart})
		h := b.History("t")
		h[0].Msg = "changed"
		assert.Equal(t, RunStart, b.History("t")[0].Msg)
	})
}

func TestOTelEmitter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	e := NewOTelEmitter(tp.Tracer("test"))
	e.Emit(Event{
		ThreadID: "user_1234",
		Step:     2,
		NodeID:   "execute",
		Msg:      NodeFault,
		Meta: map[string]any{
			"error":       "no such table: trades",
			"duration_ms": 15 * time.Millisecond,
			"attempt":     2,
		},
	})
	e.Emit(Event{ThreadID: "user_1234", Msg: RunEnd})

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	fault := spans[0]
	assert.Equal(t, NodeFault, fault.Name)
	assert.Equal(t, codes.Error, fault.Status.Code)
	attrs := attrMap(fault.Attributes)
	assert.Equal(t, "user_1234", attrs["queryflow.thread_id"])
	assert.Equal(t, int64(2), attrs["queryflow.step"])
	assert.Equal(t, "execute", attrs["queryflow.node_id"])
	assert.Equal(t, int64(15), attrs["queryflow.node.latency_ms"])
	assert.Equal(t, int64(2), attrs["attempt"])

	end := spans[1]
	assert.Equal(t, codes.Unset, end.Status.Code)
	_, hasNode := attrMap(end.Attributes)["queryflow.node_id"]
	assert.False(t, hasNode)

	require.NoError(t, e.Flush(context.Background()))
}

func TestMetaAttributeFallback(t *testing.T) {
	kv := metaAttribute("rows", []int{1, 2})
	assert.Equal(t, attribute.STRING, kv.Value.Type())
	assert.True(t, strings.HasPrefix(kv.Value.AsString(), "["))
	assert.Equal(t, fmt.Sprint(true), fmt.Sprint(metaAttribute("ok", true).Value.AsBool()))
}

func attrMap(kvs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
