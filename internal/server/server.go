// Package server exposes the assistant over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/queryflow/analyst"
	"github.com/dshills/queryflow/graph"
	"github.com/dshills/queryflow/graph/emit"
	"github.com/dshills/queryflow/graph/model"
	"github.com/dshills/queryflow/graph/store"
)

// Handler serves the thread API.
type Handler struct {
	assistant *analyst.Assistant
	events    *emit.BufferedEmitter
	gatherer  prometheus.Gatherer
	costs     *model.CostTracker
	logger    *slog.Logger
}

// NewHandler creates a Handler. events backs the per-thread event feed and
// gatherer the /metrics endpoint; either may be nil to disable that route.
func NewHandler(a *analyst.Assistant, events *emit.BufferedEmitter, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{assistant: a, events: events, gatherer: gatherer, logger: logger}
}

// WithCosts exposes tracker's token usage at /usage.
func (h *Handler) WithCosts(tracker *model.CostTracker) *Handler {
	h.costs = tracker
	return h
}

// Router builds the chi router with middleware and all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	if h.costs != nil {
		r.Get("/usage", h.Usage)
	}
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers thread routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/threads", func(r chi.Router) {
		r.Get("/", h.ListThreads)
		r.Route("/{threadID}", func(r chi.Router) {
			r.Get("/", h.GetThread)
			r.Delete("/", h.DeleteThread)
			r.Post("/turns", h.PostTurn)
			r.Post("/resume", h.PostResume)
			r.Get("/events", h.GetEvents)
		})
	})
}

// ThreadView is the JSON shape of a thread.
type ThreadView struct {
	ThreadID string       `json:"thread_id"`
	Status   store.Status `json:"status"`
	Node     string       `json:"node,omitempty"`
	Step     int          `json:"step"`
	Version  int64        `json:"version"`
	// PendingQuery is the query awaiting review while suspended.
	PendingQuery string               `json:"pending_query,omitempty"`
	Answer       string               `json:"answer,omitempty"`
	State        analyst.SessionState `json:"state"`
}

func viewOf(res analyst.Result) ThreadView {
	v := ThreadView{
		ThreadID: res.ThreadID,
		Status:   res.Status,
		Node:     res.Node,
		Step:     res.Step,
		Version:  res.Version,
		State:    res.State,
	}
	if res.Suspended() {
		v.PendingQuery = res.State.CandidateQuery
	}
	if msg, ok := analyst.LastAnswer(res.State); ok {
		v.Answer = msg.Text
	}
	return v
}

// TurnRequest opens a turn.
type TurnRequest struct {
	Question string `json:"question"`
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Usage reports model token usage and estimated spend since start.
func (h *Handler) Usage(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.costs.Summary())
}

// ListThreads returns stored threads, most recent first.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.assistant.Threads(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if threads == nil {
		threads = []store.Info{}
	}
	JSON(w, http.StatusOK, threads)
}

// GetThread returns the latest checkpoint of a thread.
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	res, err := h.assistant.State(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, viewOf(res))
}

// DeleteThread forgets a thread.
func (h *Handler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if err := h.assistant.Delete(r.Context(), threadID); err != nil {
		h.fail(w, r, err)
		return
	}
	if h.events != nil {
		h.events.Clear(threadID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostTurn runs a new turn. The response is the suspended thread when a
// query awaits review, or the finished one.
func (h *Handler) PostTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.assistant.Ask(r.Context(), chi.URLParam(r, "threadID"), req.Question)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, viewOf(res))
}

// PostResume resumes a suspended thread with an analyst.Decision body.
func (h *Handler) PostResume(w http.ResponseWriter, r *http.Request) {
	var d analyst.Decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.assistant.Resume(r.Context(), chi.URLParam(r, "threadID"), d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, viewOf(res))
}

// GetEvents returns the thread's recent workflow events, optionally
// filtered by ?node= and ?msg=.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		Error(w, http.StatusNotFound, "event history is disabled")
		return
	}
	events := h.events.HistoryWithFilter(chi.URLParam(r, "threadID"), emit.HistoryFilter{
		NodeID: r.URL.Query().Get("node"),
		Msg:    r.URL.Query().Get("msg"),
	})
	JSON(w, http.StatusOK, events)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"error", err)
	}
	Error(w, status, err.Error())
}

func statusFor(err error) int {
	var engineErr *graph.EngineError
	switch {
	case errors.Is(err, analyst.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrThreadSuspended), errors.Is(err, graph.ErrNotSuspended):
		return http.StatusConflict
	case errors.As(err, &engineErr) && engineErr.Code == "CHECKPOINT_CONFLICT":
		return http.StatusConflict
	case errors.As(err, &engineErr) && engineErr.Code == "INVALID_THREAD":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// requestLogger logs one structured line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chiMiddleware.GetReqID(r.Context()))
		})
	}
}
