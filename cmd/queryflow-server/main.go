// queryflow-server serves the portfolio query assistant over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/queryflow/graph"
	"github.com/dshills/queryflow/graph/emit"
	"github.com/dshills/queryflow/internal/app"
	"github.com/dshills/queryflow/internal/config"
	"github.com/dshills/queryflow/internal/server"
)

func main() {
	reseed := flag.Bool("reseed", false, "wipe the portfolio database and load fresh sample data")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	events := emit.NewBufferedEmitter(0)
	emitters := []emit.Emitter{events, emit.NewLogEmitter(logger)}

	var tp *sdktrace.TracerProvider
	if cfg.TracingEnabled {
		tp = sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("queryflow")))
		slog.Info("Tracing enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, app.Options{
		Emitter: emit.Multi(emitters...),
		Metrics: graph.NewPrometheusMetrics(registry),
		Reseed:  *reseed,
	})
	if err != nil {
		slog.Error("Failed to initialize assistant", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Error("Failed to close runtime", "error", closeErr)
		}
	}()
	slog.Info("Assistant ready",
		"provider", cfg.LLM.Provider,
		"checkpoint_backend", cfg.Checkpoint.Backend,
		"data_db", rt.Data.Path())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewHandler(rt.Assistant, events, registry, logger).WithCosts(rt.Costs).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// A turn waits on the model, possibly across several attempts.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to flush traces", "error", err)
		}
	}

	slog.Info("Server stopped successfully")
}
