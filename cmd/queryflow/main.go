// queryflow is the interactive console for the portfolio query assistant.
//
// Each question is turned into SQL, shown for review, and only run once
// approved. The conversation is checkpointed under a fixed thread so it
// survives restarts, including a query left awaiting review.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dshills/queryflow/graph/emit"
	"github.com/dshills/queryflow/internal/app"
	"github.com/dshills/queryflow/internal/config"
)

func main() {
	reseed := flag.Bool("reseed", false, "wipe the portfolio database and load fresh sample data")
	verbose := flag.Bool("v", false, "log workflow events to stderr")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("configuration:"), err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, *reseed, *verbose, logger); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, reseed, verbose bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newConsole(cfg.ThreadID, os.Stdin, os.Stdout)
	var events emit.Emitter = c.progress()
	if verbose {
		events = emit.Multi(events, emit.NewLogEmitter(logger))
	}

	rt, err := app.Build(ctx, cfg, app.Options{Emitter: events, Reseed: reseed})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error("Failed to close runtime", "error", closeErr)
		}
	}()
	c.assistant = rt.Assistant
	c.costs = rt.Costs

	stats, err := rt.Data.Stats(ctx)
	if err != nil {
		return err
	}
	c.banner(stats)
	return c.run(ctx)
}
