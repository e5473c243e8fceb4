package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torosent/divideload/internal/config"
	"github.com/torosent/divideload/internal/harness"
	"github.com/torosent/divideload/internal/output"
	"github.com/torosent/divideload/internal/tracing"
)

const tracingShutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runID := output.NewRunID()
	run := tracing.Run{
		ID:                runID,
		Target:            cfg.TargetURL,
		Workers:           cfg.Workers,
		RequestsPerWorker: cfg.RequestsPerWorker,
		BatchSize:         cfg.BatchSize,
	}
	if cfg.Lifecycle.Enabled {
		run.Image = cfg.Lifecycle.ImageRef()
	}
	tp, err := tracing.Init(ctx, cfg.Tracing, run)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	_, err = harness.Run(ctx, cfg, harness.Deps{
		Stdout:    stdout,
		Stderr:    stderr,
		Logger:    logger,
		RunID:     runID,
		Tracer:    tp.Tracer(),
		Propagate: tp.ShouldPropagate(),
	})
	if err != nil && ctx.Err() != nil {
		logger.Warn("received interrupt signal, cleaned up")
	}
	return err
}
