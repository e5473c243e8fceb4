// Package harness wires configuration, the service lifecycle, the worker pool
// and reporting into a single load test run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/divideload/internal/config"
	"github.com/torosent/divideload/internal/corpus"
	"github.com/torosent/divideload/internal/httpclient"
	"github.com/torosent/divideload/internal/lifecycle"
	"github.com/torosent/divideload/internal/metrics"
	"github.com/torosent/divideload/internal/output"
	"github.com/torosent/divideload/internal/promexport"
	"github.com/torosent/divideload/internal/runner"
)

const (
	preflightTimeout        = 5 * time.Second
	defaultProgressInterval = time.Second
	metricsShutdownTimeout  = 5 * time.Second
)

var (
	// ErrServiceUnreachable is returned when the pre-flight health check fails.
	ErrServiceUnreachable = errors.New("could not connect to service")
	// ErrRunFailed is returned when the run completed but was not clean.
	ErrRunFailed = errors.New("load test failed")
)

// Lifecycle is the part of *lifecycle.Manager the harness uses.
type Lifecycle interface {
	Start(ctx context.Context) (*lifecycle.Handle, error)
	Stop(ctx context.Context)
}

// Deps carries collaborators that tests replace. The zero value is usable.
type Deps struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Observer, when set, sees every record; it is used in addition to the
	// Prometheus exporter started for cfg.MetricsAddr.
	Observer runner.RecordObserver

	// Lifecycle overrides the manager built from config when lifecycle
	// management is enabled.
	Lifecycle Lifecycle
	Runtime   lifecycle.Runtime

	// RunID names the run; one is generated when empty.
	RunID     string
	Tracer    trace.Tracer
	Propagate bool

	NewClient        func(timeout time.Duration) *http.Client
	Sleep            func(ctx context.Context, d time.Duration) error
	Now              func() time.Time
	ProgressInterval time.Duration // negative disables the progress line
}

// Outcome describes a finished run.
type Outcome struct {
	RunID        string
	BatchSize    int
	Result       runner.Result
	Report       metrics.Report
	ArtifactPath string
}

// Succeeded reports whether every request succeeded, every unit ran to
// completion and the run was not interrupted.
func (o Outcome) Succeeded() bool {
	return o.Report.Failed == 0 && len(o.Result.UnitFailures) == 0 && !o.Result.Interrupted
}

func (d *Deps) normalize(cfg *config.Config) {
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Stderr == nil {
		d.Stderr = os.Stderr
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewClient == nil {
		d.NewClient = httpclient.NewClient
	}
	if d.RunID == "" {
		d.RunID = output.NewRunID()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ProgressInterval == 0 {
		d.ProgressInterval = defaultProgressInterval
	}
	if d.Runtime == nil {
		d.Runtime = lifecycle.NewCLIRuntime(cfg.Lifecycle.Runtime)
	}
}

// Run executes one load test. The returned error is nil only for a clean run;
// a run that completed with failures returns its Outcome and ErrRunFailed.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (Outcome, error) {
	if cfg == nil {
		return Outcome{}, errors.New("config is required")
	}
	deps.normalize(cfg)
	log := deps.Logger

	outcome := Outcome{RunID: deps.RunID, BatchSize: cfg.BatchSize}
	startedAt := deps.Now()

	if !cfg.JSONOutput {
		output.PrintBanner(deps.Stdout, output.Banner{
			Target:            cfg.TargetURL,
			Workers:           cfg.Workers,
			RequestsPerWorker: cfg.RequestsPerWorker,
			BatchSize:         cfg.BatchSize,
			DockerEnabled:     cfg.Lifecycle.Enabled,
			Image:             cfg.Lifecycle.ImageRef(),
		})
	}

	if cfg.Lifecycle.Enabled {
		lc := deps.Lifecycle
		if lc == nil {
			m, err := newManager(cfg, deps)
			if err != nil {
				return outcome, err
			}
			lc = m
		}
		defer lc.Stop(context.WithoutCancel(ctx))

		if _, err := lc.Start(ctx); err != nil {
			return outcome, fmt.Errorf("start service container: %w", err)
		}
	}

	names, fromFile, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		return outcome, err
	}
	if fromFile {
		log.Info("loaded corpus", "path", cfg.CorpusPath, "names", names.Len())
	} else {
		log.Warn("corpus file not found, using built-in names", "path", cfg.CorpusPath, "names", names.Len())
	}
	if names.Len() < outcome.BatchSize {
		log.Warn("corpus smaller than batch size, clamping",
			"names", names.Len(), "batch_size", outcome.BatchSize)
		outcome.BatchSize = names.Len()
	}

	builder, err := httpclient.NewRequestBuilder(cfg.TargetURL)
	if err != nil {
		return outcome, err
	}
	if err := httpclient.CheckHealth(ctx, deps.NewClient(preflightTimeout), builder, preflightTimeout); err != nil {
		return outcome, fmt.Errorf("%w at %s: %v", ErrServiceUnreachable, builder.BaseURL(), err)
	}
	log.Info("service health check passed", "target", builder.BaseURL())

	observers := observerList{}
	if deps.Observer != nil {
		observers = append(observers, deps.Observer)
	}
	if cfg.MetricsAddr != "" {
		exporter := promexport.New()
		if err := exporter.Start(cfg.MetricsAddr, log); err != nil {
			return outcome, fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
			defer cancel()
			if err := exporter.Shutdown(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown failed", "error", err)
			}
		}()
		log.Info("serving Prometheus metrics", "addr", exporter.Addr())
		observers = append(observers, exporter)
	}

	pool, err := runner.NewPool(runner.Options{
		Workers:           cfg.Workers,
		RequestsPerWorker: cfg.RequestsPerWorker,
		BatchSize:         outcome.BatchSize,
		MinDelay:          cfg.MinDelay,
		MaxDelay:          cfg.MaxDelay,
		RatePerSecond:     cfg.Rate,
		Seed:              cfg.Seed,
		Sleep:             deps.Sleep,
		NewSender:         senderFactory(cfg, deps, builder, names, observers.observer()),
		OnUnitDone:        unitLogger(log),
	})
	if err != nil {
		return outcome, err
	}

	log.Info("starting load test", "run_id", outcome.RunID)
	var progress *output.ProgressReporter
	if !cfg.JSONOutput && deps.ProgressInterval > 0 {
		progress = output.NewProgressReporter(pool, deps.ProgressInterval, deps.Stderr)
		progress.Start()
	}
	outcome.Result = pool.Run(ctx)
	if progress != nil {
		progress.Stop()
	}
	if outcome.Result.Interrupted {
		log.Warn("load test interrupted", "elapsed", outcome.Result.Duration.Round(time.Millisecond))
	} else {
		log.Info("load test completed", "elapsed", outcome.Result.Duration.Round(time.Millisecond))
	}

	outcome.Report = metrics.Summarize(outcome.Result.Records)
	run := output.RunInfo{
		RunID:        outcome.RunID,
		Duration:     outcome.Result.Duration,
		Interrupted:  outcome.Result.Interrupted,
		UnitFailures: outcome.Result.UnitFailures,
	}
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(deps.Stdout, run, outcome.Report); err != nil {
			log.Error("failed to write JSON report", "error", err)
		}
	} else {
		output.PrintReport(deps.Stdout, run, outcome.Report)
	}

	if cfg.ResultsDir != "" {
		path, err := output.WriteArtifact(cfg.ResultsDir, outcome.RunID, startedAt, outcome.Result.Records, string(cfg.ResultsFormat))
		if err != nil {
			log.Error("could not save results file", "error", err)
		} else {
			outcome.ArtifactPath = path
			log.Info("detailed results saved", "path", path)
		}
	}

	if !outcome.Succeeded() {
		return outcome, fmt.Errorf("%w: %d failed requests, %d failed workers, interrupted=%t",
			ErrRunFailed, outcome.Report.Failed, len(outcome.Result.UnitFailures), outcome.Result.Interrupted)
	}
	return outcome, nil
}

func newManager(cfg *config.Config, deps Deps) (*lifecycle.Manager, error) {
	lc := cfg.Lifecycle
	return lifecycle.NewManager(lifecycle.Options{
		Runtime:        deps.Runtime,
		Name:           lc.ContainerName,
		Image:          lc.ImageRef(),
		Port:           lc.Port,
		HealthAttempts: lc.HealthAttempts,
		HealthInterval: lc.HealthInterval,
		Logger:         deps.Logger,
	})
}

func senderFactory(cfg *config.Config, deps Deps, builder *httpclient.RequestBuilder, names *corpus.Corpus, obs runner.RecordObserver) runner.SenderFactory {
	var failures runner.FailureLogger
	if cfg.LogErrors {
		failures = &slogFailureLogger{log: deps.Logger}
	}
	return func(workerID int) (runner.Sender, error) {
		seed := time.Now().UnixNano() + int64(workerID)
		if cfg.Seed != 0 {
			seed = driverSeed(cfg.Seed, workerID)
		}
		driver, err := runner.NewDriver(runner.DriverOptions{
			Client:    deps.NewClient(cfg.Timeout),
			Builder:   builder,
			Corpus:    names,
			Rand:      rand.New(rand.NewSource(seed)),
			Tracer:    deps.Tracer,
			Propagate: deps.Propagate,
		})
		if err != nil {
			return nil, err
		}
		return runner.WithObserver(runner.WithLogging(driver, failures), obs), nil
	}
}

// driverSeed keeps the driver's source apart from the pool's jitter source,
// which is seeded with seed+workerID.
func driverSeed(seed int64, workerID int) int64 {
	return seed*1_000_003 + int64(workerID)
}

func unitLogger(log *slog.Logger) func(runner.UnitSummary) {
	return func(s runner.UnitSummary) {
		attrs := []any{
			"worker", s.WorkerID,
			"requests", s.Succeeded + s.Failed,
			"failed", s.Failed,
			"elapsed", s.Elapsed.Round(time.Millisecond),
		}
		switch {
		case s.Err != nil:
			log.Error("worker failed", append(attrs, "error", s.Err)...)
		case s.Interrupted:
			log.Warn("worker interrupted", attrs...)
		default:
			log.Info("worker completed", attrs...)
		}
	}
}

type observerList []runner.RecordObserver

func (l observerList) observer() runner.RecordObserver {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	}
	return l
}

func (l observerList) Observe(rec runner.Record) {
	for _, o := range l {
		o.Observe(rec)
	}
}

type slogFailureLogger struct {
	log *slog.Logger
}

func (l *slogFailureLogger) LogFailure(rec runner.Record) {
	l.log.Warn("request failed",
		"worker", rec.WorkerID,
		"request", rec.RequestID,
		"mode", rec.Mode,
		"batch_size", rec.BatchSize,
		"kind", rec.ErrorKind,
		"status", rec.StatusCode,
		"error", rec.Error,
	)
}
