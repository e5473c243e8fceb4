// Package promexport publishes live request metrics in the Prometheus
// exposition format while a load test runs.
package promexport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/divideload/internal/runner"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Exporter records per-request metrics into its own registry.
type Exporter struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
	names    prometheus.Counter

	registry *prometheus.Registry

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// New returns an Exporter with all collectors registered.
func New() *Exporter {
	registry := prometheus.NewRegistry()
	e := &Exporter{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divideload_requests_total",
				Help: "Division requests sent, by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "divideload_request_duration_seconds",
				Help:    "Latency of successful division requests",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"mode"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divideload_failures_total",
				Help: "Failed division requests by failure kind",
			},
			[]string{"kind"},
		),
		names: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "divideload_names_divided_total",
			Help: "Names divided by successful requests",
		}),
		registry: registry,
	}
	registry.MustRegister(e.requests, e.latency, e.failures, e.names)
	return e
}

// Observe implements runner.RecordObserver.
func (e *Exporter) Observe(rec runner.Record) {
	mode := string(rec.Mode)
	if rec.Succeeded {
		e.requests.WithLabelValues(mode, outcomeSuccess).Inc()
		e.latency.WithLabelValues(mode).Observe(rec.Latency.Seconds())
		if rec.Response != nil {
			e.names.Add(float64(len(rec.Response.DividedNames)))
		}
		return
	}
	e.requests.WithLabelValues(mode, outcomeFailure).Inc()
	kind := string(rec.ErrorKind)
	if kind == "" {
		kind = "unknown"
	}
	e.failures.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry for tests and embedding.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry on any path.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Start listens on addr and serves /metrics until Shutdown. An addr of ":0"
// picks a free port; Addr reports the bound address.
func (e *Exporter) Start(addr string, log *slog.Logger) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server != nil {
		return errors.New("metrics server already running")
	}
	if log == nil {
		log = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	e.addr = ln.Addr().String()

	srv := e.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or "" before Start.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

// Shutdown stops the metrics server. It is a no-op if Start was not called.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	srv := e.server
	e.server = nil
	e.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
