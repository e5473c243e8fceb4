// Package config loads divideload settings from flags and an optional
// JSON or YAML file, flags taking precedence.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultTargetURL         = "http://localhost:8000"
	DefaultWorkers           = 4
	DefaultRequestsPerWorker = 10
	DefaultBatchSize         = 5
	DefaultCorpusPath        = "test-data/10000names.txt"
	DefaultImage             = "rskmoi/namedivider-api"
	DefaultImageTag          = "0.3.0"
	DefaultPort              = 8000
	DefaultContainerName     = "namedivider-load-test"
	DefaultTimeout           = 30 * time.Second
	DefaultResultsDir        = "results"
	DefaultHealthAttempts    = 30
	DefaultHealthInterval    = time.Second
	DefaultMinDelay          = 10 * time.Millisecond
	DefaultMaxDelay          = 100 * time.Millisecond
)

// ResultsFormat selects the encoding of the persisted per-request artifact.
type ResultsFormat string

const (
	ResultsFormatJSON ResultsFormat = "json"
	ResultsFormatYAML ResultsFormat = "yaml"
)

type Config struct {
	TargetURL         string          `mapstructure:"target"`
	Workers           int             `mapstructure:"workers"`
	RequestsPerWorker int             `mapstructure:"requests_per_worker"`
	BatchSize         int             `mapstructure:"batch_size"`
	CorpusPath        string          `mapstructure:"corpus"`
	Timeout           time.Duration   `mapstructure:"timeout"`
	Rate              int             `mapstructure:"rate"`
	Seed              int64           `mapstructure:"seed"`
	MinDelay          time.Duration   `mapstructure:"min_delay"`
	MaxDelay          time.Duration   `mapstructure:"max_delay"`
	ResultsDir        string          `mapstructure:"results_dir"`
	ResultsFormat     ResultsFormat   `mapstructure:"results_format"`
	JSONOutput        bool            `mapstructure:"json_output"`
	LogErrors         bool            `mapstructure:"log_errors"`
	LogLevel          string          `mapstructure:"log_level"`
	MetricsAddr       string          `mapstructure:"metrics_addr"`
	ConfigFile        string          `mapstructure:"-"`
	Lifecycle         LifecycleConfig `mapstructure:"lifecycle"`
	Tracing           TracingConfig   `mapstructure:"tracing"`
}

// LifecycleConfig controls management of the service container under test.
type LifecycleConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Runtime        string        `mapstructure:"runtime"` // container CLI, "docker" by default
	Image          string        `mapstructure:"image"`
	Tag            string        `mapstructure:"tag"`
	Port           int           `mapstructure:"port"`
	ContainerName  string        `mapstructure:"container_name"`
	HealthAttempts int           `mapstructure:"health_attempts"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// ImageRef returns the fully qualified image reference.
func (l LifecycleConfig) ImageRef() string {
	if strings.TrimSpace(l.Tag) == "" {
		return l.Image
	}
	return l.Image + ":" + l.Tag
}

// TracingConfig configures OpenTelemetry export of per-request spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	// Propagate overrides whether traceparent headers are sent. Unset means
	// "only when exporting".
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether W3C trace headers go out with each request.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// TotalRequests is the number of requests the run will attempt.
func (c Config) TotalRequests() int {
	return c.Workers * c.RequestsPerWorker
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
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

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	target := strings.TrimSpace(c.TargetURL)
	if target == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	} else if u, err := url.Parse(target); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("target %q must be an absolute http(s) URL", target))
	}

	if c.Workers > 500 {
		fmt.Fprintf(os.Stderr, "WARNING: High worker count configured (%d workers). Ensure you have authorization to test the target system.\n", c.Workers)
	}

	if c.Workers < 1 {
		issues = append(issues, "workers must be >= 1")
	}
	if c.RequestsPerWorker < 0 {
		issues = append(issues, "requests-per-worker must be >= 0")
	}
	if c.BatchSize < 1 {
		issues = append(issues, "batch-size must be >= 1")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		issues = append(issues, "delays must be >= 0")
	}
	if c.MaxDelay < c.MinDelay {
		issues = append(issues, "max-delay must be >= min-delay")
	}
	switch c.ResultsFormat {
	case ResultsFormatJSON, ResultsFormatYAML:
	default:
		issues = append(issues, fmt.Sprintf("results-format must be json or yaml, got %q", c.ResultsFormat))
	}

	issues = append(issues, validateLifecycleConfig(c.Lifecycle)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateLifecycleConfig(l LifecycleConfig) []string {
	if !l.Enabled {
		return nil
	}
	var issues []string
	if strings.TrimSpace(l.Image) == "" {
		issues = append(issues, "lifecycle: image is required when container management is enabled")
	}
	if strings.TrimSpace(l.ContainerName) == "" {
		issues = append(issues, "lifecycle: container name is required")
	}
	if l.Port < 1 || l.Port > 65535 {
		issues = append(issues, fmt.Sprintf("lifecycle: port %d out of range", l.Port))
	}
	if l.HealthAttempts < 1 {
		issues = append(issues, "lifecycle: health attempts must be >= 1")
	}
	if l.HealthInterval < 0 {
		issues = append(issues, "lifecycle: health interval must be >= 0")
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	if !t.Enabled() {
		return nil
	}
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
