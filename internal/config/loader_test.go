package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestApplyConfigSettings(t *testing.T) {
	cfg := Default()
	settings := map[string]interface{}{
		"target":              "http://example.com",
		"processes":           10,
		"requests_per_worker": 3,
		"batch_size":          "7",
		"timeout":             "5s",
		"metrics-addr":        " :9090 ",
		"lifecycle": map[string]interface{}{
			"image":           "example/divider",
			"tag":             "1.0.0",
			"port":            9000,
			"health_attempts": 5,
		},
		"tracing": map[string]interface{}{
			"endpoint":    "localhost:4317",
			"sample_rate": 0.5,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want http://example.com", cfg.TargetURL)
	}
	if cfg.Workers != 10 {
		t.Errorf("Workers = %d, want 10", cfg.Workers)
	}
	if cfg.RequestsPerWorker != 3 {
		t.Errorf("RequestsPerWorker = %d, want 3", cfg.RequestsPerWorker)
	}
	if cfg.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want 7", cfg.BatchSize)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
	if cfg.Lifecycle.ImageRef() != "example/divider:1.0.0" {
		t.Errorf("ImageRef() = %q, want example/divider:1.0.0", cfg.Lifecycle.ImageRef())
	}
	if cfg.Lifecycle.Port != 9000 {
		t.Errorf("Lifecycle.Port = %d, want 9000", cfg.Lifecycle.Port)
	}
	if cfg.Lifecycle.HealthAttempts != 5 {
		t.Errorf("Lifecycle.HealthAttempts = %d, want 5", cfg.Lifecycle.HealthAttempts)
	}
	if !cfg.Lifecycle.Enabled {
		t.Errorf("Lifecycle.Enabled = false, want default true")
	}
	if !cfg.Tracing.Enabled() || cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing = %+v, want endpoint and sample rate 0.5", cfg.Tracing)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	cfg := Default()
	err := applyConfigSettings(cfg, map[string]interface{}{"workers": []int{1}})
	if err == nil {
		t.Fatal("expected error for non-numeric workers")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Default()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--workers=5",
		"-n", "20",
		"--no-docker",
		"--results-format=YAML",
		"--seed=42",
		"--metrics-addr=127.0.0.1:9100",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if cfg.RequestsPerWorker != 20 {
		t.Errorf("RequestsPerWorker = %d, want 20", cfg.RequestsPerWorker)
	}
	if cfg.Lifecycle.Enabled {
		t.Errorf("Lifecycle.Enabled = true, want false after --no-docker")
	}
	if cfg.ResultsFormat != ResultsFormatYAML {
		t.Errorf("ResultsFormat = %q, want yaml", cfg.ResultsFormat)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("MetricsAddr = %q, want 127.0.0.1:9100", cfg.MetricsAddr)
	}
	// Untouched flags keep the defaults.
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, DefaultBatchSize)
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--target=http://example.com/",
		"--workers=2",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want trailing slash trimmed", cfg.TargetURL)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
}
