package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "divideload",
		Short:         "Concurrent load test for a name division HTTP service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("target", DefaultTargetURL, "Base URL of the service under test")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")

	// Load shape flags
	flags.IntP("workers", "w", DefaultWorkers, "Number of independent workers")
	flags.IntP("requests-per-worker", "n", DefaultRequestsPerWorker, "Sequential requests issued by each worker")
	flags.IntP("batch-size", "b", DefaultBatchSize, "Names sent per request")
	flags.Int("rate", 0, "Per-worker requests per second cap (0 means unlimited)")
	flags.Duration("min-delay", DefaultMinDelay, "Lower bound of the random pause between requests")
	flags.Duration("max-delay", DefaultMaxDelay, "Upper bound of the random pause between requests")
	flags.Int64("seed", 0, "Random seed for mode and batch selection (0 means time based)")

	// Corpus flags
	flags.String("corpus", DefaultCorpusPath, "Path to the name corpus, one name per line")

	// Container flags
	flags.Bool("no-docker", false, "Skip container management and use an already running service")
	flags.String("runtime", "docker", "Container CLI used to manage the service")
	flags.String("image", DefaultImage, "Service container image")
	flags.String("image-tag", DefaultImageTag, "Service container image tag")
	flags.Int("port", DefaultPort, "Host port the service container is published on")
	flags.String("container-name", DefaultContainerName, "Logical name of the service container")
	flags.Int("health-attempts", DefaultHealthAttempts, "Health probes before the service is declared failed")
	flags.Duration("health-interval", DefaultHealthInterval, "Pause between health probes")

	// Output flags
	flags.String("results-dir", DefaultResultsDir, "Directory for the per-request results artifact")
	flags.String("results-format", string(ResultsFormatJSON), "Encoding of the results artifact: 'json' or 'yaml'")
	flags.Bool("json-output", false, "Emit the summary as JSON")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for per-request spans (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of requests to trace")
	flags.Bool("tracing-insecure", true, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Send W3C traceparent headers (defaults to on when a tracing endpoint is set)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("workers") {
		val, err := fs.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = val
	}
	if fs.Changed("requests-per-worker") {
		val, err := fs.GetInt("requests-per-worker")
		if err != nil {
			return err
		}
		cfg.RequestsPerWorker = val
	}
	if fs.Changed("batch-size") {
		val, err := fs.GetInt("batch-size")
		if err != nil {
			return err
		}
		cfg.BatchSize = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("min-delay") {
		val, err := fs.GetDuration("min-delay")
		if err != nil {
			return err
		}
		cfg.MinDelay = val
	}
	if fs.Changed("max-delay") {
		val, err := fs.GetDuration("max-delay")
		if err != nil {
			return err
		}
		cfg.MaxDelay = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("corpus") {
		val, err := fs.GetString("corpus")
		if err != nil {
			return err
		}
		cfg.CorpusPath = strings.TrimSpace(val)
	}
	if fs.Changed("no-docker") {
		val, err := fs.GetBool("no-docker")
		if err != nil {
			return err
		}
		cfg.Lifecycle.Enabled = !val
	}
	if fs.Changed("runtime") {
		val, err := fs.GetString("runtime")
		if err != nil {
			return err
		}
		cfg.Lifecycle.Runtime = strings.TrimSpace(val)
	}
	if fs.Changed("image") {
		val, err := fs.GetString("image")
		if err != nil {
			return err
		}
		cfg.Lifecycle.Image = strings.TrimSpace(val)
	}
	if fs.Changed("image-tag") {
		val, err := fs.GetString("image-tag")
		if err != nil {
			return err
		}
		cfg.Lifecycle.Tag = strings.TrimSpace(val)
	}
	if fs.Changed("port") {
		val, err := fs.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Lifecycle.Port = val
	}
	if fs.Changed("container-name") {
		val, err := fs.GetString("container-name")
		if err != nil {
			return err
		}
		cfg.Lifecycle.ContainerName = strings.TrimSpace(val)
	}
	if fs.Changed("health-attempts") {
		val, err := fs.GetInt("health-attempts")
		if err != nil {
			return err
		}
		cfg.Lifecycle.HealthAttempts = val
	}
	if fs.Changed("health-interval") {
		val, err := fs.GetDuration("health-interval")
		if err != nil {
			return err
		}
		cfg.Lifecycle.HealthInterval = val
	}
	if fs.Changed("results-dir") {
		val, err := fs.GetString("results-dir")
		if err != nil {
			return err
		}
		cfg.ResultsDir = strings.TrimSpace(val)
	}
	if fs.Changed("results-format") {
		val, err := fs.GetString("results-format")
		if err != nil {
			return err
		}
		cfg.ResultsFormat = ResultsFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = val
	}
	if fs.Changed("metrics-addr") {
		val, err := fs.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	return nil
}
