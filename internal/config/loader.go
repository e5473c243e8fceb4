package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Default returns the configuration used when no file or flag overrides a value.
func Default() *Config {
	return &Config{
		TargetURL:         DefaultTargetURL,
		Workers:           DefaultWorkers,
		RequestsPerWorker: DefaultRequestsPerWorker,
		BatchSize:         DefaultBatchSize,
		CorpusPath:        DefaultCorpusPath,
		Timeout:           DefaultTimeout,
		MinDelay:          DefaultMinDelay,
		MaxDelay:          DefaultMaxDelay,
		ResultsDir:        DefaultResultsDir,
		ResultsFormat:     ResultsFormatJSON,
		LogLevel:          "info",
		Lifecycle: LifecycleConfig{
			Enabled:        true,
			Runtime:        "docker",
			Image:          DefaultImage,
			Tag:            DefaultImageTag,
			Port:           DefaultPort,
			ContainerName:  DefaultContainerName,
			HealthAttempts: DefaultHealthAttempts,
			HealthInterval: DefaultHealthInterval,
		},
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
			Insecure:   true,
		},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Precedence is flags, then the config file, then defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimRight(strings.TrimSpace(cfg.TargetURL), "/")
	cfg.CorpusPath = strings.TrimSpace(cfg.CorpusPath)

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "workers", "processes"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("workers: %w", err)
		}
		cfg.Workers = val
	}

	if raw, ok := lookupSetting(settings, "requestsperworker", "requests_per_worker", "requests-per-worker"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("requestsPerWorker: %w", err)
		}
		cfg.RequestsPerWorker = val
	}

	if raw, ok := lookupSetting(settings, "batchsize", "batch_size", "batch-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("batchSize: %w", err)
		}
		cfg.BatchSize = val
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}

	if raw, ok := lookupSetting(settings, "mindelay", "min_delay", "min-delay"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("minDelay: %w", err)
		}
		cfg.MinDelay = dur
	}

	if raw, ok := lookupSetting(settings, "maxdelay", "max_delay", "max-delay"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("maxDelay: %w", err)
		}
		cfg.MaxDelay = dur
	}

	if raw, ok := lookupSetting(settings, "corpus", "test_data", "test-data"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("corpus: %w", err)
		}
		cfg.CorpusPath = val
	}

	if raw, ok := lookupSetting(settings, "resultsdir", "results_dir", "results-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("resultsDir: %w", err)
		}
		cfg.ResultsDir = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "resultsformat", "results_format", "results-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("resultsFormat: %w", err)
		}
		cfg.ResultsFormat = ResultsFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("logErrors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
		cfg.LogLevel = val
	}

	if raw, ok := lookupSetting(settings, "metricsaddr", "metrics_addr", "metrics-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metricsAddr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "nodocker", "no_docker", "no-docker"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("noDocker: %w", err)
		}
		cfg.Lifecycle.Enabled = !val
	}

	if raw, ok := lookupSetting(settings, "lifecycle", "docker"); ok {
		if err := applyLifecycleSettings(&cfg.Lifecycle, raw); err != nil {
			return fmt.Errorf("lifecycle: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyLifecycleSettings(lc *LifecycleConfig, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}

	if v, ok := lookupSetting(settings, "enabled"); ok {
		val, err := asBool(v)
		if err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
		lc.Enabled = val
	}
	if v, ok := lookupSetting(settings, "runtime"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("runtime: %w", err)
		}
		lc.Runtime = strings.TrimSpace(val)
	}
	if v, ok := lookupSetting(settings, "image"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("image: %w", err)
		}
		lc.Image = strings.TrimSpace(val)
	}
	if v, ok := lookupSetting(settings, "tag", "image_tag", "image-tag"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("tag: %w", err)
		}
		lc.Tag = strings.TrimSpace(val)
	}
	if v, ok := lookupSetting(settings, "port"); ok {
		val, err := asInt(v)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		lc.Port = val
	}
	if v, ok := lookupSetting(settings, "containername", "container_name", "container-name", "name"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("containerName: %w", err)
		}
		lc.ContainerName = strings.TrimSpace(val)
	}
	if v, ok := lookupSetting(settings, "healthattempts", "health_attempts", "health-attempts"); ok {
		val, err := asInt(v)
		if err != nil {
			return fmt.Errorf("healthAttempts: %w", err)
		}
		lc.HealthAttempts = val
	}
	if v, ok := lookupSetting(settings, "healthinterval", "health_interval", "health-interval"); ok {
		dur, err := asDuration(v)
		if err != nil {
			return fmt.Errorf("healthInterval: %w", err)
		}
		lc.HealthInterval = dur
	}
	return nil
}

func applyTracingSettings(tc *TracingConfig, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}

	if v, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if v, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if v, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("serviceName: %w", err)
		}
		tc.ServiceName = val
	}
	if v, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(v)
		if err != nil {
			return fmt.Errorf("sampleRate: %w", err)
		}
		tc.SampleRate = val
	}
	if v, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(v)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if v, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(v)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return nil
}
