package config

import (
	"strings"
	"time"

	"github.com/IvanBrykalov/imgprefetch/fetch"
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyEngineDefaults(&cfg.Engine)
	applyHTTPDefaults(&cfg.HTTP)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:9464"
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.EvictionTarget == 0 {
		cfg.EvictionTarget = 0.8
	}
	if cfg.EvictionPolicy == "" {
		cfg.EvictionPolicy = "fifo"
	}
	cfg.EvictionPolicy = strings.ToLower(cfg.EvictionPolicy)
}

func applyHTTPDefaults(cfg *HTTPConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = fetch.DefaultTimeout
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = fetch.DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = fetch.DefaultUserAgent
	}
}
