// Package config loads the imgprefetch command line configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (IMGPREFETCH_*, "." replaced by "_")
//  2. Configuration file (YAML)
//  3. Defaults (see ApplyDefaults)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Probe   ProbeConfig   `mapstructure:"probe" yaml:"probe"`
	Variant VariantConfig `mapstructure:"variant" yaml:"variant"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	// Format specifies the log output format.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig controls the diagnostics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Listen is the address of the /metrics, /stats and /healthz endpoints.
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port" yaml:"listen"`
}

// EngineConfig maps onto engine.Options.
type EngineConfig struct {
	MaxRetries          int           `mapstructure:"max_retries" validate:"gte=1,lte=10" yaml:"max_retries"`
	BaseDelay           time.Duration `mapstructure:"base_delay" validate:"gt=0" yaml:"base_delay"`
	MaxDelay            time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay" yaml:"max_delay"`
	FailFastOnPermanent bool          `mapstructure:"fail_fast_on_permanent" yaml:"fail_fast_on_permanent"`

	// EvictionTarget is the fraction of the budget an eviction pass trims to.
	EvictionTarget float64 `mapstructure:"eviction_target" validate:"gt=0,lte=1" yaml:"eviction_target"`
	// EvictionPolicy orders loaded entries for eviction: fifo (load order)
	// or lru (use order).
	EvictionPolicy string `mapstructure:"eviction_policy" validate:"oneof=fifo lru" yaml:"eviction_policy"`

	// SizeEstimates overrides the per-size-class byte estimates.
	// Keys: thumbnail, small, medium, large.
	SizeEstimates map[string]ByteSize `mapstructure:"size_estimates" yaml:"size_estimates,omitempty"`
	// Budgets overrides the memory budget per device tier. Keys: low, mid, high.
	Budgets map[string]ByteSize `mapstructure:"budgets" yaml:"budgets,omitempty"`
	// Concurrency overrides in-flight ceilings: device -> network -> limit.
	Concurrency map[string]map[string]int `mapstructure:"concurrency" yaml:"concurrency,omitempty"`
}

// HTTPConfig configures the HTTP fetcher.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`
	MaxBytes  ByteSize      `mapstructure:"max_bytes" validate:"gt=0" yaml:"max_bytes"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	// Verify decodes each image header and fails undecodable responses.
	Verify bool `mapstructure:"verify" yaml:"verify"`
}

// ProbeConfig describes the client environment for the command line tool,
// which has no viewport or connection of its own.
type ProbeConfig struct {
	ViewportWidth       int           `mapstructure:"viewport_width" validate:"gte=0" yaml:"viewport_width"`
	Mobile              bool          `mapstructure:"mobile" yaml:"mobile"`
	EffectiveConnection string        `mapstructure:"effective_connection" validate:"omitempty,oneof=slow-2g 2g 3g 4g" yaml:"effective_connection"`
	PageLoadTime        time.Duration `mapstructure:"page_load_time" validate:"gte=0" yaml:"page_load_time"`
}

// VariantConfig selects how size-variant locators are derived.
type VariantConfig struct {
	// Param is the query parameter carrying the width; empty disables
	// rewriting (every size class uses the source locator).
	Param string `mapstructure:"param" yaml:"param"`
	// Widths overrides the width per size class.
	Widths map[string]int `mapstructure:"widths" yaml:"widths,omitempty"`
}

// Load reads configuration from file, environment and defaults.
// A missing file is not an error; defaults and environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	setDefaults(v, DefaultConfig())

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the tier/size-class keys of map sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	var errs []error
	if _, err := cfg.Engine.Tables(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Engine.Sizes(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Variant.Resolver(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/imgprefetch/config.yaml, falling
// back to ~/.config.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "imgprefetch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "imgprefetch")
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("IMGPREFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// setDefaults registers every scalar key so that IMGPREFETCH_* variables
// apply even when the file does not mention the key, or there is no file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)

	v.SetDefault("engine.max_retries", d.Engine.MaxRetries)
	v.SetDefault("engine.base_delay", d.Engine.BaseDelay)
	v.SetDefault("engine.max_delay", d.Engine.MaxDelay)
	v.SetDefault("engine.fail_fast_on_permanent", d.Engine.FailFastOnPermanent)
	v.SetDefault("engine.eviction_target", d.Engine.EvictionTarget)
	v.SetDefault("engine.eviction_policy", d.Engine.EvictionPolicy)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.max_bytes", d.HTTP.MaxBytes)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.verify", d.HTTP.Verify)

	v.SetDefault("probe.viewport_width", d.Probe.ViewportWidth)
	v.SetDefault("probe.mobile", d.Probe.Mobile)
	v.SetDefault("probe.effective_connection", d.Probe.EffectiveConnection)
	v.SetDefault("probe.page_load_time", d.Probe.PageLoadTime)

	v.SetDefault("variant.param", d.Variant.Param)
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// ---- decode hooks ----

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return ParseByteSize(v)
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
