package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/imgprefetch/profile"
	"github.com/IvanBrykalov/imgprefetch/variant"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
engine:
  max_retries: 5
  base_delay: 500ms
  eviction_policy: LRU
  size_estimates:
    medium: 200KiB
  budgets:
    low: 10MiB
  concurrency:
    low:
      slow: 1
http:
  timeout: 5s
  max_bytes: 2MB
probe:
  viewport_width: 500
  effective_connection: 2g
variant:
  param: w
  widths:
    large: 1600
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, 5, cfg.Engine.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Engine.MaxDelay)
	assert.Equal(t, "lru", cfg.Engine.EvictionPolicy)
	assert.Equal(t, ByteSize(2_000_000), cfg.HTTP.MaxBytes)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)

	tables, err := cfg.Engine.Tables()
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), tables.MemoryBudget(profile.DeviceLow))
	assert.Equal(t, int64(100<<20), tables.MemoryBudget(profile.DeviceMid))
	assert.Equal(t, 1, tables.ConcurrencyLimit(profile.DeviceLow, profile.NetworkSlow))
	assert.Equal(t, 3, tables.ConcurrencyLimit(profile.DeviceLow, profile.NetworkMedium))

	sizes, err := cfg.Engine.Sizes()
	require.NoError(t, err)
	assert.Equal(t, map[variant.SizeClass]int64{variant.Medium: 200 << 10}, sizes)

	r, err := cfg.Variant.Resolver()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg?w=1600", r("https://cdn.example.com/a.jpg", variant.Large))

	// A 500px viewport on 2g is a low-end device on a slow network.
	c := profile.NewClassifier(cfg.Probe.Probe(), profile.ClassifierOptions{})
	defer c.Close()
	d, n := c.Profiles()
	assert.Equal(t, profile.DeviceLow, d)
	assert.Equal(t, profile.NetworkSlow, n)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	t.Setenv("IMGPREFETCH_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestLoad_EnvOverrideWithoutFile(t *testing.T) {
	t.Setenv("IMGPREFETCH_METRICS_ENABLED", "true")
	t.Setenv("IMGPREFETCH_HTTP_MAX_BYTES", "5MiB")
	t.Setenv("IMGPREFETCH_ENGINE_BASE_DELAY", "250ms")
	t.Setenv("IMGPREFETCH_ENGINE_EVICTION_POLICY", "lru")
	t.Setenv("IMGPREFETCH_PROBE_EFFECTIVE_CONNECTION", "3g")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ByteSize(5<<20), cfg.HTTP.MaxBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.BaseDelay)
	assert.Equal(t, "lru", cfg.Engine.EvictionPolicy)
	assert.Equal(t, "3g", cfg.Probe.EffectiveConnection)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
}

func TestLoad_EnvOverridesKeyAbsentFromFile(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	t.Setenv("IMGPREFETCH_ENGINE_MAX_RETRIES", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Engine.MaxRetries)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, 0.8, cfg.Engine.EvictionTarget)
	assert.Equal(t, "fifo", cfg.Engine.EvictionPolicy)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		body string
		want string
	}{
		"policy":         {"engine:\n  eviction_policy: mru\n", "EvictionPolicy"},
		"retries":        {"engine:\n  max_retries: 50\n", "MaxRetries"},
		"max below base": {"engine:\n  base_delay: 10s\n  max_delay: 1s\n", "MaxDelay"},
		"target":         {"engine:\n  eviction_target: 1.5\n", "EvictionTarget"},
		"device tier":    {"engine:\n  budgets:\n    tiny: 1MiB\n", "unknown device tier"},
		"network tier":   {"engine:\n  concurrency:\n    low:\n      dialup: 1\n", "unknown network tier"},
		"zero limit":     {"engine:\n  concurrency:\n    low:\n      slow: 0\n", "limit must be >= 1"},
		"size class":     {"engine:\n  size_estimates:\n    huge: 1MiB\n", "unknown size class"},
		"byte size":      {"http:\n  max_bytes: lots\n", "invalid byte size"},
		"connection":     {"probe:\n  effective_connection: 5g\n", "EffectiveConnection"},
		"width":          {"variant:\n  param: w\n  widths:\n    small: -1\n", "width must be > 0"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSave_LoadsBack(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Engine.Budgets = map[string]ByteSize{"high": 256 << 20}
	cfg.Engine.BaseDelay = 2 * time.Second

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "256 MiB")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestByteSize(t *testing.T) {
	t.Parallel()

	b, err := ParseByteSize("150KiB")
	require.NoError(t, err)
	assert.Equal(t, ByteSize(150<<10), b)
	assert.Equal(t, "150 KiB", b.String())
	assert.Equal(t, int64(150<<10), b.Int64())

	_, err = ParseByteSize("")
	assert.Error(t, err)
}

func TestEngineConfig_Policy(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, EngineConfig{EvictionPolicy: "lru"}.Policy())
	assert.NotNil(t, EngineConfig{}.Policy())

	r := EngineConfig{MaxRetries: 4, BaseDelay: time.Second, MaxDelay: time.Minute, FailFastOnPermanent: true}.Retry()
	assert.Equal(t, 4, r.MaxRetries)
	assert.True(t, r.FailFastOnPermanent)
}
