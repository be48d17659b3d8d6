package config

import (
	"fmt"
	"strings"

	"github.com/IvanBrykalov/imgprefetch/engine"
	"github.com/IvanBrykalov/imgprefetch/fetch"
	"github.com/IvanBrykalov/imgprefetch/policy"
	"github.com/IvanBrykalov/imgprefetch/policy/fifo"
	"github.com/IvanBrykalov/imgprefetch/policy/lru"
	"github.com/IvanBrykalov/imgprefetch/profile"
	"github.com/IvanBrykalov/imgprefetch/variant"
)

// Tables returns the configured overrides merged over the default tables.
func (c EngineConfig) Tables() (profile.Tables, error) {
	over := profile.Tables{
		Concurrency: make(map[profile.DeviceProfile]map[profile.NetworkProfile]int),
		Budget:      make(map[profile.DeviceProfile]int64),
	}
	for dk, row := range c.Concurrency {
		d, err := profile.ParseDevice(strings.ToLower(dk))
		if err != nil {
			return profile.Tables{}, fmt.Errorf("engine.concurrency: %w", err)
		}
		over.Concurrency[d] = make(map[profile.NetworkProfile]int, len(row))
		for nk, limit := range row {
			n, err := profile.ParseNetwork(strings.ToLower(nk))
			if err != nil {
				return profile.Tables{}, fmt.Errorf("engine.concurrency.%s: %w", dk, err)
			}
			if limit < 1 {
				return profile.Tables{}, fmt.Errorf("engine.concurrency.%s.%s: limit must be >= 1, got %d", dk, nk, limit)
			}
			over.Concurrency[d][n] = limit
		}
	}
	for dk, b := range c.Budgets {
		d, err := profile.ParseDevice(strings.ToLower(dk))
		if err != nil {
			return profile.Tables{}, fmt.Errorf("engine.budgets: %w", err)
		}
		if b == 0 {
			return profile.Tables{}, fmt.Errorf("engine.budgets.%s: budget must be > 0", dk)
		}
		over.Budget[d] = b.Int64()
	}
	return profile.DefaultTables().Merge(over), nil
}

// Sizes returns the per-size-class byte estimate overrides.
func (c EngineConfig) Sizes() (map[variant.SizeClass]int64, error) {
	out := make(map[variant.SizeClass]int64, len(c.SizeEstimates))
	for k, b := range c.SizeEstimates {
		s, err := variant.Parse(strings.ToLower(k))
		if err != nil {
			return nil, fmt.Errorf("engine.size_estimates: %w", err)
		}
		out[s] = b.Int64()
	}
	return out, nil
}

// Policy returns the eviction order named by EvictionPolicy.
func (c EngineConfig) Policy() policy.Policy[string] {
	if c.EvictionPolicy == "lru" {
		return lru.New[string]()
	}
	return fifo.New[string]()
}

// Retry returns the retry options.
func (c EngineConfig) Retry() engine.RetryOptions {
	return engine.RetryOptions{
		MaxRetries:          c.MaxRetries,
		BaseDelay:           c.BaseDelay,
		MaxDelay:            c.MaxDelay,
		FailFastOnPermanent: c.FailFastOnPermanent,
	}
}

// Probe returns a static probe reporting the configured environment.
func (c ProbeConfig) Probe() profile.StaticProbe {
	return profile.StaticProbe{
		Width:      c.ViewportWidth,
		Mobile:     c.Mobile,
		Connection: c.EffectiveConnection,
		LoadTime:   c.PageLoadTime,
	}
}

// Resolver returns the variant resolver: identity when Param is empty,
// otherwise a query-parameter rewrite with the configured widths.
func (c VariantConfig) Resolver() (variant.Resolver, error) {
	if c.Param == "" {
		return variant.Identity, nil
	}
	widths := make(map[variant.SizeClass]int, len(variant.DefaultWidths))
	for k, v := range variant.DefaultWidths {
		widths[k] = v
	}
	for k, w := range c.Widths {
		s, err := variant.Parse(strings.ToLower(k))
		if err != nil {
			return nil, fmt.Errorf("variant.widths: %w", err)
		}
		if w <= 0 {
			return nil, fmt.Errorf("variant.widths.%s: width must be > 0", k)
		}
		widths[s] = w
	}
	return variant.QueryParam(c.Param, widths), nil
}

// FetchOptions returns the HTTP fetcher options.
func (c HTTPConfig) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:   c.Timeout,
		MaxBytes:  c.MaxBytes.Int64(),
		Verify:    c.Verify,
		UserAgent: c.UserAgent,
	}
}
