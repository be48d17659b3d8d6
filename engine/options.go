package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/imgprefetch/policy"
	"github.com/IvanBrykalov/imgprefetch/profile"
	"github.com/IvanBrykalov/imgprefetch/variant"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictBudget: removed to bring loaded bytes back under the memory budget.
	EvictBudget EvictReason = iota
	// EvictPurge: removed by an explicit PurgeFromCache call.
	EvictPurge
)

func (r EvictReason) String() string {
	if r == EvictPurge {
		return "purge"
	}
	return "budget"
}

// Outcome is the result of one fetch attempt.
type Outcome int

const (
	// OutcomeLoaded: the variant loaded.
	OutcomeLoaded Outcome = iota
	// OutcomeRetry: the attempt failed and a retry was scheduled.
	OutcomeRetry
	// OutcomeFailed: the attempt failed and the entry is now in error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetry:
		return "retry"
	case OutcomeFailed:
		return "failed"
	default:
		return "loaded"
	}
}

// Metrics exposes engine-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Hooks are called under the engine lock; keep them cheap.
type Metrics interface {
	FetchStarted()
	FetchDone(o Outcome, took time.Duration)
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
	Queue(pending, inflight, limit int)
}

// Clock provides time in UnixNano and one-shot timers; useful for
// deterministic tests.
type Clock interface {
	NowUnixNano() int64
	// AfterFunc runs f after d and returns a function that cancels it.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type wallClock struct{}

func (wallClock) NowUnixNano() int64 { return time.Now().UnixNano() }

func (wallClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Fetcher loads one variant locator. Fetch must call done exactly once, from
// any goroutine, possibly before Fetch returns. ctx is cancelled when the
// engine is closed.
type Fetcher interface {
	Fetch(ctx context.Context, url string, done func(error))
}

// FetcherFunc adapts a blocking function to Fetcher by running it on its own
// goroutine.
type FetcherFunc func(ctx context.Context, url string) error

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string, done func(error)) {
	go func() { done(f(ctx, url)) }()
}

// Preconnector primes a connection to an origin ("scheme://host[:port]").
// Errors are ignored by the engine.
type Preconnector interface {
	Preconnect(ctx context.Context, origin string) error
}

// RetryOptions controls retry-with-backoff of failed fetches.
type RetryOptions struct {
	// MaxRetries is the failure count that makes an entry terminal.
	// 0 => 3.
	MaxRetries int
	// BaseDelay is multiplied by 2^retryCount to get the backoff delay.
	// 0 => 1s (2s, 4s, ...).
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay. 0 => 30s.
	MaxDelay time.Duration
	// FailFastOnPermanent moves an entry straight to error when the fetch
	// error is classified as permanent (see github.com/jmgilman/go/errors).
	FailFastOnPermanent bool
}

// DefaultSizeEstimates are the per-size-class byte estimates used for
// memory accounting.
var DefaultSizeEstimates = map[variant.SizeClass]int64{
	variant.Thumbnail: 20 << 10,
	variant.Small:     60 << 10,
	variant.Medium:    150 << 10,
	variant.Large:     400 << 10,
}

// DefaultEvictionTarget is the fraction of the budget eviction trims down to.
const DefaultEvictionTarget = 0.8

// Options configures the engine. Zero values are safe except Fetcher;
// sane defaults are applied in New():
//   - nil Resolver      => variant.Identity
//   - nil Classifier    => classifier over profile.StaticProbe{}
//   - nil Policy        => fifo (load-recency)
//   - nil Metrics       => NoopMetrics
type Options struct {
	// Fetcher performs the actual loads. Required.
	Fetcher Fetcher

	// Preconnector primes origins for PreloadItemImages. Nil disables warm-up.
	Preconnector Preconnector

	// Resolver derives size-variant locators; computed once per entry.
	Resolver variant.Resolver

	// Classifier supplies the current device/network tiers. It is read on
	// every dispatch pass and every eviction check.
	Classifier *profile.Classifier

	// Tables maps tiers to concurrency and memory ceilings.
	// Zero value => profile.DefaultTables().
	Tables profile.Tables

	// Policy orders loaded entries for eviction; nil => load order.
	Policy policy.Policy[string]

	// SizeEstimates overrides DefaultSizeEstimates per size class.
	SizeEstimates map[variant.SizeClass]int64

	// EvictionTarget is the fraction of the budget an eviction pass trims to.
	// 0 => DefaultEvictionTarget.
	EvictionTarget float64

	Retry RetryOptions

	// Observability
	// OnEvict is called after the engine lock is released, once per removed entry.
	OnEvict func(locator string, reason EvictReason)
	Metrics Metrics
	Logger  *slog.Logger

	// SessionID labels logs and stats; empty => a random UUID.
	SessionID string

	// Clock allows overriding time source and timers (tests). Nil => time package.
	Clock Clock
}
