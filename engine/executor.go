package engine

import (
	"math"
	"sync"
	"time"

	"github.com/jmgilman/go/errors"
)

// flight is one fetch attempt. The inflight map holds at most one flight per
// locator; a completion whose flight is no longer registered is ignored.
type flight struct {
	entry   *entry
	url     string
	started int64
}

func retryDefaults(r RetryOptions) RetryOptions {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 3
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 30 * time.Second
	}
	return r
}

// backoff returns BaseDelay * 2^retries, capped at MaxDelay.
func (r RetryOptions) backoff(retries int) time.Duration {
	f := float64(r.BaseDelay) * math.Pow(2, float64(retries))
	if f >= float64(r.MaxDelay) {
		return r.MaxDelay
	}
	return time.Duration(f)
}

// permanent reports whether err carries a permanent classification. Errors
// without a classification are treated as transient.
func permanent(err error) bool {
	var pe errors.PlatformError
	if !errors.As(err, &pe) {
		return false
	}
	return !pe.Classification().IsRetryable()
}

// ---- dispatch (mu held) ----

// dispatchLocked starts queued entries, best first, until the concurrency
// limit for the current tiers is reached. Tiers are read on every pass.
func (g *engine) dispatchLocked() {
	if g.closed {
		return
	}
	d, n := g.classifier.Profiles()
	limit := g.tables.ConcurrencyLimit(d, n)

	if g.queue.len() > 0 && len(g.inflight) < limit {
		g.queue.sort()
		for len(g.inflight) < limit {
			e := g.queue.pop(g.eligible)
			if e == nil {
				break
			}
			g.startLocked(e)
		}
	}
	g.opt.Metrics.Queue(g.queue.len(), len(g.inflight), limit)
}

// eligible filters the queue during a dispatch pass.
func (g *engine) eligible(e *entry) bool {
	if g.hidden && e.priority < Visible {
		return false
	}
	// A purged entry may still have its previous fetch outstanding.
	_, busy := g.inflight[e.locator]
	return !busy
}

func (g *engine) startLocked(e *entry) {
	e.state = StateLoading
	e.escalated = false
	f := &flight{
		entry:   e,
		url:     e.variants[e.size],
		started: g.opt.Clock.NowUnixNano(),
	}
	g.inflight[e.locator] = f
	g.opt.Metrics.FetchStarted()
	g.fx.starts = append(g.fx.starts, f)
	g.logger.Debug("fetch started",
		"locator", e.locator, "url", f.url,
		"priority", int(e.priority), "attempt", e.retries+1)
}

// ---- execution (no lock held) ----

// launch hands f to the Fetcher. done is guarded so that a Fetcher calling
// it twice cannot corrupt the engine.
func (g *engine) launch(f *flight) {
	var once sync.Once
	g.opt.Fetcher.Fetch(g.ctx, f.url, func(err error) {
		once.Do(func() { g.finish(f, err) })
	})
}

// finish applies the outcome of f and runs the next dispatch pass.
func (g *engine) finish(f *flight, err error) {
	g.mu.Lock()
	loc := f.entry.locator
	if g.inflight[loc] != f {
		// Closed while in flight.
		g.mu.Unlock()
		return
	}
	delete(g.inflight, loc)
	took := time.Duration(g.opt.Clock.NowUnixNano() - f.started)

	if cur := g.store.get(loc); cur != f.entry {
		g.finishPurgedLocked(f, cur, err, took)
	} else if err == nil {
		g.loadedLocked(f.entry, took)
	} else {
		g.failedLocked(f.entry, err, took)
	}
	g.dispatchLocked()
	g.unlock()
}

// loadedLocked admits e to the resident set and runs an eviction check
// against the budget of the current device tier.
func (g *engine) loadedLocked(e *entry, took time.Duration) {
	g.store.setLoaded(e, g.opt.Clock.NowUnixNano())
	g.opt.Metrics.FetchDone(OutcomeLoaded, took)
	g.fx.events = append(g.fx.events, Event{Locator: e.locator, State: StateLoaded})
	g.logger.Debug("fetch loaded", "locator", e.locator, "took", took)

	d, _ := g.classifier.Profiles()
	budget := g.tables.MemoryBudget(d)
	target := int64(float64(budget) * g.opt.EvictionTarget)
	evicted := g.store.trim(budget, target, e)
	for _, v := range evicted {
		g.opt.Metrics.Evict(EvictBudget)
		g.fx.evicted = append(g.fx.evicted, eviction{v.locator, EvictBudget})
	}
	if len(evicted) > 0 {
		g.logger.Info("evicted entries over memory budget",
			"count", len(evicted), "budget", budget, "bytes", g.store.bytes,
			"device", d.String())
	}
}

// failedLocked counts the failure and either arms a retry or makes the
// entry terminal.
func (g *engine) failedLocked(e *entry, err error, took time.Duration) {
	// retries saturates at MaxRetries: a re-attempt of a failed entry fails
	// straight back to error.
	if e.retries < g.opt.Retry.MaxRetries {
		e.retries++
	}
	if e.retries >= g.opt.Retry.MaxRetries || (g.opt.Retry.FailFastOnPermanent && permanent(err)) {
		g.store.setError(e)
		g.opt.Metrics.FetchDone(OutcomeFailed, took)
		g.fx.events = append(g.fx.events, Event{Locator: e.locator, State: StateError})
		g.logger.Warn("fetch failed", "locator", e.locator, "retries", e.retries, "error", err)
		return
	}

	e.state = StateIdle
	delay := g.opt.Retry.backoff(e.retries)
	g.backoffs++
	e.stopBackoff = g.opt.Clock.AfterFunc(delay, func() { g.retryDue(e) })
	g.opt.Metrics.FetchDone(OutcomeRetry, took)
	g.logger.Debug("fetch retry scheduled",
		"locator", e.locator, "retries", e.retries, "delay", delay, "error", err)
}

// finishPurgedLocked handles a completion for an entry that was purged while
// in flight. cur is whatever the store now holds for the locator. A success
// re-populates the cache; a failure is dropped.
func (g *engine) finishPurgedLocked(f *flight, cur *entry, err error, took time.Duration) {
	if err != nil {
		g.opt.Metrics.FetchDone(OutcomeFailed, took)
		g.logger.Debug("dropped failure of purged entry", "locator", f.entry.locator, "error", err)
		return
	}
	e := cur
	if e == nil {
		e = f.entry
		e.retries = 0
		g.store.add(e)
	} else {
		// Re-requested after the purge and still waiting for the old fetch.
		g.queue.remove(e)
		g.disarmLocked(e)
		if e.state != StateIdle {
			return
		}
	}
	g.loadedLocked(e, took)
}

// retryDue re-queues e once its backoff has elapsed.
func (g *engine) retryDue(e *entry) {
	g.mu.Lock()
	if e.stopBackoff == nil {
		// Disarmed by purge or close.
		g.mu.Unlock()
		return
	}
	e.stopBackoff = nil
	g.backoffs--
	if !g.closed && g.store.get(e.locator) == e {
		g.queue.push(e)
		g.dispatchLocked()
	}
	g.unlock()
}
