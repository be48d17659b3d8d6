package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/IvanBrykalov/imgprefetch/policy/fifo"
	"github.com/IvanBrykalov/imgprefetch/profile"
	"github.com/IvanBrykalov/imgprefetch/variant"
)

// engine is the Engine implementation. Every field below mu is guarded by
// it; side effects that call out of the engine (fetch starts, subscriber
// notifications, OnEvict) are collected in fx and run by unlock after the
// lock is released.
type engine struct {
	mu       sync.Mutex
	store    *store
	queue    queue
	inflight map[string]*flight
	backoffs int // armed retry timers
	hidden   bool
	closed   bool
	escEpoch uint64
	waiters  []chan struct{}
	fx       effects

	opt            Options
	tables         profile.Tables
	classifier     *profile.Classifier
	ownsClassifier bool
	sizes          map[variant.SizeClass]int64
	subs           *registry
	warm           *warmer
	logger         *slog.Logger
	session        string

	// ctx is handed to every fetch and preconnect; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// effects are calls out of the engine deferred until the lock is released.
type effects struct {
	starts  []*flight
	events  []Event
	evicted []eviction
}

type eviction struct {
	locator string
	reason  EvictReason
}

// New constructs an engine with the provided Options.
// Defaults:
//   - nil Metrics     -> NoopMetrics
//   - nil Policy      -> fifo (evict in load order)
//   - nil Resolver    -> variant.Identity
//   - nil Classifier  -> classifier over an empty StaticProbe
//   - nil Logger      -> discard
func New(opt Options) Engine {
	if opt.Fetcher == nil {
		panic("engine: Options.Fetcher must be set")
	}
	// default Metrics
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	// default Policy: load order
	if opt.Policy == nil {
		opt.Policy = fifo.New[string]()
	}
	if opt.Resolver == nil {
		opt.Resolver = variant.Identity
	}
	if opt.Clock == nil {
		opt.Clock = wallClock{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	if opt.SessionID == "" {
		opt.SessionID = uuid.NewString()
	}
	if opt.EvictionTarget <= 0 || opt.EvictionTarget > 1 {
		opt.EvictionTarget = DefaultEvictionTarget
	}
	opt.Retry = retryDefaults(opt.Retry)

	logger := opt.Logger.With("session", opt.SessionID)

	owns := false
	if opt.Classifier == nil {
		opt.Classifier = profile.NewClassifier(profile.StaticProbe{}, profile.ClassifierOptions{
			Clock:  opt.Clock,
			Logger: logger,
		})
		owns = true
	}

	sizes := make(map[variant.SizeClass]int64, len(DefaultSizeEstimates))
	for k, v := range DefaultSizeEstimates {
		sizes[k] = v
	}
	for k, v := range opt.SizeEstimates {
		if v > 0 {
			sizes[k] = v
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &engine{
		store:          newStore(opt.Policy),
		inflight:       make(map[string]*flight),
		opt:            opt,
		tables:         profile.DefaultTables().Merge(opt.Tables),
		classifier:     opt.Classifier,
		ownsClassifier: owns,
		sizes:          sizes,
		subs:           newRegistry(),
		warm:           newWarmer(opt.Preconnector, logger),
		logger:         logger,
		session:        opt.SessionID,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// ---- Engine implementation ----

// PreloadImage creates or updates the entry and runs a dispatch pass.
func (g *engine) PreloadImage(locator string, priority Priority) {
	g.mu.Lock()
	g.preloadLocked(locator, priority, variant.Medium)
	g.dispatchLocked()
	g.unlock()
}

// PreloadItemImages warms every referenced origin, then preloads the first
// image of each item at priority and the rest one step lower.
func (g *engine) PreloadItemImages(ids []string, imagesByItem map[string][]string, priority Priority) {
	var all []string
	for _, id := range ids {
		all = append(all, imagesByItem[id]...)
	}
	if len(all) == 0 {
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.warm.warm(g.ctx, all)
	for _, id := range ids {
		for i, l := range imagesByItem[id] {
			p := priority
			if i > 0 {
				p = priority - secondaryStep
			}
			g.preloadLocked(l, p, variant.Medium)
		}
	}
	g.dispatchLocked()
	g.unlock()
}

// LoadImage reports the entry state for size and preloads it.
func (g *engine) LoadImage(locator string, size variant.SizeClass, priority Priority) ImageState {
	g.mu.Lock()
	e := g.preloadLocked(locator, priority, size)
	g.dispatchLocked()

	var st ImageState
	if e == nil {
		st.URL = g.opt.Resolver(locator, size)
	} else {
		st.URL = e.variants[size]
		st.IsLoading = e.state == StateLoading
		st.IsLoaded = e.state == StateLoaded
		st.HasError = e.state == StateError
		g.store.hit(e)
	}
	g.unlock()
	return st
}

// PrioritizeVisibleImages raises each locator to Visible and marks queued
// ones as escalated so they win ties against equal-priority work.
func (g *engine) PrioritizeVisibleImages(locators []string) {
	g.mu.Lock()
	g.escEpoch++
	for i, l := range locators {
		e := g.preloadLocked(l, Visible, variant.Medium)
		if e == nil || e.state != StateIdle {
			continue
		}
		e.escalated = true
		e.escEpoch = g.escEpoch
		e.escIndex = i
	}
	g.dispatchLocked()
	g.unlock()
}

// Subscribe registers cb for terminal transitions of locator.
func (g *engine) Subscribe(locator string, cb Callback) func() {
	if cb == nil {
		return func() {}
	}
	return g.subs.subscribe(locator, cb)
}

// PurgeFromCache removes the entry, its queue slot and any armed retry.
func (g *engine) PurgeFromCache(locator string) bool {
	g.mu.Lock()
	e := g.store.get(locator)
	if e == nil || g.closed {
		g.mu.Unlock()
		return false
	}
	g.queue.remove(e)
	g.disarmLocked(e)
	g.store.remove(e)
	g.opt.Metrics.Evict(EvictPurge)
	g.fx.evicted = append(g.fx.evicted, eviction{locator, EvictPurge})
	g.logger.Debug("purged", "locator", locator, "state", e.state.String())
	g.dispatchLocked()
	g.unlock()
	return true
}

// CacheStats returns a diagnostic snapshot.
func (g *engine) CacheStats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, n := g.classifier.Profiles()
	return Stats{
		TotalEntries:     g.store.entries(),
		LoadedEntries:    g.store.len,
		PendingEntries:   g.queue.len(),
		InFlight:         len(g.inflight),
		ErrorEntries:     g.store.errs,
		CacheSizeBytes:   g.store.bytes,
		MemoryBudget:     g.tables.MemoryBudget(d),
		ConcurrencyLimit: g.tables.ConcurrencyLimit(d, n),
		DeviceProfile:    d,
		NetworkProfile:   n,
		SessionID:        g.session,
	}
}

// Get returns a snapshot of the entry for locator.
func (g *engine) Get(locator string) (EntrySnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.store.get(locator)
	if e == nil {
		return EntrySnapshot{}, false
	}
	return e.snapshot(), true
}

// SetVisible records page visibility and dispatches when it is regained.
func (g *engine) SetVisible(visible bool) {
	g.mu.Lock()
	g.hidden = !visible
	if visible {
		g.dispatchLocked()
	}
	g.unlock()
}

// Wait blocks until the engine is idle and warm-up hints have returned.
func (g *engine) Wait(ctx context.Context) error {
	g.mu.Lock()
	if g.closed || g.idleLocked() {
		g.mu.Unlock()
	} else {
		ch := make(chan struct{})
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		g.warm.wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the engine down. In-flight fetches see a cancelled context
// and their completions are ignored.
func (g *engine) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.cancel()
	for _, e := range g.store.m {
		g.disarmLocked(e)
	}
	g.queue.clear()
	g.inflight = make(map[string]*flight)
	g.unlock()

	g.subs.reset()
	if g.ownsClassifier {
		g.classifier.Close()
	}
	g.logger.Debug("engine closed")
	return nil
}

// ---- helpers (mu held) ----

// preloadLocked creates or updates the entry for locator. It returns nil
// when the engine is closed or the locator is empty.
func (g *engine) preloadLocked(locator string, p Priority, size variant.SizeClass) *entry {
	if g.closed || locator == "" {
		return nil
	}
	e := g.store.get(locator)
	if e == nil {
		e = &entry{
			locator:  locator,
			variants: variant.ResolveAll(g.opt.Resolver, locator),
			size:     size,
			bytes:    g.sizes[size],
			priority: p,
		}
		g.store.add(e)
		g.queue.push(e)
		g.logger.Debug("enqueued", "locator", locator, "priority", int(p), "size", size.String())
		return e
	}
	if e.state == StateError {
		// An explicit request re-attempts a failed entry once.
		g.store.clearError(e)
		e.priority = p
		g.queue.push(e)
		g.logger.Debug("re-attempting failed entry", "locator", locator, "priority", int(p))
		return e
	}
	if e.raise(p) {
		g.logger.Debug("priority raised", "locator", locator, "priority", int(p))
	}
	if e.state == StateIdle && e.stopBackoff == nil {
		g.queue.push(e)
	}
	return e
}

// disarmLocked cancels a pending retry timer for e.
func (g *engine) disarmLocked(e *entry) {
	if e.stopBackoff == nil {
		return
	}
	e.stopBackoff()
	e.stopBackoff = nil
	g.backoffs--
}

// idleLocked reports whether no fetch is in flight or waiting on a backoff.
// With nothing in flight every dispatchable entry has been started, so
// anything still queued is deferred (hidden page) and cannot progress.
func (g *engine) idleLocked() bool {
	return len(g.inflight) == 0 && g.backoffs == 0
}

// unlock releases the lock and then runs the collected side effects.
func (g *engine) unlock() {
	fx := g.fx
	g.fx = effects{}
	g.opt.Metrics.Size(g.store.entries(), g.store.bytes)
	var ws []chan struct{}
	if g.closed || g.idleLocked() {
		ws, g.waiters = g.waiters, nil
	}
	g.mu.Unlock()

	if cb := g.opt.OnEvict; cb != nil {
		for _, ev := range fx.evicted {
			cb(ev.locator, ev.reason)
		}
	}
	for _, ev := range fx.events {
		g.subs.notify(ev)
	}
	for _, f := range fx.starts {
		g.launch(f)
	}
	for _, ch := range ws {
		close(ch)
	}
}
