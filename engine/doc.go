// Package engine provides an adaptive image preloader backed by a
// session-scoped, memory-bounded cache of image entries keyed by source
// locator.
//
// Design
//
//   - Concurrency: one mutex guards the store, the pending queue and the
//     in-flight set. Every public call runs to completion under it; fetch
//     starts, subscriber notifications and OnEvict callbacks are collected
//     while locked and run after the lock is released, so a Fetcher may call
//     done synchronously and a callback may call back into the engine.
//
//   - Dispatch: pending entries are ordered by priority, then by
//     PrioritizeVisibleImages escalation, then by enqueue order. A pass starts
//     entries until the concurrency limit for the current device/network tiers
//     (package profile) is reached. Tiers are read on every pass, so a
//     classifier change applies to the next dispatch or eviction check.
//
//   - Storage: each entry lives in a map; loaded entries are also linked into
//     an intrusive list (head = newest, tail = next victim) whose order comes
//     from a pluggable policy (package policy). The default orders by load
//     time; lru.New orders by use.
//
//   - Eviction: after each load, if estimated loaded bytes exceed the budget
//     of the device tier, entries are removed from the tail until bytes are at
//     or below EvictionTarget (80%) of the budget. The entry just loaded is
//     never a victim of its own admission.
//
//   - Retry: a failed attempt is retried after BaseDelay*2^retryCount until
//     MaxRetries failures, then the entry is in StateError. It stays there
//     until purged or explicitly requested again, which buys one more attempt.
//     Subscribers see one event per terminal transition.
//
//   - Warm-up: PreloadItemImages hints each origin to the Preconnector once per
//     engine lifetime.
//
// Basic usage
//
//	e := engine.New(engine.Options{
//	    Fetcher:  fetch.New(fetch.Options{}),
//	    Resolver: variant.QueryParam("w", variant.DefaultWidths),
//	})
//	defer e.Close()
//
//	unsub := e.Subscribe("https://img.example.com/a.jpg", func(ev engine.Event) {
//	    log.Println(ev.Locator, ev.State)
//	})
//	defer unsub()
//
//	e.PreloadImage("https://img.example.com/a.jpg", engine.Prefetch)
//	st := e.LoadImage("https://img.example.com/a.jpg", variant.Large, engine.Visible)
//	_ = st.URL
//
// # Thread-safety
//
// All methods on Engine are safe for concurrent use.
package engine
