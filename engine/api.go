package engine

import (
	"context"

	"github.com/IvanBrykalov/imgprefetch/profile"
	"github.com/IvanBrykalov/imgprefetch/variant"
)

// Engine is an adaptive image preloader with a session-scoped, memory-bounded
// cache. All methods are safe for concurrent use by multiple goroutines; each
// mutating call runs to completion under the engine lock before any fetch is
// started or any subscriber is notified.
//
// No method reports fetch failures as an error: failure is expressed as entry
// state and subscriber notifications.
type Engine interface {
	// PreloadImage creates or updates the entry for locator and queues it.
	// A later call may raise the priority of a pending or loading entry but
	// never lowers it. Loaded entries are left untouched; a failed entry gets
	// one more attempt at priority.
	PreloadImage(locator string, priority Priority)

	// PreloadItemImages primes connections to every referenced origin, then
	// preloads the first image of each item at priority and the remaining
	// images at priority-20. Items missing from imagesByItem are skipped.
	PreloadItemImages(ids []string, imagesByItem map[string][]string, priority Priority)

	// LoadImage returns the size-class locator and the entry's state and, as a
	// side effect, preloads the entry at priority. The state reflects the cache
	// when the call returns.
	LoadImage(locator string, size variant.SizeClass, priority Priority) ImageState

	// PrioritizeVisibleImages escalates each not-yet-loaded locator to Visible
	// and places it ahead of every other queued entry of equal priority.
	PrioritizeVisibleImages(locators []string)

	// Subscribe registers cb for locator's next terminal transitions
	// (loaded or error). There is no replay: check Get after subscribing if
	// the current state matters.
	Subscribe(locator string, cb Callback) (unsubscribe func())

	// PurgeFromCache removes the entry regardless of state. An in-flight fetch
	// is not cancelled; if it succeeds it re-populates the entry.
	// Returns false if there was no entry.
	PurgeFromCache(locator string) bool

	// CacheStats returns a diagnostic snapshot.
	CacheStats() Stats

	// Get returns a snapshot of the entry for locator.
	Get(locator string) (EntrySnapshot, bool)

	// SetVisible reports page visibility. While hidden only Visible-priority
	// entries are dispatched; becoming visible triggers a dispatch pass.
	SetVisible(visible bool)

	// Wait blocks until nothing is in flight, waiting for backoff or ready to
	// dispatch, and every connection warm-up has finished.
	Wait(ctx context.Context) error

	// Close stops backoff timers, cancels the context handed to in-flight
	// fetches and marks the engine closed. Later calls are no-ops.
	Close() error
}

// Callback receives terminal state transitions for a subscribed locator.
type Callback func(Event)

// Event describes one terminal transition.
type Event struct {
	Locator string
	State   State
}

// ImageState is what a renderer needs to draw one image.
type ImageState struct {
	URL       string
	IsLoading bool
	IsLoaded  bool
	HasError  bool
}

// Stats is a diagnostic snapshot of the engine.
type Stats struct {
	TotalEntries     int                    `json:"total_entries"`
	LoadedEntries    int                    `json:"loaded_entries"`
	PendingEntries   int                    `json:"pending_entries"`
	InFlight         int                    `json:"in_flight"`
	ErrorEntries     int                    `json:"error_entries"`
	CacheSizeBytes   int64                  `json:"cache_size_bytes"`
	MemoryBudget     int64                  `json:"memory_budget"`
	ConcurrencyLimit int                    `json:"concurrency_limit"`
	DeviceProfile    profile.DeviceProfile  `json:"device_profile"`
	NetworkProfile   profile.NetworkProfile `json:"network_profile"`
	SessionID        string                 `json:"session_id"`
}
