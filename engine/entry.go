package engine

import (
	"fmt"
	"time"

	"github.com/IvanBrykalov/imgprefetch/variant"
)

// State is the loading state of a cache entry.
//
//	idle -> loading -> loaded
//	                -> idle (failure, retry scheduled) -> loading ...
//	                -> error (retries exhausted; terminal until purged)
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON stats.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// entry is one cache record per source locator. It doubles as an intrusive
// list node for the store's recency list; only loaded entries are linked.
type entry struct {
	locator  string
	variants map[variant.SizeClass]string
	size     variant.SizeClass // size class that gets fetched
	bytes    int64             // estimate for size

	state    State
	priority Priority
	retries  int
	loadedAt int64 // UnixNano, set on transition to loaded

	// Queue bookkeeping (see queue.go).
	queued    bool
	seq       uint64
	escalated bool
	escEpoch  uint64
	escIndex  int

	// stopBackoff cancels the pending retry timer; nil when none is armed.
	stopBackoff func() bool

	// Intrusive list links: head is newest, tail is the next eviction victim.
	prev *entry
	next *entry
}

// Key returns the entry locator (part of policy.Node interface).
func (e *entry) Key() string { return e.locator }

// pending reports whether the entry still takes part in priority ordering.
func (e *entry) pending() bool {
	return e.state == StateIdle || e.state == StateLoading
}

// raise applies a priority request; priorities never decrease while pending.
func (e *entry) raise(p Priority) bool {
	if !e.pending() || p <= e.priority {
		return false
	}
	e.priority = p
	return true
}

// EntrySnapshot is a read-only copy of an entry.
type EntrySnapshot struct {
	Locator        string                       `json:"locator"`
	Variants       map[variant.SizeClass]string `json:"variants"`
	Size           variant.SizeClass            `json:"size"`
	State          State                        `json:"state"`
	Priority       Priority                     `json:"priority"`
	RetryCount     int                          `json:"retry_count"`
	LoadedAt       time.Time                    `json:"loaded_at,omitzero"`
	EstimatedBytes int64                        `json:"estimated_bytes"`
}

func (e *entry) snapshot() EntrySnapshot {
	vs := make(map[variant.SizeClass]string, len(e.variants))
	for k, v := range e.variants {
		vs[k] = v
	}
	s := EntrySnapshot{
		Locator:        e.locator,
		Variants:       vs,
		Size:           e.size,
		State:          e.state,
		Priority:       e.priority,
		RetryCount:     e.retries,
		EstimatedBytes: e.bytes,
	}
	if e.loadedAt != 0 {
		s.LoadedAt = time.Unix(0, e.loadedAt)
	}
	return s
}
