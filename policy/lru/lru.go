// Package lru implements use-recency ordering: reading a resident entry
// moves it away from the eviction end.
package lru

import "github.com/IvanBrykalov/imgprefetch/policy"

// lru is a classic "move-to-front" Least-Recently-Used order.
// It delegates list manipulation to policy.Hooks provided by the store.
type lru[K comparable] struct {
	h policy.Hooks[K]
}

type lruPolicy[K comparable] struct{}

// New returns a Policy factory that constructs LRU instances.
func New[K comparable]() policy.Policy[K] { return lruPolicy[K]{} }

// New implements policy.Policy by binding store hooks and returning
// a store-local policy instance.
func (lruPolicy[K]) New(h policy.Hooks[K]) policy.Order[K] {
	return &lru[K]{h: h}
}

// OnAdd places the new entry at MRU.
func (p *lru[K]) OnAdd(n policy.Node[K]) { p.h.PushFront(n) }

// OnHit promotes the entry to MRU.
func (p *lru[K]) OnHit(n policy.Node[K]) { p.h.MoveToFront(n) }

// OnRemove is a no-op for pure LRU (nothing to clean up in policy state).
func (p *lru[K]) OnRemove(policy.Node[K]) {}
