// Package fifo implements load-recency ordering: entries are evicted in the
// order they finished loading, and reads do not change that order.
package fifo

import "github.com/IvanBrykalov/imgprefetch/policy"

type fifo[K comparable] struct {
	h policy.Hooks[K]
}

type fifoPolicy[K comparable] struct{}

// New returns a Policy factory that constructs load-order instances.
func New[K comparable]() policy.Policy[K] { return fifoPolicy[K]{} }

// New implements policy.Policy by binding the store hooks.
func (fifoPolicy[K]) New(h policy.Hooks[K]) policy.Order[K] {
	return &fifo[K]{h: h}
}

// OnAdd places the newly loaded entry at the head, so the tail is always the
// entry with the oldest load time.
func (p *fifo[K]) OnAdd(n policy.Node[K]) { p.h.PushFront(n) }

// OnHit is a no-op: use after load is not tracked.
func (p *fifo[K]) OnHit(policy.Node[K]) {}

// OnRemove is a no-op (no policy-internal state).
func (p *fifo[K]) OnRemove(policy.Node[K]) {}
