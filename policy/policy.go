// Package policy defines how resident (loaded) entries are ordered for
// eviction. The store keeps an intrusive list (head = most recent, tail =
// next victim) and evicts from the tail; a policy only decides where entries
// go when they are admitted and when they are used.
package policy

// Node is the minimal contract a resident entry must satisfy for a policy.
type Node[K comparable] interface {
	Key() K
}

// Hooks expose O(1) list operations that a policy can use to manipulate
// the store's intrusive recency list. Implementations are provided by the store.
//
// Concurrency: all hook calls happen under the engine lock.
// Important: hooks manage only the list; the store owns the key->entry map
// and the byte accounting.
type Hooks[K comparable] interface {
	// MoveToFront makes the node the last candidate for eviction.
	MoveToFront(Node[K])
	// PushFront inserts the node at the head (used on admission).
	PushFront(Node[K])
	// Remove detaches the node from the list.
	Remove(Node[K])
	// Back returns the next eviction candidate (or nil if empty).
	Back() Node[K]
	// Len returns the number of resident nodes.
	Len() int
}

// Order is a policy instance bound to one store's hooks.
// All methods are invoked under the engine lock.
//
// Semantics:
//   - OnAdd is called once when an entry becomes resident and must place it
//     in the list.
//   - OnHit is called when a consumer reads an already-resident entry.
//   - OnRemove is a notification; the store performs the actual unlink.
type Order[K comparable] interface {
	OnAdd(Node[K])
	OnHit(Node[K])
	OnRemove(Node[K])
}

// Policy is a factory that creates Order instances bound to a store's hooks.
type Policy[K comparable] interface {
	New(Hooks[K]) Order[K]
}
