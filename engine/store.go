package engine

import (
	"github.com/IvanBrykalov/imgprefetch/policy"
)

// store holds one entry per locator and an intrusive list of loaded entries
// (head = newest, tail = next victim) whose order is driven by a policy.
// Byte accounting covers loaded entries only.
//
// store is not locked itself; every method runs under the engine lock.
type store struct {
	m     map[string]*entry
	head  *entry
	tail  *entry
	len   int   // number of loaded (linked) entries
	bytes int64 // estimated bytes of loaded entries
	errs  int   // entries in StateError

	pol policy.Order[string]
}

func newStore(pol policy.Policy[string]) *store {
	s := &store{m: make(map[string]*entry)}
	s.pol = pol.New(storeHooks{s: s})
	return s
}

func (s *store) get(k string) *entry { return s.m[k] }

func (s *store) add(e *entry) { s.m[e.locator] = e }

func (s *store) entries() int { return len(s.m) }

// setLoaded links e as a resident entry and accounts its bytes.
func (s *store) setLoaded(e *entry, now int64) {
	e.state = StateLoaded
	e.loadedAt = now
	s.pol.OnAdd(e)
}

// setError records the terminal failure of e.
func (s *store) setError(e *entry) {
	e.state = StateError
	s.errs++
}

// clearError returns a failed entry to idle.
func (s *store) clearError(e *entry) {
	if e.state == StateError {
		e.state = StateIdle
		s.errs--
	}
}

// hit reports a consumer read of a loaded entry to the policy.
func (s *store) hit(e *entry) {
	if e.state == StateLoaded {
		s.pol.OnHit(e)
	}
}

// remove deletes e from the map and, if loaded, from the list.
func (s *store) remove(e *entry) {
	switch e.state {
	case StateLoaded:
		s.pol.OnRemove(e)
		s.unlink(e)
	case StateError:
		s.errs--
	}
	delete(s.m, e.locator)
}

// trim evicts from the tail while loaded bytes exceed budget, stopping once
// bytes <= target. keep is never evicted (the entry whose admission triggered
// the pass). Returns the evicted entries in eviction order.
func (s *store) trim(budget, target int64, keep *entry) []*entry {
	if s.bytes <= budget {
		return nil
	}
	var out []*entry
	for n := s.tail; n != nil && s.bytes > target; {
		prev := n.prev
		if n != keep {
			s.remove(n)
			out = append(out, n)
		}
		n = prev
	}
	return out
}

// -------------------- list internals --------------------

// insertFront inserts n at the head in O(1).
func (s *store) insertFront(n *entry) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.bytes += n.bytes
}

// moveToFront promotes n to the head in O(1).
func (s *store) moveToFront(n *entry) {
	if n == s.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// unlink removes n from the list and updates counters in O(1).
func (s *store) unlink(n *entry) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.bytes -= n.bytes
	if s.bytes < 0 {
		s.bytes = 0
	}
}

// -------------------- policy hooks --------------------

// storeHooks adapts the store's list operations to policy.Hooks.
type storeHooks struct{ s *store }

func (h storeHooks) MoveToFront(x policy.Node[string]) { h.s.moveToFront(x.(*entry)) }
func (h storeHooks) PushFront(x policy.Node[string])   { h.s.insertFront(x.(*entry)) }
func (h storeHooks) Remove(x policy.Node[string])      { h.s.unlink(x.(*entry)) }
func (h storeHooks) Back() policy.Node[string] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
func (h storeHooks) Len() int { return h.s.len }
