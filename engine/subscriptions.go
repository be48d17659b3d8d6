package engine

import "sync"

// registry maps locators to consumer callbacks. It has its own lock so that
// callbacks may subscribe or unsubscribe while being notified.
type registry struct {
	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]Callback
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]map[uint64]Callback)}
}

// subscribe registers cb for locator and returns an idempotent unsubscribe.
func (r *registry) subscribe(locator string, cb Callback) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	set := r.subs[locator]
	if set == nil {
		set = make(map[uint64]Callback)
		r.subs[locator] = set
	}
	set[id] = cb

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if set := r.subs[locator]; set != nil {
				delete(set, id)
				if len(set) == 0 {
					delete(r.subs, locator)
				}
			}
		})
	}
}

// notify delivers ev to every callback registered for ev.Locator at the time
// of the call. Callbacks run on the calling goroutine, outside the lock.
func (r *registry) notify(ev Event) {
	r.mu.Lock()
	set := r.subs[ev.Locator]
	cbs := make([]Callback, 0, len(set))
	for _, cb := range set {
		cbs = append(cbs, cb)
	}
	r.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

// count returns the number of callbacks registered for locator.
func (r *registry) count(locator string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[locator])
}

// reset drops every subscription.
func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]map[uint64]Callback)
}
