package engine

import (
	"fmt"
	"slices"
	"strconv"
)

// Priority orders pending work; larger values are dispatched first.
type Priority int

// Priority tiers, highest to lowest.
const (
	Visible      Priority = 100
	NearViewport Priority = 80
	Prefetch     Priority = 60
	Background   Priority = 40
	Low          Priority = 20
)

// DefaultPriority is the priority callers use when they have no opinion.
const DefaultPriority = Background

// secondaryStep is how far below the first image of an item the remaining
// images are queued by PreloadItemImages.
const secondaryStep Priority = 20

func (p Priority) String() string {
	switch p {
	case Visible:
		return "visible"
	case NearViewport:
		return "near-viewport"
	case Prefetch:
		return "prefetch"
	case Background:
		return "background"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority accepts a tier name ("visible", "near-viewport", "prefetch",
// "background", "low") or a plain integer.
func ParsePriority(s string) (Priority, error) {
	for _, p := range []Priority{Visible, NearViewport, Prefetch, Background, Low} {
		if p.String() == s {
			return p, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("engine: unknown priority %q", s)
	}
	return Priority(n), nil
}

// dispatchOrder is the single comparator for the pending queue:
//  1. higher priority first;
//  2. at equal priority, entries escalated by PrioritizeVisibleImages win,
//     the most recent escalation call first and, within one call, the order
//     the locators were given;
//  3. otherwise first enqueued, first dispatched.
func dispatchOrder(a, b *entry) int {
	if a.priority != b.priority {
		if a.priority > b.priority {
			return -1
		}
		return 1
	}
	if a.escalated != b.escalated {
		if a.escalated {
			return -1
		}
		return 1
	}
	if a.escalated {
		if a.escEpoch != b.escEpoch {
			if a.escEpoch > b.escEpoch {
				return -1
			}
			return 1
		}
		if a.escIndex != b.escIndex {
			if a.escIndex < b.escIndex {
				return -1
			}
			return 1
		}
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

// queue is the pending-work list. A locator appears at most once: a repeated
// request updates the queued entry in place.
type queue struct {
	items []*entry
	seq   uint64
}

func (q *queue) len() int { return len(q.items) }

// push appends e unless it is already queued.
func (q *queue) push(e *entry) {
	if e.queued {
		return
	}
	q.seq++
	e.seq = q.seq
	e.queued = true
	q.items = append(q.items, e)
}

// remove drops e from the queue if present.
func (q *queue) remove(e *entry) {
	if !e.queued {
		return
	}
	if i := slices.Index(q.items, e); i >= 0 {
		q.items = slices.Delete(q.items, i, i+1)
	}
	e.queued = false
}

// sort orders the queue by dispatchOrder.
func (q *queue) sort() { slices.SortFunc(q.items, dispatchOrder) }

// pop removes and returns the first entry (in current order) accepted by
// eligible, or nil if none is.
func (q *queue) pop(eligible func(*entry) bool) *entry {
	for i, e := range q.items {
		if !eligible(e) {
			continue
		}
		q.items = slices.Delete(q.items, i, i+1)
		e.queued = false
		return e
	}
	return nil
}

// clear empties the queue.
func (q *queue) clear() {
	for _, e := range q.items {
		e.queued = false
	}
	q.items = q.items[:0]
}
