package engine

import (
	"slices"
	"testing"
)

func TestDispatchOrder(t *testing.T) {
	t.Parallel()

	var q queue
	plain := &entry{locator: "plain", priority: Visible}
	low := &entry{locator: "low", priority: Prefetch}
	old := &entry{locator: "old", priority: Visible, escalated: true, escEpoch: 1, escIndex: 0}
	newB := &entry{locator: "new-b", priority: Visible, escalated: true, escEpoch: 2, escIndex: 1}
	newA := &entry{locator: "new-a", priority: Visible, escalated: true, escEpoch: 2, escIndex: 0}
	for _, e := range []*entry{low, plain, old, newB, newA} {
		q.push(e)
	}
	q.push(plain) // already queued: no-op

	q.sort()
	var got []string
	for e := q.pop(func(*entry) bool { return true }); e != nil; e = q.pop(func(*entry) bool { return true }) {
		got = append(got, e.locator)
	}
	want := []string{"new-a", "new-b", "old", "plain", "low"}
	if !slices.Equal(got, want) {
		t.Fatalf("order %v, want %v", got, want)
	}
}

func TestQueue_PopSkipsIneligible(t *testing.T) {
	t.Parallel()

	var q queue
	a := &entry{locator: "a", priority: Visible}
	b := &entry{locator: "b", priority: Low}
	q.push(a)
	q.push(b)
	q.sort()

	if e := q.pop(func(e *entry) bool { return e.locator != "a" }); e != b {
		t.Fatalf("want b, got %v", e)
	}
	if q.len() != 1 || !a.queued || b.queued {
		t.Fatal("queued flags out of sync")
	}
	q.remove(a)
	if q.len() != 0 || a.queued {
		t.Fatal("remove must clear the slot")
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Priority{
		"visible":       Visible,
		"near-viewport": NearViewport,
		"low":           Low,
		"55":            55,
	} {
		got, err := ParsePriority(in)
		if err != nil || got != want {
			t.Fatalf("ParsePriority(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Fatal("want error for unknown name")
	}
}

// Fuzz the comparator: it must be a strict weak ordering (antisymmetric and
// reflexively equal), otherwise sort results depend on input order.
func FuzzDispatchOrder(f *testing.F) {
	f.Add(100, false, uint64(0), 0, uint64(1), 100, true, uint64(1), 0, uint64(2))
	f.Add(60, true, uint64(3), 2, uint64(5), 60, true, uint64(3), 1, uint64(4))
	f.Add(20, false, uint64(0), 0, uint64(9), 40, false, uint64(0), 0, uint64(9))

	f.Fuzz(func(t *testing.T,
		pa int, ea bool, epa uint64, ia int, sa uint64,
		pb int, eb bool, epb uint64, ib int, sb uint64,
	) {
		a := &entry{priority: Priority(pa), escalated: ea, escEpoch: epa, escIndex: ia, seq: sa}
		b := &entry{priority: Priority(pb), escalated: eb, escEpoch: epb, escIndex: ib, seq: sb}

		if dispatchOrder(a, a) != 0 {
			t.Fatal("entry must compare equal to itself")
		}
		ab, ba := dispatchOrder(a, b), dispatchOrder(b, a)
		if ab != -ba {
			t.Fatalf("not antisymmetric: cmp(a,b)=%d cmp(b,a)=%d", ab, ba)
		}
		if pa > pb && ab != -1 {
			t.Fatalf("higher priority must sort first")
		}
	})
}
