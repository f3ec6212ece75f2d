package taskqueue

import "testing"

func TestFIFOOrdering(t *testing.T) {
	q := New[int](clockStub{})
	q.Push(1)
	q.Push(2)
	q.Push(3)
	for _, want := range []int{1, 2, 3} {
		got, ok := q.GetNext(0)
		if !ok || got != want {
			t.Fatalf("want %d, got %d ok=%v", want, got, ok)
		}
	}
	if _, ok := q.GetNext(0); ok {
		t.Fatal("expected empty queue")
	}
}

func TestNonNestableGatedByDepth(t *testing.T) {
	q := New[string](clockStub{})
	q.PushNonNestable("nn")
	q.Push("n")
	// At depth > 0, non-nestable is invisible.
	got, ok := q.GetNext(1)
	if !ok || got != "n" {
		t.Fatalf("expected nestable item first, got %q ok=%v", got, ok)
	}
	if _, ok := q.GetNext(1); ok {
		t.Fatal("non-nestable item should not be visible at depth > 0")
	}
	got, ok = q.GetNext(0)
	if !ok || got != "nn" {
		t.Fatalf("expected non-nestable item at depth 0, got %q ok=%v", got, ok)
	}
}

func TestDelayedItemDeliveredAtDeadline(t *testing.T) {
	c := &fakeClock{}
	q := New[string](c)
	q.PushDelayed("late", 10)
	q.Push("now")
	// "late" isn't ready yet, so "now" should come first.
	got, ok := q.GetNext(0)
	if !ok || got != "now" {
		t.Fatalf("expected now first, got %q ok=%v", got, ok)
	}
	if _, ok := q.GetNext(0); ok {
		t.Fatal("delayed item should not be ready yet")
	}
	c.mono = 10
	got, ok = q.GetNext(0)
	if !ok || got != "late" {
		t.Fatalf("expected late item once deadline passed, got %q ok=%v", got, ok)
	}
}

func TestDelayedPriorityOverFIFO(t *testing.T) {
	c := &fakeClock{}
	q := New[string](c)
	q.Push("fifo")
	q.PushDelayed("delayed", 0)
	got, ok := q.GetNext(0)
	if !ok || got != "delayed" {
		t.Fatalf("expected delayed-ready item ahead of fifo, got %q ok=%v", got, ok)
	}
}

func TestDelayedTieBreaksFIFO(t *testing.T) {
	c := &fakeClock{}
	q := New[int](c)
	q.PushDelayed(1, 5)
	q.PushDelayed(2, 5)
	c.mono = 5
	got1, _ := q.GetNext(0)
	got2, _ := q.GetNext(0)
	if got1 != 1 || got2 != 2 {
		t.Fatalf("expected insertion order for ties, got %d, %d", got1, got2)
	}
}

func TestNonNestableDelayedSkippedAtDepth(t *testing.T) {
	c := &fakeClock{}
	q := New[string](c)
	q.PushNonNestableDelayed("nn-delayed", 0)
	if _, ok := q.GetNext(1); ok {
		t.Fatal("non-nestable delayed item must not surface at depth > 0")
	}
	got, ok := q.GetNext(0)
	if !ok || got != "nn-delayed" {
		t.Fatalf("expected item once depth returns to 0, got %q ok=%v", got, ok)
	}
}

func TestTerminateDrainsAndBlocksFuturePushes(t *testing.T) {
	q := New[int](clockStub{})
	q.Push(1)
	q.Terminate()
	if _, ok := q.GetNext(0); ok {
		t.Fatal("expected no items after terminate")
	}
	q.Push(2)
	if _, ok := q.GetNext(0); ok {
		t.Fatal("push after terminate must be a no-op")
	}
	q.Terminate() // idempotent
}

func TestMayHaveItems(t *testing.T) {
	q := New[int](clockStub{})
	if q.MayHaveItems() {
		t.Fatal("expected empty queue")
	}
	q.Push(1)
	if !q.MayHaveItems() {
		t.Fatal("expected non-empty queue")
	}
}

// clockStub always reports time 0.
type clockStub struct{}

func (clockStub) MonotonicSeconds() float64 { return 0 }
func (clockStub) WallClockMillis() float64  { return 0 }

// fakeClock is a settable monotonic clock for deterministic delay tests.
type fakeClock struct{ mono float64 }

func (c *fakeClock) MonotonicSeconds() float64 { return c.mono }
func (c *fakeClock) WallClockMillis() float64  { return c.mono * 1000 }
