package clock

import "testing"

func TestFakeAdvance(t *testing.T) {
	f := NewFake(1000)
	if f.MonotonicSeconds() != 0 {
		t.Fatalf("expected 0, got %v", f.MonotonicSeconds())
	}
	f.Advance(2.5)
	if f.MonotonicSeconds() != 2.5 {
		t.Fatalf("expected 2.5, got %v", f.MonotonicSeconds())
	}
	if got := f.WallClockMillis(); got != 1000+2500 {
		t.Fatalf("expected 3500, got %v", got)
	}
}

func TestFakeAdvanceIgnoresNonPositive(t *testing.T) {
	f := NewFake(0)
	f.Advance(-5)
	f.Advance(0)
	if f.MonotonicSeconds() != 0 {
		t.Fatalf("expected clock unchanged, got %v", f.MonotonicSeconds())
	}
}

func TestRealMonotonicNonDecreasing(t *testing.T) {
	r := Real{}
	a := r.MonotonicSeconds()
	b := r.MonotonicSeconds()
	if b < a {
		t.Fatalf("expected non-decreasing readings, got %v then %v", a, b)
	}
}
