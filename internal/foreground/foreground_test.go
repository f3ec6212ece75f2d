package foreground

import (
	"testing"

	"github.com/cryguy/v8host/internal/clock"
)

func TestNonNestableInvisibleWhileNested(t *testing.T) {
	r := New(clock.Real{})
	r.PostNonNestableTask(func() {})
	r.PostTask(func() {})

	scope := r.EnterRunScope()
	if _, ok := r.GetNextTask(); !ok {
		t.Fatal("expected the nestable task to be visible while nested")
	}
	if _, ok := r.GetNextTask(); ok {
		t.Fatal("non-nestable task must be invisible while nested")
	}
	scope.Close()

	if _, ok := r.GetNextTask(); !ok {
		t.Fatal("expected non-nestable task visible once depth returns to 0")
	}
}

func TestNestingDepthNeverNegative(t *testing.T) {
	r := New(clock.Real{})
	s := r.EnterRunScope()
	s.Close()
	s.Close() // unbalanced, must not go negative
	if r.NestingDepth() != 0 {
		t.Fatalf("expected depth 0, got %d", r.NestingDepth())
	}
}

func TestIdleTaskSeparateFromRegular(t *testing.T) {
	r := New(clock.Real{})
	r.PostIdleTask(func(float64) {})
	if _, ok := r.GetNextTask(); ok {
		t.Fatal("idle task must not appear in the regular queue")
	}
	if _, ok := r.GetNextIdleTask(); !ok {
		t.Fatal("expected idle task to be deliverable")
	}
}

func TestTerminateDrainsBothQueues(t *testing.T) {
	r := New(clock.Real{})
	r.PostTask(func() {})
	r.PostIdleTask(func(float64) {})
	r.Terminate()
	if _, ok := r.GetNextTask(); ok {
		t.Fatal("expected regular queue drained")
	}
	if _, ok := r.GetNextIdleTask(); ok {
		t.Fatal("expected idle queue drained")
	}
}
