package platform

import (
	"sync/atomic"
	"testing"

	"github.com/cryguy/v8host/internal/clock"
	"github.com/cryguy/v8host/internal/job"
	"github.com/cryguy/v8host/internal/priority"
)

// countingTask runs up to limit times total, max at once.
type countingTask struct {
	max   int
	limit int32
	ran   atomic.Int32
}

func (c *countingTask) MaxConcurrency(int) int {
	remaining := c.limit - c.ran.Load()
	if remaining <= 0 {
		return 0
	}
	if int(remaining) < c.max {
		return int(remaining)
	}
	return c.max
}

func (c *countingTask) Run(d *job.Delegate) {
	c.ran.Add(1)
}

func TestPlatformPostJobRunsTaskToCompletion(t *testing.T) {
	p := NewWithClock(clock.Real{})
	defer p.Shutdown()

	task := &countingTask{max: 2, limit: 6}
	h := p.PostJob(task, priority.UserVisible)
	h.Join()

	if got := task.ran.Load(); got != 6 {
		t.Fatalf("expected 6 runs, got %d", got)
	}
	if h.IsValid() {
		t.Error("expected handle to be invalid after Join")
	}
}

func TestHardwareConcurrencyAtLeastOne(t *testing.T) {
	if HardwareConcurrency() < 1 {
		t.Fatal("expected at least one worker")
	}
}

func TestNewForegroundRunnerIsIndependentPerCall(t *testing.T) {
	p := NewWithClock(clock.Real{})
	defer p.Shutdown()

	a := p.NewForegroundRunner()
	b := p.NewForegroundRunner()
	a.PostTask(func() {})
	if _, ok := b.GetNextTask(); ok {
		t.Fatal("expected each foreground runner to have its own queue")
	}
}
