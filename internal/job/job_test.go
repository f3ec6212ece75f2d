package job

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cryguy/v8host/internal/clock"
	"github.com/cryguy/v8host/internal/priority"
	"github.com/cryguy/v8host/internal/threadpool"
	"github.com/cryguy/v8host/internal/workertask"
)

// countingTask runs limit times total across every worker, at most max
// at once.
type countingTask struct {
	max   int
	ran   atomic.Int32
	limit int32
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

func (c *countingTask) Run(d *Delegate) {
	c.ran.Add(1)
}

func newRunner(t *testing.T) *workertask.Runner {
	t.Helper()
	r := workertask.New(4, clock.Real{})
	t.Cleanup(r.Terminate)
	return r
}

func TestJobRunsExactlyLimitTimes(t *testing.T) {
	r := newRunner(t)
	task := &countingTask{max: 3, limit: 10}
	s := NewState(r, task, priority.UserVisible, 4)
	h := NewHandle(s)
	h.Join()

	if got := task.ran.Load(); got != 10 {
		t.Fatalf("expected 10 runs, got %d", got)
	}
}

type yieldTask struct {
	stop chan struct{}
	ran  atomic.Int32
}

func (y *yieldTask) MaxConcurrency(int) int { return 1 }

func (y *yieldTask) Run(d *Delegate) {
	y.ran.Add(1)
	for !d.ShouldYield() {
		select {
		case <-y.stop:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func TestCancelAndWaitStopsWorker(t *testing.T) {
	r := newRunner(t)
	task := &yieldTask{stop: make(chan struct{})}
	s := NewState(r, task, priority.UserVisible, 4)
	h := NewHandle(s)

	for task.ran.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	h.Cancel()
	if h.IsValid() {
		t.Fatal("expected handle invalid after Cancel")
	}
}

func TestAcquireReleaseTaskIDRoundTrips(t *testing.T) {
	s := NewState(nil, &countingTask{max: 1, limit: 0}, priority.BestEffort, 1)
	var ids []uint8
	for i := 0; i < 5; i++ {
		id := s.AcquireTaskID()
		if id == InvalidTaskID {
			t.Fatalf("unexpected invalid id at i=%d", i)
		}
		ids = append(ids, id)
	}
	seen := map[uint8]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	for _, id := range ids {
		s.ReleaseTaskID(id)
	}
	id := s.AcquireTaskID()
	if id == InvalidTaskID {
		t.Fatal("expected a free id after release")
	}
}

func TestAcquireTaskIDExhaustion(t *testing.T) {
	s := NewState(nil, &countingTask{max: 1, limit: 0}, priority.BestEffort, 1)
	for i := 0; i < taskIDBits; i++ {
		if id := s.AcquireTaskID(); id == InvalidTaskID {
			t.Fatalf("unexpected exhaustion at i=%d", i)
		}
	}
	if id := s.AcquireTaskID(); id != InvalidTaskID {
		t.Fatalf("expected InvalidTaskID once bitset is full, got %d", id)
	}
}

func TestAcquireTaskIDConcurrentNoDuplicates(t *testing.T) {
	s := NewState(nil, &countingTask{max: 1, limit: 0}, priority.BestEffort, 1)
	const n = taskIDBits
	ids := make([]uint8, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = s.AcquireTaskID()
		}(i)
	}
	wg.Wait()
	seen := map[uint8]bool{}
	for _, id := range ids {
		if id == InvalidTaskID {
			t.Fatal("unexpected exhaustion under concurrent acquire")
		}
		if seen[id] {
			t.Fatalf("duplicate id %d assigned concurrently", id)
		}
		seen[id] = true
	}
}

func TestHandleMethodsInvalidAfterJoin(t *testing.T) {
	r := newRunner(t)
	task := &countingTask{max: 1, limit: 1}
	s := NewState(r, task, priority.UserVisible, 1)
	h := NewHandle(s)
	h.Join()
	if h.IsValid() {
		t.Fatal("expected handle invalid after Join")
	}
	if h.IsActive() {
		t.Fatal("expected IsActive false on an invalid handle")
	}
}

var _ threadpool.Runnable = (*taskWorker)(nil)
