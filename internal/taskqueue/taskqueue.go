// Package taskqueue implements a generic delay-ordered queue of
// nestable, non-nestable, and delayed items, used by both the
// foreground task runner and, indirectly through the thread pool, the
// worker task runner.
package taskqueue

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"github.com/cryguy/v8host/internal/clock"
)

// delayedEntry is one item waiting for its deadline to arrive.
type delayedEntry[T any] struct {
	item        T
	deadline    float64
	nonNestable bool
	seq         uint64
	index       int // heap.Interface bookkeeping
}

// delayedHeap is a min-heap ordered by (deadline, seq) so that ties
// resolve in FIFO insertion order.
type delayedHeap[T any] []*delayedEntry[T]

func (h delayedHeap[T]) Len() int { return len(h) }
func (h delayedHeap[T]) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h delayedHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *delayedHeap[T]) Push(x any) {
	e := x.(*delayedEntry[T])
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *delayedHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// TaskQueue is a generic container for items of type T supporting
// nestable, non-nestable, and delayed delivery honoring a caller
// supplied nesting depth. It is safe for concurrent use.
type TaskQueue[T any] struct {
	mu          sync.Mutex
	clock       clock.Source
	nestable    []T
	nonNestable []T
	delayed     delayedHeap[T]
	seq         atomic.Uint64
	terminated  bool
}

// New creates an empty TaskQueue backed by the given clock source.
func New[T any](c clock.Source) *TaskQueue[T] {
	return &TaskQueue[T]{clock: c}
}

// Push enqueues a nestable, now-ready item.
func (q *TaskQueue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return
	}
	q.nestable = append(q.nestable, item)
}

// PushNonNestable enqueues a now-ready item gated by nesting depth.
func (q *TaskQueue[T]) PushNonNestable(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return
	}
	q.nonNestable = append(q.nonNestable, item)
}

// PushDelayed enqueues a nestable item ordered by
// clock.MonotonicSeconds() + delaySec.
func (q *TaskQueue[T]) PushDelayed(item T, delaySec float64) {
	q.pushDelayed(item, delaySec, false)
}

// PushNonNestableDelayed enqueues a non-nestable delayed item.
func (q *TaskQueue[T]) PushNonNestableDelayed(item T, delaySec float64) {
	q.pushDelayed(item, delaySec, true)
}

func (q *TaskQueue[T]) pushDelayed(item T, delaySec float64, nonNestable bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return
	}
	deadline := q.clock.MonotonicSeconds() + delaySec
	entry := &delayedEntry[T]{
		item:        item,
		deadline:    deadline,
		nonNestable: nonNestable,
		seq:         q.seq.Add(1),
	}
	heap.Push(&q.delayed, entry)
}

// GetNext returns the next deliverable item honoring the ordering
// rules: an eligible delayed item whose deadline has
// arrived is delivered ahead of any FIFO item; at nestingDepth 0
// non-nestable items are eligible, at any positive depth they are
// skipped (and, if delayed, left in the heap for a later call).
func (q *TaskQueue[T]) GetNext(nestingDepth int) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.terminated {
		return zero, false
	}

	now := q.clock.MonotonicSeconds()
	if len(q.delayed) > 0 {
		top := q.delayed[0]
		eligible := !top.nonNestable || nestingDepth == 0
		if top.deadline <= now && eligible {
			heap.Pop(&q.delayed)
			return top.item, true
		}
	}

	if len(q.nestable) > 0 {
		item := q.nestable[0]
		q.nestable = q.nestable[1:]
		return item, true
	}

	if nestingDepth == 0 && len(q.nonNestable) > 0 {
		item := q.nonNestable[0]
		q.nonNestable = q.nonNestable[1:]
		return item, true
	}

	return zero, false
}

// MayHaveItems is a cheap, possibly over-reporting check used as a
// wake condition: it does not consult deadlines, only whether any
// queue is non-empty.
func (q *TaskQueue[T]) MayHaveItems() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return false
	}
	return len(q.nestable) > 0 || len(q.nonNestable) > 0 || len(q.delayed) > 0
}

// Terminate drains the queue and prevents future pushes. GetNext
// returns false for every call after Terminate. Idempotent.
func (q *TaskQueue[T]) Terminate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.terminated = true
	q.nestable = nil
	q.nonNestable = nil
	q.delayed = nil
}

// Terminated reports whether Terminate has been called.
func (q *TaskQueue[T]) Terminated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.terminated
}
