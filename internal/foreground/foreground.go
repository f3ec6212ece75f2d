// Package foreground implements the single-threaded cooperative
// foreground task runner: nestable/non-nestable/delayed regular tasks
// plus a separate idle-task queue, consumed only by the
// owning Runtime inside an isolate scope.
package foreground

import (
	"sync/atomic"

	"github.com/cryguy/v8host/internal/clock"
	"github.com/cryguy/v8host/internal/taskqueue"
)

// Task is a unit of foreground work.
type Task func()

// IdleTask receives a deadline (monotonic seconds) it must not run past.
type IdleTask func(deadlineSec float64)

// Runner is the foreground task runner. It is only ever drained by
// the thread that owns the isolate; pushes may come from any thread
// (e.g. a worker task posting a continuation
// back to the foreground).
type Runner struct {
	clock        clock.Source
	tasks        *taskqueue.TaskQueue[Task]
	idle         *taskqueue.TaskQueue[IdleTask]
	nestingDepth atomic.Int32
}

// New creates an empty Runner backed by the given clock.
func New(c clock.Source) *Runner {
	return &Runner{
		clock: c,
		tasks: taskqueue.New[Task](c),
		idle:  taskqueue.New[IdleTask](c),
	}
}

// PostTask enqueues a nestable task.
func (r *Runner) PostTask(t Task) { r.tasks.Push(t) }

// PostNonNestableTask enqueues a task invisible while nested.
func (r *Runner) PostNonNestableTask(t Task) { r.tasks.PushNonNestable(t) }

// PostDelayedTask enqueues a nestable task deliverable after delaySec.
func (r *Runner) PostDelayedTask(t Task, delaySec float64) { r.tasks.PushDelayed(t, delaySec) }

// PostNonNestableDelayedTask enqueues a non-nestable delayed task.
func (r *Runner) PostNonNestableDelayedTask(t Task, delaySec float64) {
	r.tasks.PushNonNestableDelayed(t, delaySec)
}

// PostIdleTask enqueues an idle task, run only when the runner has
// spare time up to a caller-supplied deadline.
func (r *Runner) PostIdleTask(t IdleTask) { r.idle.Push(t) }

// NestingDepth returns the current nesting depth. Always non-negative.
func (r *Runner) NestingDepth() int { return int(r.nestingDepth.Load()) }

// GetNextTask dequeues the next deliverable regular task honoring the
// current nesting depth. Consumed only by the owning Runtime.
func (r *Runner) GetNextTask() (Task, bool) {
	return r.tasks.GetNext(r.NestingDepth())
}

// GetNextIdleTask dequeues the next idle task, if any. Idle tasks are
// never nesting-gated.
func (r *Runner) GetNextIdleTask() (IdleTask, bool) {
	return r.idle.GetNext(0)
}

// MayHaveItems reports whether a regular task may be ready.
func (r *Runner) MayHaveItems() bool { return r.tasks.MayHaveItems() }

// MayHaveIdleItems reports whether an idle task is queued.
func (r *Runner) MayHaveIdleItems() bool { return r.idle.MayHaveItems() }

// Terminate drains both queues and rejects future posts.
func (r *Runner) Terminate() {
	r.tasks.Terminate()
	r.idle.Terminate()
}

// RunScope increments the nesting depth for its lifetime, gating
// non-nestable task visibility. Callers wrap every dequeue-and-run
// cycle (including a nested call to ProcessTasks) in one of these.
type RunScope struct {
	r *Runner
}

// EnterRunScope increments the nesting depth and returns a scope whose
// Close call decrements it back. Nested scopes compose: calling
// EnterRunScope again while one is already open from the same
// goroutine is the mechanism by which a task's own foreground
// processing suppresses non-nestable tasks.
func (r *Runner) EnterRunScope() *RunScope {
	r.nestingDepth.Add(1)
	return &RunScope{r: r}
}

// Close decrements the nesting depth. The counter never goes negative:
// an unbalanced extra Close is floored back to zero.
func (s *RunScope) Close() {
	if s.r.nestingDepth.Add(-1) < 0 {
		// Defensive floor; an unbalanced Enter/Close pair is a bug in
		// the caller, not a condition callers should need to handle.
		s.r.nestingDepth.Store(0)
	}
}
