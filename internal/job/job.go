// Package job implements a cooperative, concurrency-controlled,
// cancellable, joinable state machine that spawns up to N concurrent
// invocations of a user closure onto the platform's priority worker
// pool.
package job

import (
	"sync"
	"sync/atomic"

	"github.com/cryguy/v8host/internal/apperr"
	"github.com/cryguy/v8host/internal/priority"
	"github.com/cryguy/v8host/internal/threadpool"
)

// taskIDBits is the width of the assigned-task-id bitset. Go's
// practically-universal 64-bit word size means there is no 32-bit
// fallback path to model, unlike the originating C++ which switched
// word width by platform.
const taskIDBits = 64

// InvalidTaskID is the sentinel AcquireTaskID returns once every bit in
// the 64-slot range is taken. It intentionally sits outside that
// range (a uint8 max value, independent of the 64-bit bitset's width) so it
// can never collide with a real assignment.
const InvalidTaskID uint8 = 255

// Task is the user-supplied unit of work a Job repeatedly invokes,
// potentially from many goroutines concurrently.
type Task interface {
	// MaxConcurrency returns the desired concurrency given the number
	// of workers currently assumed active (worker-count, not
	// necessarily the live count at call time).
	MaxConcurrency(workerCount int) int
	// Run executes one invocation of the closure. It must poll
	// delegate.ShouldYield() at cooperative points and stop promptly
	// once it returns true.
	Run(delegate *Delegate)
}

// Poster dispatches a Runnable onto a priority lane of the platform's
// worker pool. *workertask.Runner satisfies this.
type Poster interface {
	Post(task threadpool.Runnable, p priority.TaskPriority) bool
}

// State is the shared data backing a Job: the handle, every spawned
// worker, and every delegate reference the same State. Guarded fields
// are grouped with mu; assignedTaskIDs and canceled are lock-free.
type State struct {
	poster Poster
	task   Task

	mu                  sync.Mutex
	cond                *sync.Cond
	priority            priority.TaskPriority
	activeTasks         int
	pendingTasks        int
	numWorkersAvailable int

	assignedTaskIDs atomic.Uint64
	canceled        atomic.Bool
}

// NewState creates the shared state for a Job with the given task,
// initial priority, and number of workers available (the concurrency
// cap before any Join call adds the joining thread itself).
func NewState(poster Poster, task Task, p priority.TaskPriority, numWorkers int) *State {
	s := &State{
		poster:              poster,
		task:                task,
		priority:            p,
		numWorkersAvailable: numWorkers,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// maxConcurrency computes the effective concurrency limit given an
// active-task estimate; callers must already hold mu.
func (s *State) maxConcurrency(activeEstimate int) int {
	want := s.task.MaxConcurrency(activeEstimate)
	if s.numWorkersAvailable < want {
		return s.numWorkersAvailable
	}
	return want
}

// tasksToPostLocked computes how many additional tasks to post toward
// max, reserving them as pending; callers must hold mu.
func (s *State) tasksToPostLocked(max int) int {
	if max > s.activeTasks+s.pendingTasks {
		n := max - (s.activeTasks + s.pendingTasks)
		s.pendingTasks += n
		return n
	}
	return 0
}

// NotifyConcurrencyIncrease recomputes the concurrency target against
// the current active count and posts however many additional workers
// that target allows.
func (s *State) NotifyConcurrencyIncrease() {
	if s.canceled.Load() {
		return
	}
	s.mu.Lock()
	p := s.priority
	max := s.maxConcurrency(s.activeTasks)
	n := s.tasksToPostLocked(max)
	s.mu.Unlock()
	s.postOnWorkerThread(n, p)
}

// AcquireTaskID performs the CAS loop that finds and claims the
// smallest free bit in the task-id bitset.
func (s *State) AcquireTaskID() uint8 {
	for {
		assigned := s.assignedTaskIDs.Load()
		id := findFirstFreeTaskID(assigned)
		if id == InvalidTaskID {
			return id
		}
		next := assigned | (1 << uint(id))
		if s.assignedTaskIDs.CompareAndSwap(assigned, next) {
			return id
		}
	}
}

// ReleaseTaskID frees a previously-acquired bit.
func (s *State) ReleaseTaskID(id uint8) {
	prev := s.assignedTaskIDs.And(^(uint64(1) << uint(id)))
	apperr.Invariant(prev&(uint64(1)<<uint(id)) != 0, "ReleaseTaskID on an id that wasn't assigned")
}

func findFirstFreeTaskID(assigned uint64) uint8 {
	for idx := uint8(0); idx < taskIDBits; idx++ {
		if assigned&(1<<uint(idx)) == 0 {
			return idx
		}
	}
	return InvalidTaskID
}

// CanRunFirstTask is step 1 of a worker's lifecycle.
func (s *State) CanRunFirstTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTasks--
	if s.canceled.Load() {
		return false
	}
	if s.activeTasks >= s.maxConcurrency(s.activeTasks) {
		return false
	}
	s.activeTasks++
	return true
}

// DidRunFirstTask is step 3 of a worker's lifecycle.
func (s *State) DidRunFirstTask() bool {
	s.mu.Lock()
	p := s.priority
	max := s.maxConcurrency(s.activeTasks - 1)
	if s.canceled.Load() || s.activeTasks > max {
		s.activeTasks--
		s.mu.Unlock()
		s.cond.Broadcast()
		return false
	}
	n := s.tasksToPostLocked(s.maxConcurrency(s.activeTasks - 1))
	s.mu.Unlock()
	s.postOnWorkerThread(n, p)
	return true
}

// waitForRunOpportunity blocks until either a concurrency slot is
// available (returns a positive target) or the job has drained to
// nothing (returns 0).
func (s *State) waitForRunOpportunity() int {
	s.mu.Lock()
	max := s.maxConcurrency(s.activeTasks - 1)
	for s.activeTasks > max && s.activeTasks > 1 {
		s.cond.Wait()
		max = s.maxConcurrency(s.activeTasks - 1)
	}
	if max != 0 {
		s.mu.Unlock()
		return max
	}
	apperr.Invariant(s.activeTasks == 1, "waitForRunOpportunity expected exactly one active task")
	s.activeTasks = 0
	s.mu.Unlock()
	s.canceled.Store(true)
	return 0
}

// Join runs the closure on the calling (joining) thread, stealing work
// until the concurrency target drains to zero.
func (s *State) Join() {
	s.mu.Lock()
	s.priority = priority.UserBlocking
	s.activeTasks++
	s.numWorkersAvailable++
	s.mu.Unlock()

	max := s.waitForRunOpportunity()
	if max == 0 {
		return
	}

	s.mu.Lock()
	p := s.priority
	n := s.tasksToPostLocked(max)
	s.mu.Unlock()
	s.postOnWorkerThread(n, p)

	delegate := newDelegate(s, true)
	defer delegate.release()
	for {
		s.task.Run(delegate)
		if s.waitForRunOpportunity() == 0 {
			return
		}
	}
}

// CancelAndWait sets canceled and blocks until every active worker has
// drained to zero.
func (s *State) CancelAndWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled.Store(true)
	for s.activeTasks > 0 {
		s.cond.Wait()
	}
}

// CancelAndDetach sets canceled and returns immediately.
func (s *State) CancelAndDetach() {
	s.canceled.Store(true)
}

// IsActive reports whether the job still wants to run or has live
// workers.
func (s *State) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task.MaxConcurrency(s.activeTasks) != 0 || s.activeTasks != 0
}

// UpdatePriority changes the posting priority; it takes effect on the
// next post.
func (s *State) UpdatePriority(p priority.TaskPriority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priority = p
}

func (s *State) postOnWorkerThread(n int, p priority.TaskPriority) {
	for i := 0; i < n; i++ {
		w := &taskWorker{state: s}
		s.poster.Post(w, p)
	}
}

// taskWorker is one pool-posted worker invocation of the Job's task.
type taskWorker struct {
	state *State
}

// Run implements threadpool.Runnable. It repeatedly runs the task
// until DidRunFirstTask reports no further opportunity, constructing a
// fresh Delegate (and releasing its task id) each iteration, matching
// a do-while loop with a stack-local delegate.
func (w *taskWorker) Run() {
	if !w.state.CanRunFirstTask() {
		return
	}
	for {
		func() {
			delegate := newDelegate(w.state, false)
			defer delegate.release()
			w.state.task.Run(delegate)
		}()
		if !w.state.DidRunFirstTask() {
			return
		}
	}
}

// Delegate is passed to every invocation of the user closure.
type Delegate struct {
	state         *State
	joiningThread bool
	taskID        uint8
	taskIDFetched bool
	yielded       bool
}

func newDelegate(s *State, joiningThread bool) *Delegate {
	return &Delegate{state: s, joiningThread: joiningThread, taskID: InvalidTaskID}
}

// release frees the delegate's task id, if one was ever acquired. It
// must run exactly once, at the end of the delegate's lifetime —
// callers defer it immediately after construction.
func (d *Delegate) release() {
	if d.taskIDFetched && d.taskID != InvalidTaskID {
		d.state.ReleaseTaskID(d.taskID)
	}
}

// TaskID lazily acquires and caches the smallest free task id.
func (d *Delegate) TaskID() uint8 {
	if !d.taskIDFetched {
		d.taskID = d.state.AcquireTaskID()
		d.taskIDFetched = true
	}
	return d.taskID
}

// ShouldYield reports whether the closure must stop. Once it returns
// true it latches; calling it again afterward is a contract violation
// the caller must not commit.
func (d *Delegate) ShouldYield() bool {
	apperr.Invariant(!d.yielded, "ShouldYield called again after it already returned true")
	if d.state.canceled.Load() {
		d.yielded = true
	}
	return d.yielded
}

// NotifyConcurrencyIncrease tells the Job it may be able to run more
// concurrently now (e.g. new work became available).
func (d *Delegate) NotifyConcurrencyIncrease() {
	d.state.NotifyConcurrencyIncrease()
}

// IsJoiningThread reports whether this invocation runs on the thread
// that called Handle.Join, as opposed to a pool worker.
func (d *Delegate) IsJoiningThread() bool {
	return d.joiningThread
}

// Handle is the owner-visible reference to a running Job.
type Handle struct {
	state *State
}

// NewHandle wraps state in an owner-visible Handle and posts the
// initial batch of workers at the job's starting priority.
func NewHandle(s *State) *Handle {
	s.mu.Lock()
	p := s.priority
	n := s.tasksToPostLocked(s.maxConcurrency(s.activeTasks))
	s.mu.Unlock()
	s.postOnWorkerThread(n, p)
	return &Handle{state: s}
}

// NotifyConcurrencyIncrease forwards to the shared state.
func (h *Handle) NotifyConcurrencyIncrease() {
	apperr.Invariant(h.state != nil, "NotifyConcurrencyIncrease called on an invalid handle")
	h.state.NotifyConcurrencyIncrease()
}

// Join blocks until the job's work, including this thread's own
// stolen invocations, is exhausted. The handle is invalid afterward.
func (h *Handle) Join() {
	apperr.Invariant(h.state != nil, "Join called on an invalid handle")
	h.state.Join()
	h.state = nil
}

// Cancel cancels and blocks until every worker has drained. The handle
// is invalid afterward.
func (h *Handle) Cancel() {
	apperr.Invariant(h.state != nil, "Cancel called on an invalid handle")
	h.state.CancelAndWait()
	h.state = nil
}

// CancelAndDetach cancels without waiting. The handle is invalid
// afterward.
func (h *Handle) CancelAndDetach() {
	apperr.Invariant(h.state != nil, "CancelAndDetach called on an invalid handle")
	h.state.CancelAndDetach()
	h.state = nil
}

// IsActive reports whether the underlying job still wants to run.
func (h *Handle) IsActive() bool {
	if h.state == nil {
		return false
	}
	return h.state.IsActive()
}

// IsValid reports whether the handle still owns a live job (false
// after Join/Cancel/CancelAndDetach).
func (h *Handle) IsValid() bool {
	return h.state != nil
}

// UpdatePriorityEnabled always reports true; priority updates are
// always permitted on a Job.
func (h *Handle) UpdatePriorityEnabled() bool {
	return true
}

// UpdatePriority changes the job's posting priority, effective on the
// next post.
func (h *Handle) UpdatePriority(p priority.TaskPriority) {
	apperr.Invariant(h.state != nil, "UpdatePriority called on an invalid handle")
	h.state.UpdatePriority(p)
}
