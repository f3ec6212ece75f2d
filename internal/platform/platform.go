// Package platform aggregates the concurrency primitives required by
// the VM backend: a clock, the foreground task runner for the calling
// isolate, the worker task runner, and the Job poster interface the
// job package dispatches onto.
package platform

import (
	"runtime"

	"github.com/cryguy/v8host/internal/clock"
	"github.com/cryguy/v8host/internal/foreground"
	"github.com/cryguy/v8host/internal/job"
	"github.com/cryguy/v8host/internal/priority"
	"github.com/cryguy/v8host/internal/workertask"
)

// HardwareConcurrency reports the number of workers a freshly created
// Platform should size its worker pools to, mirroring
// std::thread::hardware_concurrency(): at least one, never zero.
func HardwareConcurrency() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// Platform is the per-process concurrency surface a Runtime binds
// against: one worker Runner shared across every isolate, plus a
// per-isolate foreground Runner created by NewForegroundRunner.
type Platform struct {
	Clock  clock.Source
	Worker *workertask.Runner

	workers int
}

// New creates a Platform sized to HardwareConcurrency, using the real
// wall/monotonic clock.
func New() *Platform {
	return NewWithClock(clock.Real{})
}

// NewWithClock creates a Platform backed by the given clock source,
// letting tests inject a clock.Fake for deterministic delayed-task
// scheduling.
func NewWithClock(c clock.Source) *Platform {
	workers := HardwareConcurrency()
	return &Platform{
		Clock:   c,
		Worker:  workertask.New(workers, c),
		workers: workers,
	}
}

// PostJob spawns a Job running task across up to
// min(task.MaxConcurrency(n), workers) of this platform's worker
// threads at priority p, mirroring v8::Platform::PostJob.
func (p *Platform) PostJob(task job.Task, pr priority.TaskPriority) *job.Handle {
	state := job.NewState(p.Worker, task, pr, p.workers)
	return job.NewHandle(state)
}

// NewForegroundRunner creates a new per-isolate foreground task
// runner bound to this platform's clock. Each Runtime owns exactly
// one, drained only from the thread holding that isolate's lock.
func (p *Platform) NewForegroundRunner() *foreground.Runner {
	return foreground.New(p.Clock)
}

// Shutdown terminates the shared worker runner. Foreground runners are
// owned and terminated individually by their Runtime.
func (p *Platform) Shutdown() {
	p.Worker.Terminate()
}
