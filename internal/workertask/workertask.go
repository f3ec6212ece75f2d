// Package workertask implements the worker task runner: one thread
// pool per priority lane, with post/post_delayed dispatch and a pause
// that cascades across every lane.
package workertask

import (
	"github.com/cryguy/v8host/internal/clock"
	"github.com/cryguy/v8host/internal/priority"
	"github.com/cryguy/v8host/internal/threadpool"
)

// Runner owns one ThreadPool per priority lane, sized to
// max(1, hardwareCores).
type Runner struct {
	lanes [priority.Max]*threadpool.Pool
}

// New creates a Runner with hardwareCores workers per lane. Every lane
// is its own pumping pool, so a delayed post on any lane is observed
// once its deadline passes without needing a fresh wake.
func New(hardwareCores int, c clock.Source) *Runner {
	size := hardwareCores
	if size < 1 {
		size = 1
	}
	r := &Runner{}
	for p := priority.TaskPriority(0); p < priority.Max; p++ {
		r.lanes[p] = threadpool.NewPumping(size, c)
	}
	return r
}

// Post dispatches task to the pool backing priority. Returns false if
// that lane is exiting.
func (r *Runner) Post(task threadpool.Runnable, p priority.TaskPriority) bool {
	return r.lanes[p].Post(task)
}

// PostDelayed dispatches task to priority's pool once delaySec elapses.
func (r *Runner) PostDelayed(task threadpool.Runnable, delaySec float64, p priority.TaskPriority) bool {
	return r.lanes[p].PostDelayed(delaySec, task)
}

// SetPaused pauses or resumes every lane.
func (r *Runner) SetPaused(paused bool) {
	for _, lane := range r.lanes {
		lane.SetPaused(paused)
	}
}

// Terminate cascades termination to every lane.
func (r *Runner) Terminate() {
	for _, lane := range r.lanes {
		lane.Terminate()
	}
}
