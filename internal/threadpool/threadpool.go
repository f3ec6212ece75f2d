// Package threadpool implements an N-worker thread pool. A regular
// pool's workers sleep until work appears or the pool terminates; the
// pumping variant additionally polls on a bounded interval so that
// delayed items become visible without requiring a fresh notification
// for every tick of the clock.
package threadpool

import (
	"sync"
	"time"

	"github.com/cryguy/v8host/internal/clock"
	"github.com/cryguy/v8host/internal/taskqueue"
)

// pumpInterval is the upper bound the pumping variant uses to notice a
// delayed item has become ready without an explicit wake.
const pumpInterval = 200 * time.Millisecond

// Runnable is one unit of work dispatched to a pool worker.
type Runnable interface {
	Run()
}

// RunnableFunc adapts a plain function to Runnable.
type RunnableFunc func()

// Run invokes the function.
func (f RunnableFunc) Run() { f() }

// Pool is a fixed-size group of worker goroutines draining a shared
// taskqueue.TaskQueue. The thread pool itself has no notion of
// nesting, so every GetNext call uses depth 0.
type Pool struct {
	queue   *taskqueue.TaskQueue[Runnable]
	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	exiting bool
	done    chan struct{}
	wg      sync.WaitGroup
	pumping bool
}

// New creates a regular pool of size workers.
func New(size int, c clock.Source) *Pool {
	return newPool(size, c, false)
}

// NewPumping creates a pool whose workers additionally poll on a
// bounded interval so a newly-ready delayed item is observed even
// without an explicit wake — used by the delayed worker queue lane.
func NewPumping(size int, c clock.Source) *Pool {
	return newPool(size, c, true)
}

func newPool(size int, c clock.Source, pumping bool) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		queue:   taskqueue.New[Runnable](c),
		done:    make(chan struct{}),
		pumping: pumping,
	}
	p.cond = sync.NewCond(&p.mu)

	if pumping {
		p.wg.Add(1)
		go p.pumpTicker()
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	return p
}

func (p *Pool) pumpTicker() {
	defer p.wg.Done()
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		}
	}
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	p.mu.Lock()
	for {
		if p.exiting {
			p.mu.Unlock()
			return
		}
		if p.paused {
			p.cond.Wait()
			continue
		}
		item, ok := p.queue.GetNext(0)
		if !ok {
			// Nothing deliverable right now. A regular pool only wakes
			// on an explicit Post/PostDelayed/Terminate broadcast; a
			// pumping pool is additionally woken by its ticker so a
			// delayed item's deadline is eventually observed even
			// without a fresh push.
			p.cond.Wait()
			continue
		}
		p.mu.Unlock()
		item.Run()
		p.mu.Lock()
	}
}

// Post enqueues a now-ready item. Returns false if the pool is
// exiting.
func (p *Pool) Post(item Runnable) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exiting {
		return false
	}
	p.queue.Push(item)
	p.cond.Broadcast()
	return true
}

// PostDelayed enqueues an item ordered by the pool's clock plus delay.
// Returns false if the pool is exiting.
func (p *Pool) PostDelayed(delaySec float64, item Runnable) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exiting {
		return false
	}
	p.queue.PushDelayed(item, delaySec)
	// A new delayed item may have become the soonest deadline; wake a
	// waiter immediately instead of waiting for the pump interval.
	p.cond.Broadcast()
	return true
}

// SetPaused pauses or resumes dequeueing across the whole pool. While
// paused the dequeue predicate always reports false.
func (p *Pool) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
	if !paused {
		p.cond.Broadcast()
	}
}

// Terminate idempotently stops accepting work, drains the queue, and
// blocks until every worker has joined.
func (p *Pool) Terminate() {
	p.mu.Lock()
	if p.exiting {
		p.mu.Unlock()
		return
	}
	p.exiting = true
	p.queue.Terminate()
	close(p.done)
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Exiting reports whether Terminate has been called.
func (p *Pool) Exiting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exiting
}
