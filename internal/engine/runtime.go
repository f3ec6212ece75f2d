// Package engine implements the Runtime, Context and module-loader
// layer: one VM isolate per Runtime, one VM context per Context, and
// an ECMAScript module graph compiled and evaluated against the
// isolate's classic-script API (the only compilation surface the
// bound VM exposes — see DESIGN.md).
package engine

import (
	"fmt"
	"sync"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/v8host/internal/assets"
	"github.com/cryguy/v8host/internal/codecache"
	"github.com/cryguy/v8host/internal/corelog"
	"github.com/cryguy/v8host/internal/foreground"
	"github.com/cryguy/v8host/internal/job"
	"github.com/cryguy/v8host/internal/platform"
	"github.com/cryguy/v8host/internal/priority"
)

// templateTag is the caller-chosen stable address used as a type tag
// in the template registry. Any comparable value works; callers
// typically use a pointer to a package-level sentinel.
type templateTag any

// RuntimeOptions configures Runtime creation.
type RuntimeOptions struct {
	Name             string
	IdleTasksEnabled bool
	// ForSnapshot requests snapshot-mode isolate creation. The bound VM
	// API surface exercised elsewhere in this module never demonstrates
	// SnapshotCreator, so this flag is recorded and surfaced through
	// ForSnapshot() but does not yet change isolate construction; see
	// DESIGN.md's VM capability surface Open Question.
	ForSnapshot bool
	// HeapLimitMB, if non-zero, bounds the isolate's heap the same way
	// the worker engine's pool sizing did (half as the initial size,
	// the full value as the hard limit).
	HeapLimitMB int
}

// Runtime owns one VM isolate, its foreground task queue, its
// template registry, and every Context created against it.
type Runtime struct {
	name             string
	idleTasksEnabled bool
	forSnapshot      bool

	iso        *v8.Isolate
	mu         sync.Mutex // serializes isolate access, standing in for an isolate locker
	foreground *foreground.Runner
	platform   *platform.Platform
	assets     *assets.Index
	cache      *codecache.Cache

	objectTemplates   map[templateTag]*v8.ObjectTemplate
	functionTemplates map[templateTag]*v8.FunctionTemplate

	contextsMu sync.Mutex
	contexts   map[string]*Context

	disposed bool
}

// NewRuntime allocates a VM isolate and its supporting task/template
// state. A snapshot-creator branch is recorded via ForSnapshot but not
// yet constructed; see DESIGN.md.
func NewRuntime(p *platform.Platform, assetIndex *assets.Index, cache *codecache.Cache, opts RuntimeOptions) *Runtime {
	var iso *v8.Isolate
	if opts.HeapLimitMB > 0 {
		heapBytes := uint64(opts.HeapLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapBytes/2, heapBytes))
	} else {
		iso = v8.NewIsolate()
	}

	rt := &Runtime{
		name:              opts.Name,
		idleTasksEnabled:  opts.IdleTasksEnabled,
		forSnapshot:       opts.ForSnapshot,
		iso:               iso,
		foreground:        p.NewForegroundRunner(),
		platform:          p,
		assets:            assetIndex,
		cache:             cache,
		objectTemplates:   make(map[templateTag]*v8.ObjectTemplate),
		functionTemplates: make(map[templateTag]*v8.FunctionTemplate),
		contexts:          make(map[string]*Context),
	}
	return rt
}

// Isolate returns the underlying VM isolate.
func (r *Runtime) Isolate() *v8.Isolate { return r.iso }

// PostJob spawns a Job running task across the runtime's shared
// worker pool at priority p.
func (r *Runtime) PostJob(task job.Task, p priority.TaskPriority) *job.Handle {
	return r.platform.PostJob(task, p)
}

// Foreground returns the runtime's foreground task runner.
func (r *Runtime) Foreground() *foreground.Runner { return r.foreground }

// ForSnapshot reports whether this runtime was created for snapshot
// building.
func (r *Runtime) ForSnapshot() bool { return r.forSnapshot }

// IdleTasksEnabled reports whether idle-task processing is enabled.
func (r *Runtime) IdleTasksEnabled() bool { return r.idleTasksEnabled }

// ObjectTemplate returns the eternal ObjectTemplate registered under
// tag, creating and registering a fresh one via build if absent.
func (r *Runtime) ObjectTemplate(tag templateTag, build func(*v8.Isolate) *v8.ObjectTemplate) *v8.ObjectTemplate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.objectTemplates[tag]; ok {
		return t
	}
	t := build(r.iso)
	r.objectTemplates[tag] = t
	return t
}

// FunctionTemplate returns the eternal FunctionTemplate registered
// under tag, creating and registering a fresh one via build if absent.
func (r *Runtime) FunctionTemplate(tag templateTag, build func(*v8.Isolate) *v8.FunctionTemplate) *v8.FunctionTemplate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.functionTemplates[tag]; ok {
		return t
	}
	t := build(r.iso)
	r.functionTemplates[tag] = t
	return t
}

// ProcessTasks runs foreground tasks until none is deliverable, running
// each under the runtime's serialized isolate access and a nested run
// scope. Delayed tasks whose deadline has not arrived stay queued.
func (r *Runtime) ProcessTasks() {
	for r.foreground.MayHaveItems() {
		task, ok := r.foreground.GetNextTask()
		if !ok {
			break
		}
		r.mu.Lock()
		scope := r.foreground.EnterRunScope()
		func() {
			defer scope.Close()
			task()
		}()
		r.mu.Unlock()
	}
}

// ProcessIdleTasks runs idle tasks until budgetSec has elapsed as
// measured by clockNow, passing each the absolute deadline
// clockNow() + budgetSec.
func (r *Runtime) ProcessIdleTasks(clockNow func() float64, budgetSec float64) {
	if !r.idleTasksEnabled {
		return
	}
	deadline := clockNow() + budgetSec
	for clockNow() < deadline && r.foreground.MayHaveIdleItems() {
		task, ok := r.foreground.GetNextIdleTask()
		if !ok {
			break
		}
		r.mu.Lock()
		task(deadline)
		r.mu.Unlock()
	}
}

// CreateContext delegates to newContext and registers the result
// under name.
func (r *Runtime) CreateContext(name string) (*Context, error) {
	r.contextsMu.Lock()
	defer r.contextsMu.Unlock()
	if _, exists := r.contexts[name]; exists {
		return nil, fmt.Errorf("engine: context %q already exists", name)
	}

	ctx, err := newContext(r, name)
	if err != nil {
		corelog.Error("create_context %q failed: %v", name, err)
		return nil, err
	}
	r.contexts[name] = ctx
	return ctx, nil
}

// DisposeContext removes name from the named-contexts map and
// releases its VM context.
func (r *Runtime) DisposeContext(name string) {
	r.contextsMu.Lock()
	defer r.contextsMu.Unlock()
	ctx, ok := r.contexts[name]
	if !ok {
		return
	}
	ctx.dispose()
	delete(r.contexts, name)
}

// LookupContext returns the named context, if any.
func (r *Runtime) LookupContext(name string) (*Context, bool) {
	r.contextsMu.Lock()
	defer r.contextsMu.Unlock()
	ctx, ok := r.contexts[name]
	return ctx, ok
}

// Dispose releases every context, the foreground queue, and the
// isolate itself. Idempotent.
func (r *Runtime) Dispose() {
	r.contextsMu.Lock()
	if r.disposed {
		r.contextsMu.Unlock()
		return
	}
	r.disposed = true
	for name, ctx := range r.contexts {
		ctx.dispose()
		delete(r.contexts, name)
	}
	r.contextsMu.Unlock()

	r.foreground.Terminate()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.objectTemplates = nil
	r.functionTemplates = nil
	r.iso.Dispose()
}
