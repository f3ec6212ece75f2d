// Package v8host is the embedder-facing facade over the VM runtime
// layer: one App per process, loading startup data once, owning the
// asset-root index and code cache every Runtime it creates shares.
package v8host

import (
	"fmt"
	"sync"

	"github.com/cryguy/v8host/internal/assets"
	"github.com/cryguy/v8host/internal/codecache"
	"github.com/cryguy/v8host/internal/corelog"
	"github.com/cryguy/v8host/internal/engine"
	"github.com/cryguy/v8host/internal/platform"
	"github.com/cryguy/v8host/internal/startup"
)

// App owns process-level VM state: the loaded startup data, the asset
// root index, the code cache, the shared worker platform, and every
// Runtime it has created.
type App struct {
	config AppConfig

	assets   *assets.Index
	cache    *codecache.Cache
	platform *platform.Platform

	mu          sync.Mutex
	runtimes    []*engine.Runtime
	initialized bool
	disposed    bool
}

// NewApp constructs an uninitialized App bound to cfg. Call Initialize
// before creating any runtimes.
func NewApp(cfg AppConfig) *App {
	return &App{config: cfg}
}

// Initialize loads VM startup data at process level if not yet done,
// sets up the asset-root index against config.AppRootPath, and builds
// the code cache and shared worker platform every runtime this App
// creates will use. Idempotent; a second call is a no-op once the
// first succeeded.
func (a *App) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	if err := startup.LoadOnce(a.config.ICUDataPath, a.config.SnapshotPath); err != nil {
		corelog.Error("app initialize: loading startup data: %v", err)
		return fmt.Errorf("v8host: loading startup data: %w", err)
	}

	idx := assets.NewIndex()
	if !idx.SetAppRootPath(a.config.AppRootPath) {
		corelog.Error("app initialize: invalid app root %q", a.config.AppRootPath)
		return fmt.Errorf("v8host: invalid app root %q", a.config.AppRootPath)
	}

	a.assets = idx
	a.cache = codecache.New(idx)
	a.platform = platform.New()
	a.initialized = true
	return nil
}

// CreateJSRuntime constructs a Runtime wired against this App's asset
// index, code cache, and shared worker platform, and registers it so
// Dispose tears it down in reverse creation order.
func (a *App) CreateJSRuntime(rc RuntimeConfig) (*engine.Runtime, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil, fmt.Errorf("v8host: CreateJSRuntime called before Initialize")
	}
	if a.disposed {
		return nil, fmt.Errorf("v8host: CreateJSRuntime called after Dispose")
	}

	rt := engine.NewRuntime(a.platform, a.assets, a.cache, engine.RuntimeOptions{
		Name:             rc.Name,
		IdleTasksEnabled: rc.IdleTasksEnabled,
		ForSnapshot:      rc.ForSnapshot,
		HeapLimitMB:      rc.HeapLimitMB,
	})
	a.runtimes = append(a.runtimes, rt)
	return rt, nil
}

// Dispose tears down every runtime this App created, in reverse order
// of creation, then shuts down the shared worker platform. Idempotent.
func (a *App) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.disposed = true

	for i := len(a.runtimes) - 1; i >= 0; i-- {
		a.runtimes[i].Dispose()
	}
	a.runtimes = nil

	if a.platform != nil {
		a.platform.Shutdown()
	}
}
