// Package startup loads the process-level VM startup data (an ICU
// data file and a snapshot blob) exactly once, mirroring the
// once-only ICU/snapshot loader a full VM embedding keeps as a
// dedicated component distinct from per-isolate setup.
package startup

import (
	"fmt"
	"os"
	"sync"

	"github.com/cryguy/v8host/internal/corelog"
)

var (
	once    sync.Once
	loadErr error
	loaded  bool
)

// LoadOnce validates that icuDataPath and snapshotPath exist and
// marks process-level startup data as loaded. Only the first call
// does any work; every later call returns its cached result. The
// bound VM API never demonstrates a SetSnapshotDataBlob or
// InitializeICU call, so this stays a Go-level existence and
// idempotency guard rather than a real data-blob load — a real
// embedding would pass these paths on to the VM's own startup hooks
// once bound.
func LoadOnce(icuDataPath, snapshotPath string) error {
	once.Do(func() {
		loadErr = doLoad(icuDataPath, snapshotPath)
		loaded = loadErr == nil
	})
	return loadErr
}

// Loaded reports whether LoadOnce has already completed successfully.
func Loaded() bool { return loaded }

func doLoad(icuDataPath, snapshotPath string) error {
	if icuDataPath == "" {
		corelog.Error("empty file name passed for the ICU data file")
		return fmt.Errorf("startup: empty ICU data file path")
	}
	if _, err := os.Stat(icuDataPath); err != nil {
		corelog.Error("failed to find the ICU data file: %s", icuDataPath)
		return fmt.Errorf("startup: ICU data file %q: %w", icuDataPath, err)
	}

	if snapshotPath == "" {
		corelog.Error("empty file name passed for the startup data file")
		return fmt.Errorf("startup: empty snapshot data file path")
	}
	if _, err := os.Stat(snapshotPath); err != nil {
		corelog.Error("failed to find the startup data file: %s", snapshotPath)
		return fmt.Errorf("startup: snapshot data file %q: %w", snapshotPath, err)
	}

	return nil
}

// resetForTest clears the once-guard so tests can exercise LoadOnce's
// first-call and cached-result paths independently.
func resetForTest() {
	once = sync.Once{}
	loadErr = nil
	loaded = false
}
