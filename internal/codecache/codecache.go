// Package codecache implements an mtime-keyed on-disk code cache.
// Compiled bytecode for a script file lives under
// "<app root>/.code_cache/<relative path>.jscc" and is invalidated
// whenever the source file's mtime moves past the cached entry's.
package codecache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cryguy/v8host/internal/apperr"
)

// Resolver supplies the app-root-relative path machinery the cache
// needs; *assets.Index satisfies this.
type Resolver interface {
	MakeRelativePathToAppRoot(path string) (string, error)
	AppRoot() string
}

// Entry holds everything known about one cached script.
type Entry struct {
	FilePath          string
	CachePath         string
	SourceBytes       []byte
	CompiledBytes     []byte
	LastCompiledMtime time.Time
}

// Source is the VM-level handle load_script_source hands back: the
// source text, the path to use as the script origin, and an optional
// compiled-bytecode hint. Compiled is not owned by the caller — it
// aliases the cache Entry's bytes and must not be mutated.
type Source struct {
	SourceBytes []byte
	OriginPath  string
	Compiled    []byte
}

// Cache is the per-App code cache keyed by absolute script path.
type Cache struct {
	resolver Resolver
	entries  map[string]*Entry
}

// New creates an empty Cache bound to resolver.
func New(resolver Resolver) *Cache {
	return &Cache{resolver: resolver, entries: make(map[string]*Entry)}
}

// GenerateCachePath derives the ".code_cache" path for p, requiring
// that p's first path component under the app root be the js or
// modules root.
func (c *Cache) GenerateCachePath(p string) (string, error) {
	rel, err := c.resolver.MakeRelativePathToAppRoot(p)
	if err != nil {
		return "", fmt.Errorf("codecache: %w", err)
	}
	rel = filepath.Clean(rel)
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if first != "js" && first != "modules" {
		return "", fmt.Errorf("codecache: script file is not under the js or modules directory: %s", p)
	}
	cachePath := filepath.Join(c.resolver.AppRoot(), ".code_cache", rel)
	ext := filepath.Ext(cachePath)
	cachePath = strings.TrimSuffix(cachePath, ext) + ".jscc"
	return cachePath, nil
}

// LoadScriptSource validates p, resolves or creates its cache Entry,
// refreshes it against the source file's current mtime, and returns a
// Source ready to hand to the VM.
func (c *Cache) LoadScriptSource(p string) (*Source, error) {
	if p == "" {
		return nil, fmt.Errorf("codecache: empty file path")
	}
	ext := filepath.Ext(p)
	if ext != ".js" && ext != ".mjs" {
		return nil, fmt.Errorf("codecache: unsupported extension %q, only .js and .mjs are allowed", ext)
	}
	srcInfo, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("codecache: file does not exist: %s", p)
	}

	cachePath, err := c.GenerateCachePath(p)
	if err != nil {
		return nil, err
	}

	entry, ok := c.entries[p]
	if !ok {
		entry, err = c.createEntry(p, cachePath)
		if err != nil {
			return nil, err
		}
		c.entries[p] = entry

		if cacheInfo, err := os.Stat(cachePath); err == nil {
			if !cacheInfo.ModTime().Before(srcInfo.ModTime()) {
				if err := c.readCachedDataFile(cachePath, entry); err != nil {
					return nil, err
				}
			}
			entry.LastCompiledMtime = cacheInfo.ModTime()
		}
	}

	if entry.LastCompiledMtime.Before(srcInfo.ModTime()) {
		entry.CompiledBytes = nil
		if err := c.readScriptFile(p, entry); err != nil {
			return nil, err
		}
	}

	return &Source{
		SourceBytes: entry.SourceBytes,
		OriginPath:  entry.FilePath,
		Compiled:    entry.CompiledBytes,
	}, nil
}

// StoreCompiled persists bytes as the compiled form of p, creating
// cache directories as needed, and updates the in-memory Entry.
func (c *Cache) StoreCompiled(p string, bytes []byte) error {
	if len(bytes) == 0 {
		return fmt.Errorf("codecache: StoreCompiled passed no data")
	}
	entry, ok := c.entries[p]
	if !ok {
		cachePath, err := c.GenerateCachePath(p)
		if err != nil {
			return err
		}
		entry, err = c.createEntry(p, cachePath)
		if err != nil {
			return err
		}
		c.entries[p] = entry
	}

	if err := writeCacheDataFile(entry.CachePath, bytes); err != nil {
		return err
	}

	entry.CompiledBytes = append([]byte(nil), bytes...)
	info, err := os.Stat(entry.CachePath)
	apperr.Invariant(err == nil, "cache file vanished immediately after being written")
	entry.LastCompiledMtime = info.ModTime()
	return nil
}

func (c *Cache) createEntry(p, cachePath string) (*Entry, error) {
	entry := &Entry{FilePath: p, CachePath: cachePath}
	if err := c.readScriptFile(p, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *Cache) readScriptFile(p string, entry *Entry) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("codecache: failed to read script file %s: %w", p, err)
	}
	entry.SourceBytes = data
	return nil
}

func (c *Cache) readCachedDataFile(cachePath string, entry *Entry) error {
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return fmt.Errorf("codecache: failed to read cache file %s: %w", cachePath, err)
	}
	if len(data) == 0 {
		return nil
	}
	entry.CompiledBytes = data
	return nil
}

// writeCacheDataFile writes data to path atomically enough that a
// crash leaves either nothing or a complete file: write to a sibling
// temp file, then rename over the destination.
func writeCacheDataFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("codecache: failed to create cache directory %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".jscc-*")
	if err != nil {
		return fmt.Errorf("codecache: failed to create temp cache file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("codecache: failed to write cache file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("codecache: failed to close cache file %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("codecache: failed to finalize cache file %s: %w", path, err)
	}
	return nil
}
