// Package assets implements an app asset-root index: a symbolic
// module-name to filesystem-root mapping, discovered by scanning a
// fixed three-folder layout (js/modules/resources) under an app root.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The three well-known child directory names FindAssetRoots requires
// directly under the app root.
const (
	RootJS        = "js"
	RootModules   = "modules"
	RootResources = "resources"
)

// Path tokens recognized by ReplaceTokens.
const (
	tokenAppRoot   = "@app-root@"
	tokenJS        = "@js@"
	tokenModules   = "@modules@"
	tokenResources = "@resources@"
)

// Index is the asset-root index owned by an App: one JS root
// directory, one Resources root, and a set of versioned module roots
// keyed by "name" or "name/version".
type Index struct {
	appRoot          string
	moduleRoots      map[string]string
	moduleLatestVers map[string]Version
}

// NewIndex returns an empty, unrooted Index.
func NewIndex() *Index {
	return &Index{
		moduleRoots:      make(map[string]string),
		moduleLatestVers: make(map[string]Version),
	}
}

// AppRoot returns the configured app root, or "" if SetAppRootPath has
// not yet succeeded.
func (idx *Index) AppRoot() string { return idx.appRoot }

// SetAppRootPath sets the app root exactly once: path must be an
// existing directory and FindAssetRoots must succeed against it. A
// first call that fails discovery leaves the index unrooted and returns
// false; a second call returns false and keeps the existing root.
func (idx *Index) SetAppRootPath(path string) bool {
	if idx.appRoot != "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if !idx.findAssetRoots(abs) {
		return false
	}
	idx.appRoot = abs
	return true
}

// AddModuleRootPath registers path under name, failing if name is
// already present.
func (idx *Index) AddModuleRootPath(name, path string) bool {
	if _, exists := idx.moduleRoots[name]; exists {
		return false
	}
	idx.moduleRoots[name] = path
	return true
}

// FindModuleRootPath looks up a previously registered module root.
func (idx *Index) FindModuleRootPath(name string) (string, bool) {
	p, ok := idx.moduleRoots[name]
	return p, ok
}

// RemoveModuleRootPath unregisters a module root, if present.
func (idx *Index) RemoveModuleRootPath(name string) {
	delete(idx.moduleRoots, name)
}

// SetModulesLatestVersion records v as the latest known version of
// name, unconditionally overwriting any previous value.
func (idx *Index) SetModulesLatestVersion(name string, v Version) {
	idx.moduleLatestVers[name] = v
}

// GetModulesLatestVersion returns the latest recorded version of name,
// or the zero Version ("") if none is known.
func (idx *Index) GetModulesLatestVersion(name string) Version {
	if v, ok := idx.moduleLatestVers[name]; ok {
		return v
	}
	return NewVersion("")
}

// RemoveModulesLatestVersion forgets the latest-version record for
// name, if any.
func (idx *Index) RemoveModulesLatestVersion(name string) {
	delete(idx.moduleLatestVers, name)
}

// ReplaceTokens rewrites a leading @app-root@/@js@/@modules@/
// @resources@ token into an absolute path rooted at the app root,
// substituting the literal directory name for every token but
// @app-root@ itself. A path with no recognized leading token is
// returned unchanged.
func (idx *Index) ReplaceTokens(path string) string {
	var tokenLen int
	var dir string
	switch {
	case strings.HasPrefix(path, tokenAppRoot):
		tokenLen = len(tokenAppRoot)
	case strings.HasPrefix(path, tokenJS):
		tokenLen = len(tokenJS)
		dir = RootJS
	case strings.HasPrefix(path, tokenModules):
		tokenLen = len(tokenModules)
		dir = RootModules
	case strings.HasPrefix(path, tokenResources):
		tokenLen = len(tokenResources)
		dir = RootResources
	default:
		return path
	}
	rest := strings.TrimPrefix(path[tokenLen:], string(filepath.Separator))
	rest = strings.TrimPrefix(rest, "/")
	if dir != "" {
		rest = filepath.Join(dir, rest)
	}
	return filepath.Join(idx.appRoot, rest)
}

// NormalizeRootToken rewrites a leading @js@/@modules@/@resources@
// token into its bare root-literal form (e.g. "@js@/a.js" becomes
// "js/a.js"), so a resolver that switches on a specifier's first "/"
// segment sees the same literal for both the token and bare forms of
// a specifier. Any other specifier, including one led by @app-root@,
// is returned unchanged.
func (idx *Index) NormalizeRootToken(specifier string) string {
	switch {
	case strings.HasPrefix(specifier, tokenJS):
		return RootJS + strings.TrimPrefix(specifier, tokenJS)
	case strings.HasPrefix(specifier, tokenModules):
		return RootModules + strings.TrimPrefix(specifier, tokenModules)
	case strings.HasPrefix(specifier, tokenResources):
		return RootResources + strings.TrimPrefix(specifier, tokenResources)
	default:
		return specifier
	}
}

// MakeRelativePathToAppRoot token-expands path, then returns it
// relative to the app root.
func (idx *Index) MakeRelativePathToAppRoot(path string) (string, error) {
	expanded := idx.ReplaceTokens(path)
	rel, err := filepath.Rel(idx.appRoot, expanded)
	if err != nil {
		return "", fmt.Errorf("assets: make relative path: %w", err)
	}
	return rel, nil
}

// MakeAbsolutePathToAppRoot token-expands path, then returns it
// rebased absolutely under the app root.
func (idx *Index) MakeAbsolutePathToAppRoot(path string) string {
	expanded := idx.ReplaceTokens(path)
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(idx.appRoot, expanded)
}

// findAssetRoots verifies root contains js/modules/resources child
// directories, registers js and resources as module roots, then scans
// modules' immediate children (skipping anything named js or
// resources) for version-named grandchildren, registering each as
// "name/version" and tracking the greatest version seen per name.
func (idx *Index) findAssetRoots(root string) bool {
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}
	var foundJS, foundModules, foundResources bool
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		switch e.Name() {
		case RootJS:
			foundJS = true
		case RootModules:
			foundModules = true
		case RootResources:
			foundResources = true
		}
	}
	if !foundJS || !foundModules || !foundResources {
		return false
	}

	idx.AddModuleRootPath(RootJS, filepath.Join(root, RootJS))
	idx.AddModuleRootPath(RootResources, filepath.Join(root, RootResources))

	baseModules := filepath.Join(root, RootModules)
	moduleEntries, err := os.ReadDir(baseModules)
	if err != nil {
		return false
	}
	for _, modEntry := range moduleEntries {
		if !modEntry.IsDir() {
			continue
		}
		name := modEntry.Name()
		if name == RootJS || name == RootResources {
			continue
		}
		modPath := filepath.Join(baseModules, name)
		versionEntries, err := os.ReadDir(modPath)
		if err != nil {
			continue
		}
		for _, verEntry := range versionEntries {
			version := NewVersion(verEntry.Name())
			if !version.IsVersion() {
				continue
			}
			key := filepath.ToSlash(filepath.Join(name, verEntry.Name()))
			idx.AddModuleRootPath(key, filepath.Join(modPath, verEntry.Name()))
			latest := idx.GetModulesLatestVersion(name)
			if !latest.IsVersion() || latest.Less(version) {
				idx.SetModulesLatestVersion(name, version)
			}
		}
	}
	return true
}
