package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/v8host/internal/apperr"
	"github.com/cryguy/v8host/internal/assets"
	"github.com/cryguy/v8host/internal/corelog"
	"github.com/cryguy/v8host/internal/v8util"
)

// ModuleType is the value of an import attribute's "type" key, or its
// default.
type ModuleType string

const (
	ModuleTypeJS     ModuleType = "js"
	ModuleTypeJSON   ModuleType = "json"
	ModuleTypeNative ModuleType = "native"
	// moduleTypeInvalid marks an attribute value outside the supported
	// set; never stored as a ModuleInfo's type.
	moduleTypeInvalid ModuleType = ""
)

// parseModuleType maps an import attribute's raw "type" string to a
// ModuleType, defaulting unset to js.
func parseModuleType(raw string) (ModuleType, bool) {
	switch ModuleType(raw) {
	case "":
		return ModuleTypeJS, true
	case ModuleTypeJS, ModuleTypeJSON, ModuleTypeNative:
		return ModuleType(raw), true
	default:
		return moduleTypeInvalid, false
	}
}

// AssertionInfo is the parsed form of a specifier's import attributes.
type AssertionInfo struct {
	Type    ModuleType
	Version string
	Module  string
}

// ParseAssertionInfo validates raw import attributes, defaulting an
// absent "type" to js and rejecting any other unrecognized value.
func ParseAssertionInfo(attrs map[string]string) (AssertionInfo, error) {
	typ, ok := parseModuleType(attrs["type"])
	if !ok {
		return AssertionInfo{}, fmt.Errorf("%w: unsupported module type attribute %q", apperr.ErrModuleTypeAttribute, attrs["type"])
	}
	info := AssertionInfo{Type: typ, Module: attrs["module"]}
	if v, ok := attrs["version"]; ok && info.Module != "" {
		info.Version = v
	}
	return info, nil
}

// moduleKey is a ModuleIndex identity key: a module is cached by
// (absolute_path, module_type); different types of the same path are
// distinct modules.
type moduleKey struct {
	path string
	typ  ModuleType
}

// ModuleInfo is one loaded module: its source, compiled script, and
// (once evaluated) its CommonJS-shaped exports, reached through a
// globalThis stash slot rather than a held object handle (see
// wrapModuleSource).
type ModuleInfo struct {
	AbsPath string
	Type    ModuleType

	script   *v8.UnboundScript
	stashVar string
	exports  *v8.Value

	// json holds the decoded value of a ModuleTypeJSON module's source,
	// set by LoadModuleTree instead of script/stashVar. Evaluate builds
	// its JS exports value from this field on first evaluation rather
	// than running a compiled body.
	json any

	instantiated bool
	evaluating   bool
	evaluated    bool

	// requests lists the specifiers this module's body imports,
	// recorded at compile time so Instantiate can recurse without
	// re-parsing the compiled body. Always empty for a JSON module.
	requests []string
}

// ModuleIndex is a Context's (absolute_path, module_type) → ModuleInfo
// cache, plus a reverse lookup from each JS module's compiled script to
// its ModuleInfo. Instantiate resolves through bySpecifier and does not
// read the reverse lookup.
type ModuleIndex struct {
	ctx         *Context
	bySpecifier map[moduleKey]*ModuleInfo
	byHandle    map[*v8.UnboundScript]*ModuleInfo
	stashSeq    int

	requireInstalled bool
}

func newModuleIndex(ctx *Context) *ModuleIndex {
	idx := &ModuleIndex{
		ctx:         ctx,
		bySpecifier: make(map[moduleKey]*ModuleInfo),
		byHandle:    make(map[*v8.UnboundScript]*ModuleInfo),
	}
	if err := idx.installRequireFunction(); err != nil {
		corelog.Error("installing module loader for %s: %v", ctx.name, err)
	}
	return idx
}

// installRequireFunction registers the single globalThis.__requireModule
// function every compiled module body's local require() delegates to,
// mirroring the worker engine's convention of bridging Go logic in
// through one registered FunctionTemplate per capability rather than
// handing JS code a live Go-backed object.
func (idx *ModuleIndex) installRequireFunction() error {
	if idx.requireInstalled {
		return nil
	}
	iso := idx.ctx.runtime.iso
	vmCtx := idx.ctx.vmContext
	tmpl := v8.NewFunctionTemplate(iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < 2 {
			msg, _ := v8util.StringToV8(iso, "require() needs a specifier and a base directory")
			iso.ThrowException(msg)
			return nil
		}
		specifier := v8util.V8ToString(args[0])
		dir := v8util.V8ToString(args[1])

		dep, err := idx.LoadModuleTree(specifier, dir, AssertionInfo{Type: ModuleTypeJS})
		if err != nil {
			throwModuleError(iso, vmCtx, err)
			return nil
		}
		exports, err := idx.Evaluate(dep)
		if err != nil {
			throwModuleError(iso, vmCtx, err)
			return nil
		}
		return exports
	})
	fn := tmpl.GetFunction(idx.ctx.vmContext)
	if err := idx.ctx.vmContext.Global().Set("__requireModule", fn); err != nil {
		return err
	}
	idx.requireInstalled = true
	return nil
}

// resolveSpecifier resolves an import specifier against the
// importing module's directory and the registered asset roots,
// producing the absolute on-disk path to load.
func resolveSpecifier(idx *assets.Index, specifier, importerDir string, assertion AssertionInfo) (string, error) {
	specifier = idx.NormalizeRootToken(specifier)
	segments := strings.Split(filepath.ToSlash(specifier), "/")
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: empty module specifier", apperr.ErrModuleResolve)
	}
	first := segments[0]

	switch first {
	case assets.RootJS, assets.RootResources:
		root, ok := idx.FindModuleRootPath(first)
		if !ok {
			return "", fmt.Errorf("%w: no asset root registered for %q", apperr.ErrModuleResolve, first)
		}
		return filepath.Join(root, filepath.Join(segments[1:]...)), nil
	case assets.RootModules:
		// The modules-root token is advanced past unconditionally, per
		// spec rule: a "modules/..." specifier always continues into
		// module-name/version lookup below, regardless of how many
		// segments remain, so it must not fall into the relative-path
		// shortcut just because stripping the token can leave an empty
		// first segment.
		return resolveModuleVersion(idx, segments[1:], specifier, assertion)
	}

	// Explicitly relative specifiers ("./x", "../x") and bare
	// single-file specifiers resolve against the importer's own
	// directory without going through module-version lookup.
	if first == "" || first == "." || first == ".." || len(segments) == 1 {
		rel := filepath.Join(segments...)
		return filepath.Join(importerDir, rel), nil
	}

	return resolveModuleVersion(idx, segments, specifier, assertion)
}

// resolveModuleVersion resolves segments as moduleName/[version/]remaining
// against idx's registered module roots, honoring an optional
// AssertionInfo.Module/Version cross-check.
func resolveModuleVersion(idx *assets.Index, segments []string, specifier string, assertion AssertionInfo) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: missing module name in specifier %q", apperr.ErrModuleResolve, specifier)
	}
	moduleName := segments[0]
	rest := segments[1:]

	version := idx.GetModulesLatestVersion(moduleName)
	remaining := rest
	if len(rest) > 0 {
		candidate := assets.NewVersion(rest[0])
		if candidate.IsVersion() {
			version = candidate
			remaining = rest[1:]
		}
	}
	if !version.IsVersion() {
		return "", fmt.Errorf("%w: no known version for module %q", apperr.ErrModuleResolve, moduleName)
	}

	key := moduleName + "/" + version.String()
	root, ok := idx.FindModuleRootPath(key)
	if !ok {
		return "", fmt.Errorf("%w: no module root registered for %q", apperr.ErrModuleResolve, key)
	}
	computed := filepath.Join(root, filepath.Join(remaining...))

	if assertion.Module != "" {
		assertedVersion := assets.NewVersion(assertion.Version)
		if !assertedVersion.IsVersion() {
			assertedVersion = idx.GetModulesLatestVersion(assertion.Module)
		}
		assertedRoot, ok := idx.FindModuleRootPath(assertion.Module + "/" + assertedVersion.String())
		if !ok {
			return "", fmt.Errorf("%w: no module root registered for asserted module %q", apperr.ErrModuleResolve, assertion.Module)
		}
		assertedPath := filepath.Join(assertedRoot, filepath.Join(remaining...))
		if computed != assertedPath {
			return "", fmt.Errorf("%w: asserted module %q path does not match resolved path for %q", apperr.ErrModuleResolve, assertion.Module, specifier)
		}
	}

	return idx.ReplaceTokens(computed), nil
}

// LoadModuleTree computes specifier's absolute path, returns its
// cached ModuleInfo if present, or compiles it and recurses into its
// own import requests. Insertion happens before recursion so an
// import cycle's second visit finds the already-registered (if not
// yet evaluated) entry instead of looping.
func (idx *ModuleIndex) LoadModuleTree(specifier, importerDir string, assertion AssertionInfo) (*ModuleInfo, error) {
	absPath, err := resolveSpecifier(idx.ctx.runtime.assets, specifier, importerDir, assertion)
	if err != nil {
		return nil, err
	}
	if absPath == "" {
		return nil, fmt.Errorf("%w: resolved empty path for specifier %q", apperr.ErrModuleResolve, specifier)
	}

	key := moduleKey{path: absPath, typ: assertion.Type}
	if existing, ok := idx.bySpecifier[key]; ok {
		return existing, nil
	}

	if assertion.Type == ModuleTypeJSON {
		return idx.loadJSONModule(absPath, key)
	}

	src, err := idx.ctx.runtime.cache.LoadScriptSource(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: loading module source %q: %v", apperr.ErrModuleLoad, absPath, err)
	}

	body, err := transformModuleBody(string(src.SourceBytes), absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrModuleLoad, err)
	}
	requests := scanImportSpecifiers(string(src.SourceBytes))

	stashVar := fmt.Sprintf("__mod_%d", idx.stashSeq)
	idx.stashSeq++

	wrapped := wrapModuleSource(body, filepath.Dir(absPath), stashVar)
	script, err := idx.ctx.runtime.iso.CompileUnboundScript(wrapped, absPath, v8.CompileOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: compiling module %q: %v", apperr.ErrModuleLoad, absPath, err)
	}

	info := &ModuleInfo{AbsPath: absPath, Type: assertion.Type, script: script, stashVar: stashVar, requests: requests}
	idx.bySpecifier[key] = info
	idx.byHandle[script] = info

	dir := filepath.Dir(absPath)
	for _, req := range requests {
		if _, err := idx.LoadModuleTree(req, dir, AssertionInfo{Type: ModuleTypeJS}); err != nil {
			return nil, fmt.Errorf("engine: loading dependency %q of %q: %w", req, absPath, err)
		}
	}

	return info, nil
}

// loadJSONModule reads and decodes absPath as a JSON module, bypassing
// the script cache's .js/.mjs extension check and the CommonJS
// transform entirely: a JSON module has no body to run, only a parsed
// value, grounded on JSContextModules.cc's AddJSONModule/
// GetJSONByModule/m_JSONModuleToParsedMap handling of {type: "json"}
// imports.
func (idx *ModuleIndex) loadJSONModule(absPath string, key moduleKey) (*ModuleInfo, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading JSON module %q: %v", apperr.ErrModuleLoad, absPath, err)
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON module %q: %v", apperr.ErrModuleLoad, absPath, err)
	}

	info := &ModuleInfo{AbsPath: absPath, Type: ModuleTypeJSON, json: parsed}
	idx.bySpecifier[key] = info
	return info, nil
}

// Instantiate walks info's already-loaded dependency graph, marking
// every module instantiated exactly once. The bound VM API never
// demonstrates a native InstantiateModule host callback, so resolution
// happens directly against the already populated ModuleIndex instead
// of a VM-invoked resolve callback.
func (idx *ModuleIndex) Instantiate(info *ModuleInfo) error {
	if info.instantiated {
		return nil
	}
	info.instantiated = true

	dir := filepath.Dir(info.AbsPath)
	for _, req := range info.requests {
		dep, err := idx.LoadModuleTree(req, dir, AssertionInfo{Type: ModuleTypeJS})
		if err != nil {
			return fmt.Errorf("engine: resolving %q from %q: %w", req, info.AbsPath, err)
		}
		if err := idx.Instantiate(dep); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs info's compiled body once under ctx and caches the
// resulting exports value, read back from the globalThis stash slot
// the module's wrapper assigns rather than through a held object or
// function handle. A module whose evaluation is already in flight (an
// import cycle) returns whatever its stash slot currently holds; the
// wrapper assigns that slot only after the body finishes, so such a
// read yields undefined rather than partial exports.
func (idx *ModuleIndex) Evaluate(info *ModuleInfo) (*v8.Value, error) {
	if info.evaluated {
		return info.exports, nil
	}
	if info.Type == ModuleTypeJSON {
		return idx.evaluateJSON(info)
	}
	if info.evaluating {
		return idx.readStash(info)
	}
	if err := idx.Instantiate(info); err != nil {
		return nil, err
	}

	info.evaluating = true
	defer func() { info.evaluating = false }()

	dir := filepath.Dir(info.AbsPath)
	for _, req := range info.requests {
		dep, err := idx.LoadModuleTree(req, dir, AssertionInfo{Type: ModuleTypeJS})
		if err != nil {
			return nil, err
		}
		if dep != info {
			if _, err := idx.Evaluate(dep); err != nil {
				return nil, err
			}
		}
	}

	if _, err := info.script.Run(idx.ctx.vmContext); err != nil {
		corelog.Error("running module body %s: %v", info.AbsPath, err)
		return nil, fmt.Errorf("engine: running module %q: %w", info.AbsPath, err)
	}

	exports, err := idx.readStash(info)
	if err != nil {
		return nil, err
	}

	info.exports = exports
	info.evaluated = true
	return info.exports, nil
}

// evaluateJSON builds info's JS exports value from its decoded Go
// value via the same JSON.parse-a-literal idiom InitializeImportMeta
// uses, since a JSON module has no compiled body or stash slot to read
// back from.
func (idx *ModuleIndex) evaluateJSON(info *ModuleInfo) (*v8.Value, error) {
	encoded, err := json.Marshal(info.json)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encoding JSON module %q: %v", apperr.ErrModuleLoad, info.AbsPath, err)
	}
	val, err := idx.ctx.vmContext.RunScript(fmt.Sprintf("JSON.parse(%s)", jsStringLiteral(string(encoded))), info.AbsPath+":exports")
	if err != nil {
		return nil, fmt.Errorf("%w: building JSON module %q: %v", apperr.ErrModuleLoad, info.AbsPath, err)
	}
	info.exports = val
	info.evaluated = true
	return val, nil
}

// readStash fetches info's exports value out of its globalThis stash
// slot via RunScript, the same read-back idiom used everywhere else in
// this host to move a value from the isolate into Go.
func (idx *ModuleIndex) readStash(info *ModuleInfo) (*v8.Value, error) {
	val, err := idx.ctx.vmContext.RunScript("globalThis."+info.stashVar, info.AbsPath+":exports")
	if err != nil {
		return nil, fmt.Errorf("engine: reading exports of %q: %w", info.AbsPath, err)
	}
	return val, nil
}

// scanImportSpecifiers extracts the literal specifiers of static
// import/export-from statements and dynamic import() calls from
// source, good enough to build the dependency-request list a full
// parser would otherwise produce; template-literal or computed
// specifiers are not supported, matching the module loader's
// requirement that specifiers be statically resolvable path strings.
func scanImportSpecifiers(source string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(spec string) {
		if spec != "" && !seen[spec] {
			seen[spec] = true
			out = append(out, spec)
		}
	}
	for _, kw := range []string{"from", "import"} {
		idx := 0
		for {
			pos := strings.Index(source[idx:], kw)
			if pos < 0 {
				break
			}
			pos += idx
			rest := source[pos+len(kw):]
			rest = strings.TrimLeft(rest, " \t(")
			if len(rest) == 0 || (rest[0] != '"' && rest[0] != '\'') {
				idx = pos + len(kw)
				continue
			}
			quote := rest[0]
			end := strings.IndexByte(rest[1:], quote)
			if end < 0 {
				idx = pos + len(kw)
				continue
			}
			add(rest[1 : 1+end])
			idx = pos + len(kw)
		}
	}
	return out
}
