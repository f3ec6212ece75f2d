package engine

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/v8host/internal/apperr"
	"github.com/cryguy/v8host/internal/v8util"
)

// InstallDynamicImport registers the globalThis function the module
// wrapper's transpiled body calls for a dynamic import() expression,
// under ctx.
//
// A native host_import_module_dynamically callback enqueues a
// microtask and returns a pending promise immediately. The bound VM
// API never demonstrates registering such a callback, so this
// resolves synchronously instead: module loading here is pure local
// file I/O with no asynchronous boundary, so there is nothing to gain
// by deferring to a microtask, and the returned promise settles
// before the call returns. See DESIGN.md.
func InstallDynamicImport(ctx *Context) error {
	iso := ctx.runtime.iso
	vmCtx := ctx.vmContext

	tmpl := v8.NewFunctionTemplate(iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		resolver, _ := v8.NewPromiseResolver(vmCtx)
		args := info.Args()
		if len(args) < 1 {
			err := fmt.Errorf("%w: resource name is empty", apperr.ErrModuleResolve)
			rejectModuleError(iso, vmCtx, resolver, err)
			return resolver.GetPromise().Value
		}
		specifier := v8util.V8ToString(args[0])

		attrs, err := attributesArg(vmCtx, args)
		if err != nil {
			wrapped := fmt.Errorf("%w: invalid import attributes for %q: %v", apperr.ErrModuleResolve, specifier, err)
			rejectModuleError(iso, vmCtx, resolver, wrapped)
			return resolver.GetPromise().Value
		}

		assertion, err := ParseAssertionInfo(attrs)
		if err != nil {
			wrapped := fmt.Errorf("invalid import attributes for %q: %w", specifier, err)
			rejectModuleError(iso, vmCtx, resolver, wrapped)
			return resolver.GetPromise().Value
		}

		dep, err := ctx.modules.LoadModuleTree(specifier, ctx.dynamicImportBaseDir, assertion)
		if err != nil {
			rejectModuleError(iso, vmCtx, resolver, err)
			return resolver.GetPromise().Value
		}
		exports, err := ctx.modules.Evaluate(dep)
		if err != nil {
			rejectModuleError(iso, vmCtx, resolver, err)
			return resolver.GetPromise().Value
		}
		resolver.Resolve(exports)
		return resolver.GetPromise().Value
	})

	fn := tmpl.GetFunction(vmCtx)
	return vmCtx.Global().Set("__dynamicImport", fn)
}

// attributesArg reads dynamic import()'s optional second argument —
// an import-attributes object — into a plain Go map. It goes through
// JSON rather than an object handle (Value.AsObject/Object.Get are
// never demonstrated in the retrieved corpus): the same
// JSONStringify-then-unmarshal idiom used throughout this host to read
// a JS value back into Go.
func attributesArg(vmCtx *v8.Context, args []*v8.Value) (map[string]string, error) {
	attrs := map[string]string{}
	if len(args) < 2 || args[1] == nil || args[1].IsUndefined() || args[1].IsNull() {
		return attrs, nil
	}
	if !args[1].IsObject() {
		return attrs, nil
	}
	raw, err := v8.JSONStringify(vmCtx, args[1])
	if err != nil {
		return nil, fmt.Errorf("stringifying import attributes: %w", err)
	}
	var full map[string]any
	if err := json.Unmarshal([]byte(raw), &full); err != nil {
		return nil, fmt.Errorf("parsing import attributes: %w", err)
	}
	for _, key := range []string{"type", "version", "module"} {
		if v, ok := full[key]; ok {
			if s, ok := v.(string); ok {
				attrs[key] = s
			}
		}
	}
	return attrs, nil
}

// SetDynamicImportBaseDir records the directory dynamic import()
// specifiers inside ctx resolve against — normally the directory of
// whichever module is currently executing.
func (c *Context) SetDynamicImportBaseDir(modulePath string) {
	c.dynamicImportBaseDir = filepath.Dir(modulePath)
}

// InitializeImportMeta builds an import.meta-shaped value with url set
// to modulePath's absolute resolved path, mirroring a lazily-invoked
// initialize-import-meta host callback. The bound VM API never
// demonstrates a native import.meta hook or an ObjectTemplate instance
// handle, so this builds the object the same way the rest of the host
// constructs JS values from Go data: a RunScript call wrapping a JSON
// literal.
func InitializeImportMeta(ctx *Context, modulePath string) (*v8.Value, error) {
	encoded, err := json.Marshal(map[string]string{"url": modulePath})
	if err != nil {
		return nil, fmt.Errorf("engine: encoding import.meta: %w", err)
	}
	val, err := ctx.vmContext.RunScript(fmt.Sprintf("JSON.parse(%s)", jsStringLiteral(string(encoded))), "<import-meta>")
	if err != nil {
		return nil, fmt.Errorf("engine: building import.meta: %w", err)
	}
	return val, nil
}

// jsStringLiteral renders s as a double-quoted JS string literal.
func jsStringLiteral(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
