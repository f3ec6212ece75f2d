package engine

import (
	"encoding/json"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// transformModuleBody transpiles ECMAScript module source into a
// CommonJS-shaped body (module/exports/require) so it can execute as
// a classic script through RunScript, the only JS-execution surface
// the bound VM exposes (see runtime.go and DESIGN.md). This mirrors
// the worker engine's own WrapESModule bundling step, adapted from
// IIFE-whole-script bundling to a per-module CommonJS transform so
// each module keeps its own exports object instead of one global
// default export.
func transformModuleBody(source, resourceName string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Format:     api.FormatCommonJS,
		Target:     api.ESNext,
		Sourcefile: resourceName,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("engine: transpiling %s: %s", resourceName, result.Errors[0].Text)
	}
	return string(result.Code), nil
}

// wrapModuleSource wraps a CommonJS-transpiled body in an
// immediately-invoked function that stashes the resulting exports
// object on globalThis under stashVar, the same global-bridge idiom
// the rest of the host uses to move values between Go and the
// isolate instead of reaching for object/function handle APIs the
// bound VM never demonstrates. dir is baked in as a string literal so
// require() calls inside body resolve relative to the module's own
// directory without the host having to pass it on every call.
func wrapModuleSource(body, dir, stashVar string) string {
	dirJSON, _ := json.Marshal(dir)
	stashJSON, _ := json.Marshal(stashVar)
	return fmt.Sprintf(`(function() {
  var module = { exports: {} };
  var exports = module.exports;
  function require(specifier) { return globalThis.__requireModule(specifier, %s); }
%s
  globalThis[%s] = module.exports;
})();`, string(dirJSON), body, string(stashJSON))
}
