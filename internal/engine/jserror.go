package engine

import (
	"errors"
	"fmt"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/v8host/internal/apperr"
	"github.com/cryguy/v8host/internal/v8util"
)

// jsErrorKind names the JS exception constructor appropriate for err:
// TypeError for a malformed import-attribute type value, Error for
// every other module-loading failure, mirroring the exception
// subclass split JSContextModules.cc raises for the same cases.
func jsErrorKind(err error) string {
	if errors.Is(err, apperr.ErrModuleTypeAttribute) {
		return "TypeError"
	}
	return "Error"
}

// buildModuleError constructs a JS exception value of err's kind (see
// jsErrorKind), via the same RunScript-a-literal idiom used everywhere
// else in this host to hand the isolate a value built from Go data.
// Falling back to a plain string value keeps a construction failure
// from masking the original error.
func buildModuleError(iso *v8.Isolate, vmCtx *v8.Context, err error) *v8.Value {
	script := fmt.Sprintf("new %s(%s)", jsErrorKind(err), jsStringLiteral(err.Error()))
	val, buildErr := vmCtx.RunScript(script, "<module-error>")
	if buildErr != nil {
		val, _ = v8util.StringToV8(iso, err.Error())
	}
	return val
}

// throwModuleError throws err into iso as the appropriate exception
// subclass.
func throwModuleError(iso *v8.Isolate, vmCtx *v8.Context, err error) {
	iso.ThrowException(buildModuleError(iso, vmCtx, err))
}

// rejectModuleError rejects resolver with err as the appropriate
// exception subclass.
func rejectModuleError(iso *v8.Isolate, vmCtx *v8.Context, resolver *v8.PromiseResolver, err error) {
	resolver.Reject(buildModuleError(iso, vmCtx, err))
}
