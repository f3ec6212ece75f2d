// Package apperr holds the typed error sentinels for this host's
// error taxonomy. Call sites wrap these with fmt.Errorf("...: %w", err)
// so callers can still errors.Is/errors.As against the category while
// getting a human-readable message, the same pattern the worker
// engine used for every fallible operation.
package apperr

import "errors"

// Configuration errors: malformed app root, missing well-known
// directory, duplicate module-root registration.
var ErrConfiguration = errors.New("configuration error")

// Filesystem errors: missing file, unreadable/unwritable cache file,
// directory creation failure.
var ErrFilesystem = errors.New("filesystem error")

// Module resolution errors: unresolvable specifier, path escaping the
// module root, an asserted module/path mismatch.
var ErrModuleResolve = errors.New("module resolve error")

// Module load errors: source fetch or compile failure.
var ErrModuleLoad = errors.New("module load error")

// Module type-attribute errors: an import assertion's "type" value is
// outside the supported set. Kept distinct from ErrModuleResolve so
// callers can surface it to script as a TypeError rather than a plain
// Error, mirroring JSContextModules.cc's own exception subclass split.
var ErrModuleTypeAttribute = errors.New("invalid module type attribute")

// Task system errors: a post was attempted after terminate.
var ErrTaskSystemTerminated = errors.New("task system terminated")

// debugAssertions gates InternalInvariantViolation / JobFatal style
// contract violations. In debug builds (the default) a violation
// panics immediately, mirroring the source's DCHECK macros. Flipping
// this to false turns a violation into a silent no-op, matching the
// source's release-build behavior where DCHECKs compile out.
var debugAssertions = true

// SetDebugAssertions toggles whether contract violations panic (true,
// the default) or are silently tolerated (false, release mode).
func SetDebugAssertions(enabled bool) {
	debugAssertions = enabled
}

// Invariant panics with msg if debug assertions are enabled. It
// guards against internal invariant violations: a null isolate where
// one is required, embedder-slot tampering, or a Job delegate
// contract violation (calling ShouldYield again after it returned
// true).
func Invariant(cond bool, msg string) {
	if cond {
		return
	}
	if debugAssertions {
		panic("v8host: invariant violated: " + msg)
	}
}
