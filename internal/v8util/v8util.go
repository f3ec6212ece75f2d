// Package v8util holds scalar conversion helpers for moving values
// between Go and the isolate, adapted from the worker engine's
// jsToGoArg/goToJSValue helpers.
package v8util

import (
	"fmt"

	v8 "github.com/tommie/v8go"
)

// StringToV8 converts a Go string to a V8 string value, mirroring the
// original JSUtilities::StringToV8 helper.
func StringToV8(iso *v8.Isolate, s string) (*v8.Value, error) {
	val, err := v8.NewValue(iso, s)
	if err != nil {
		return nil, fmt.Errorf("v8util: converting string to V8 value: %w", err)
	}
	return val, nil
}

// V8ToString converts a V8 value back to a Go string, mirroring the
// original JSUtilities::V8ToString helper. A nil value converts to "".
func V8ToString(val *v8.Value) string {
	if val == nil {
		return ""
	}
	return val.String()
}
