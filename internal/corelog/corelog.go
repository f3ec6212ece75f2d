// Package corelog is the thin logging façade the rest of v8host calls
// into. Nothing here reaches for a structured-logging library — every
// call site logs through the standard library's log.Logger with a
// level prefix, mirroring a LOG_ERROR/LOG_INFO macro split.
package corelog

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

// SetOutput overrides the destination logger, primarily for tests that
// want to assert on emitted messages.
func SetOutput(l *log.Logger) {
	std = l
}

// Error logs an error-level message.
func Error(format string, args ...any) {
	std.Printf("[v8host] error: "+format, args...)
}

// Info logs an informational message.
func Info(format string, args ...any) {
	std.Printf("[v8host] info: "+format, args...)
}

// Debug logs a debug-level message.
func Debug(format string, args ...any) {
	std.Printf("[v8host] debug: "+format, args...)
}
