// Package clock provides the monotonic and wall-clock time source used
// throughout the scheduling subsystem. Production code uses the real
// clock; tests inject a Fake so delay and deadline behavior is
// deterministic.
package clock

import (
	"sync"
	"time"
)

// Source is the time source consulted by the task queue, thread pool,
// and foreground runner when computing delay deadlines.
type Source interface {
	// MonotonicSeconds returns a monotonically increasing clock reading
	// in seconds. Only differences between readings are meaningful.
	MonotonicSeconds() float64

	// WallClockMillis returns the current wall-clock time in
	// milliseconds since the Unix epoch.
	WallClockMillis() float64
}

// Real is the production Source backed by the OS clock.
type Real struct{}

var _ Source = Real{}

// monoStart anchors Real's monotonic readings. time.Since measures
// against the monotonic clock reading time.Now() carries, so wall-clock
// adjustments never move the result backwards.
var monoStart = time.Now()

// MonotonicSeconds returns the fractional seconds elapsed since process
// start, measured on the monotonic clock.
func (Real) MonotonicSeconds() float64 {
	return time.Since(monoStart).Seconds()
}

// WallClockMillis returns the current wall-clock time in milliseconds.
func (Real) WallClockMillis() float64 {
	return float64(time.Now().UnixNano()) / 1e6
}

// Fake is a deterministic test double. The monotonic reading only
// advances when Advance is called; it never drifts with real time.
type Fake struct {
	mu    sync.Mutex
	mono  float64
	epoch float64
}

// NewFake creates a Fake clock starting at monotonic time 0 and the
// given wall-clock epoch in milliseconds.
func NewFake(wallEpochMillis float64) *Fake {
	return &Fake{epoch: wallEpochMillis}
}

var _ Source = (*Fake)(nil)

// MonotonicSeconds returns the current fake monotonic reading.
func (f *Fake) MonotonicSeconds() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mono
}

// WallClockMillis returns the fake wall-clock reading, which advances
// in lockstep with the monotonic reading.
func (f *Fake) WallClockMillis() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch + f.mono*1000
}

// Advance moves the fake clock forward by the given number of seconds.
// Negative durations are ignored.
func (f *Fake) Advance(seconds float64) {
	if seconds <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mono += seconds
}
