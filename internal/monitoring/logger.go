// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Throttle logs each key at most once per interval and counts what it
// suppressed. The tick loop uses it for faults that repeat every tick, such
// as an unplugged camera.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	last       map[string]time.Time
	suppressed map[string]int
}

// NewThrottle returns a Throttle with the given interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval:   interval,
		now:        time.Now,
		last:       make(map[string]time.Time),
		suppressed: make(map[string]int),
	}
}

// Logf logs through the package logger unless key was logged within the
// interval. The first line after a quiet period notes how many were skipped.
func (t *Throttle) Logf(key, format string, v ...interface{}) {
	t.mu.Lock()
	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		t.suppressed[key]++
		t.mu.Unlock()
		return
	}
	skipped := t.suppressed[key]
	t.last[key] = now
	t.suppressed[key] = 0
	t.mu.Unlock()

	if skipped > 0 {
		format += " (%d similar suppressed)"
		v = append(v, skipped)
	}
	Logf(format, v...)
}
