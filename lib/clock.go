package lib

import (
	"sync"
	"time"
)

// Clock is the authoritative time source of the chain, read exactly once per transition
type Clock interface {
	Now() time.Time
}

// SystemClock delegates calls to the time package
type SystemClock struct{}

// NewSystemClock() returns a clock backed by the time package
func NewSystemClock() *SystemClock { return &SystemClock{} }

// Now() returns the current time truncated to milliseconds, the resolution of the round schedule
func (SystemClock) Now() time.Time { return TruncateTime(time.Now()) }

// ManualClock is a clock that only moves when told to, used in tests
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock() returns a manual clock set to n
func NewManualClock(n time.Time) *ManualClock { return &ManualClock{now: TruncateTime(n)} }

// Now() returns the current value of the clock
func (mc *ManualClock) Now() time.Time {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.now
}

// Set() sets the current time of the clock
func (mc *ManualClock) Set(t time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.now = TruncateTime(t)
}

// Advance() moves the clock forward by d
func (mc *ManualClock) Advance(d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.now = TruncateTime(mc.now.Add(d))
}

// TruncateTime() normalizes a time to UTC milliseconds so it survives a JSON round trip unchanged
func TruncateTime(t time.Time) time.Time { return time.UnixMilli(t.UnixMilli()).UTC() }
