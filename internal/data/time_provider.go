package data

import (
	"sync"
	"time"
)

// TimeProvider is the clock the stores and queues stamp records and leases with.
type TimeProvider interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedTimeProvider is a manually advanced clock for tests that exercise
// visibility timeouts and retention.
type FixedTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedTimeProvider starts the clock at t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{now: t}
}

func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *FixedTimeProvider) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func timeProviderOrDefault(tp TimeProvider) TimeProvider {
	if tp == nil {
		return SystemClock{}
	}
	return tp
}
