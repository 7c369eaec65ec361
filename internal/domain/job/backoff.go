package job

import "time"

// Backoff computes the delay before a retry attempt: Base doubled for every
// attempt already made, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff starts at two seconds and caps at one minute.
var DefaultBackoff = Backoff{Base: 2 * time.Second, Max: time.Minute}

// Delay returns the wait before the next attempt given how many attempts ran.
func (b Backoff) Delay(attempts int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	maxDelay := b.Max
	if maxDelay < base {
		maxDelay = base
	}
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}
