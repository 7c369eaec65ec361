package job

import (
	"errors"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

const (
	// MinLease is the shortest lease a queue will grant.
	MinLease = 5 * time.Second
	// MaxLease is the longest lease a queue will grant.
	MaxLease = 10 * time.Minute

	minHeartbeat = time.Second
)

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit indicates the caller supplied a duration within bounds.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault indicates the default duration was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped indicates the requested duration was clamped into [MinLease, MaxLease].
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy normalises lease durations for queue claims and heartbeats.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
// The default itself is clamped into the supported range.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	ttl, _ := clampLease(defaultLease)
	return &LeasePolicy{defaultLease: ttl}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// HeartbeatInterval is how often a worker renews its lease: a third of the
// lease so two renewals can be missed before the lease lapses.
func (p *LeasePolicy) HeartbeatInterval() time.Duration {
	iv := p.Default() / 3
	if iv < minHeartbeat {
		return minHeartbeat
	}
	return iv
}

// LeaseDecision captures the outcome of resolving a lease request.
type LeaseDecision struct {
	TTL       time.Duration
	Source    LeaseSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool {
	return d.Source == LeaseSourceDefault
}

// Clamped reports whether the requested value was clamped.
func (d LeaseDecision) Clamped() bool {
	return d.Source == LeaseSourceClamped
}

// Resolve normalises a requested lease. Zero selects the default.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	decision := LeaseDecision{Requested: request}
	switch {
	case p == nil:
		decision.Source = LeaseSourceDefault
	case request == 0:
		decision.TTL = p.defaultLease
		decision.Source = LeaseSourceDefault
	default:
		ttl, clamped := clampLease(request)
		decision.TTL = ttl
		decision.Source = LeaseSourceExplicit
		if clamped {
			decision.Source = LeaseSourceClamped
		}
	}
	return decision
}

func clampLease(d time.Duration) (time.Duration, bool) {
	switch {
	case d < MinLease:
		return MinLease, true
	case d > MaxLease:
		return MaxLease, true
	}
	return d, false
}
