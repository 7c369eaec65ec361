package data

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Abhracodec/osint-recon/internal/domain/job"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

const (
	// DefaultQueueTopic is the notifier topic workers subscribe to for wakeups.
	DefaultQueueTopic = "scan"
	// DefaultMaxAttempts caps deliveries per job, counting the first.
	DefaultMaxAttempts = 3

	defaultPollInterval = time.Second
)

// QueueOptions configures the queue implementations.
type QueueOptions struct {
	// Lease resolves how long a dequeued entry stays claimed without renewal.
	Lease *job.LeasePolicy
	// MaxAttempts caps how many times a stalled entry is redelivered.
	MaxAttempts int
	// PollInterval bounds how long an idle Dequeue waits before re-checking,
	// which also promotes delayed entries that came due.
	PollInterval time.Duration
	TimeProvider TimeProvider
	Topic        string
}

func (o QueueOptions) normalized() (QueueOptions, error) {
	if o.Lease == nil {
		lp, err := job.NewLeasePolicy(30 * time.Second)
		if err != nil {
			return o, err
		}
		o.Lease = lp
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.Topic == "" {
		o.Topic = DefaultQueueTopic
	}
	o.TimeProvider = timeProviderOrDefault(o.TimeProvider)
	return o, nil
}

func newLeaseToken() string {
	return uuid.NewString()
}

// claimFunc attempts a non-blocking claim and returns model.ErrNoJobsAvailable when idle.
type claimFunc func(ctx context.Context) (*model.Delivery, error)

// waitForDelivery loops claim until it yields a delivery, waking on notifier
// signals or after poll. Subscribing before the first claim means an enqueue
// racing with an empty claim still wakes this caller.
func waitForDelivery(
	ctx context.Context,
	notifier job.Notifier,
	topic string,
	poll time.Duration,
	claim claimFunc,
) (*model.Delivery, error) {
	var wake <-chan struct{}
	if notifier != nil {
		unsub, ch := notifier.Subscribe(topic)
		defer unsub()
		wake = ch
	}

	timer := time.NewTimer(poll)
	defer timer.Stop()

	for {
		d, err := claim(ctx)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(poll)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		case <-timer.C:
		}
	}
}
