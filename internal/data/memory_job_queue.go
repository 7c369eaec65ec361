package data

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/domain/job"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

type memLease struct {
	entry     model.QueueEntry
	token     string
	expiresAt time.Time
}

// MemoryJobQueue is an in-process JobQueue with the same lease semantics as
// the Redis queue. Enqueues wake blocked Dequeue callers through a notifier.
type MemoryJobQueue struct {
	opts QueueOptions

	mu      sync.Mutex
	pending []model.QueueEntry
	delayed []model.QueueEntry
	leases  map[string]*memLease

	waiter   *job.LocalWaiter
	notifier *job.DefaultNotifier
}

// NewMemoryJobQueue constructs an in-memory queue.
func NewMemoryJobQueue(opts QueueOptions) (*MemoryJobQueue, error) {
	o, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	waiter := job.NewLocalWaiter()
	notifier, err := job.NewNotifier(job.NotifierOptions{Waiter: waiter, WaitWindow: o.PollInterval})
	if err != nil {
		return nil, err
	}
	return &MemoryJobQueue{
		opts:     o,
		leases:   make(map[string]*memLease),
		waiter:   waiter,
		notifier: notifier,
	}, nil
}

// Close stops notifier listeners.
func (q *MemoryJobQueue) Close() {
	q.notifier.StopAll()
}

// Enqueue appends a fresh entry to the tail of the pending list.
func (q *MemoryJobQueue) Enqueue(ctx context.Context, id string, req model.JobRequest) error {
	return q.EnqueueAfter(ctx, core.EnqueueParams{ID: id, Request: req})
}

// EnqueueAfter schedules an entry that becomes deliverable after Delay.
func (q *MemoryJobQueue) EnqueueAfter(ctx context.Context, p core.EnqueueParams) error {
	if p.ID == "" {
		return ErrIDRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := q.opts.TimeProvider.Now()

	q.mu.Lock()
	if q.queuedLocked(p.ID) {
		q.mu.Unlock()
		return ErrDuplicateIdentifier
	}
	entry := model.QueueEntry{
		ID:          p.ID,
		Request:     p.Request.Clone(),
		Attempt:     p.Attempt,
		EnqueuedAt:  now,
		AvailableAt: now.Add(p.Delay),
	}
	if p.Delay > 0 {
		q.delayed = append(q.delayed, entry)
		sort.SliceStable(q.delayed, func(i, j int) bool {
			return q.delayed[i].AvailableAt.Before(q.delayed[j].AvailableAt)
		})
	} else {
		q.pending = append(q.pending, entry)
	}
	q.mu.Unlock()

	q.waiter.Signal(q.opts.Topic)
	return nil
}

func (q *MemoryJobQueue) queuedLocked(id string) bool {
	for i := range q.pending {
		if q.pending[i].ID == id {
			return true
		}
	}
	for i := range q.delayed {
		if q.delayed[i].ID == id {
			return true
		}
	}
	return false
}

// Dequeue blocks until an entry is leased or ctx ends.
func (q *MemoryJobQueue) Dequeue(ctx context.Context) (*model.Delivery, error) {
	return waitForDelivery(ctx, q.notifier, q.opts.Topic, q.opts.PollInterval, q.tryClaim)
}

func (q *MemoryJobQueue) tryClaim(ctx context.Context) (*model.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := q.opts.TimeProvider.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteDueLocked(now)
	if len(q.pending) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	entry := q.pending[0]
	q.pending = q.pending[1:]
	entry.Attempt++

	lease := &memLease{
		entry:     entry,
		token:     newLeaseToken(),
		expiresAt: now.Add(q.opts.Lease.Default()),
	}
	q.leases[entry.ID] = lease
	return &model.Delivery{
		ID:             entry.ID,
		Request:        entry.Request.Clone(),
		Attempt:        entry.Attempt,
		LeaseToken:     lease.token,
		LeaseExpiresAt: lease.expiresAt,
	}, nil
}

func (q *MemoryJobQueue) promoteDueLocked(now time.Time) {
	n := 0
	for n < len(q.delayed) && !q.delayed[n].AvailableAt.After(now) {
		n++
	}
	if n == 0 {
		return
	}
	q.pending = append(q.pending, q.delayed[:n]...)
	q.delayed = append([]model.QueueEntry(nil), q.delayed[n:]...)
}

// Remove drops a pending or delayed entry. Leased or unknown ids report false.
func (q *MemoryJobQueue) Remove(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.pending {
		if q.pending[i].ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true, nil
		}
	}
	for i := range q.delayed {
		if q.delayed[i].ID == id {
			q.delayed = append(q.delayed[:i], q.delayed[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Renew extends the lease held by d.
func (q *MemoryJobQueue) Renew(ctx context.Context, d *model.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := q.opts.TimeProvider.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	lease, ok := q.leases[d.ID]
	if !ok || lease.token != d.LeaseToken {
		return ErrLeaseLost
	}
	lease.expiresAt = now.Add(q.opts.Lease.Default())
	d.LeaseExpiresAt = lease.expiresAt
	return nil
}

// Ack releases the lease held by d.
func (q *MemoryJobQueue) Ack(ctx context.Context, d *model.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	lease, ok := q.leases[d.ID]
	if !ok || lease.token != d.LeaseToken {
		return ErrLeaseLost
	}
	delete(q.leases, d.ID)
	return nil
}

// RequeueExpired returns stalled leases to the head of the pending list, or
// dead-letters them once they used every attempt.
func (q *MemoryJobQueue) RequeueExpired(ctx context.Context, now time.Time) (model.RequeueStats, error) {
	var stats model.RequeueStats
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	q.mu.Lock()
	var requeue []model.QueueEntry
	for id, lease := range q.leases {
		if lease.expiresAt.After(now) {
			continue
		}
		delete(q.leases, id)
		switch {
		case q.queuedLocked(id):
			// already re-enqueued by the retry path before the worker stalled
		case lease.entry.Attempt >= q.opts.MaxAttempts:
			stats.DeadLettered = append(stats.DeadLettered, id)
		default:
			requeue = append(requeue, lease.entry)
		}
	}
	sort.Slice(requeue, func(i, j int) bool { return requeue[i].EnqueuedAt.Before(requeue[j].EnqueuedAt) })
	q.pending = append(requeue, q.pending...)
	stats.Requeued = len(requeue)
	sort.Strings(stats.DeadLettered)
	q.mu.Unlock()

	if stats.Requeued > 0 {
		q.waiter.Signal(q.opts.Topic)
	}
	return stats, nil
}

// Stats reports queue depth.
func (q *MemoryJobQueue) Stats(ctx context.Context) (model.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return model.QueueStats{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return model.QueueStats{Pending: len(q.pending), Delayed: len(q.delayed), Leased: len(q.leases)}, nil
}

var _ core.JobQueue = (*MemoryJobQueue)(nil)
