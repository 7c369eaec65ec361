// Package core declares the ports between the recon job services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture). Services depend on
// these interfaces; the data and adapter layers provide the implementations.

// JobMutator applies one change to a record inside a store's atomic update.
// Returning an error aborts the update and leaves the stored record unchanged.
type JobMutator func(rec *model.JobRecord) error

// JobRecordStore owns every JobRecord mutation.
type JobRecordStore interface {
	// Create stores a new pending record. Fails when id already exists.
	Create(ctx context.Context, id string, req model.JobRequest) (*model.JobRecord, error)
	// Get returns a snapshot of the record. Expired records read as not found.
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	// Update atomically applies mutate and enforces the status state machine.
	Update(ctx context.Context, id string, mutate JobMutator) (*model.JobRecord, error)
	// Delete removes the record; deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
	// PurgeExpired removes records whose retention deadline is before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// EnqueueParams groups parameters for a delayed enqueue.
type EnqueueParams struct {
	ID      string
	Request model.JobRequest
	Delay   time.Duration
	Attempt int
}

// JobQueue is the durable FIFO of accepted jobs with lease-based delivery.
type JobQueue interface {
	Enqueue(ctx context.Context, id string, req model.JobRequest) error
	EnqueueAfter(ctx context.Context, params EnqueueParams) error
	// Dequeue blocks until an entry can be leased or ctx ends.
	Dequeue(ctx context.Context) (*model.Delivery, error)
	// Remove drops an entry that has not been dequeued. It reports false when the
	// entry is leased or absent.
	Remove(ctx context.Context, id string) (bool, error)
	Renew(ctx context.Context, d *model.Delivery) error
	Ack(ctx context.Context, d *model.Delivery) error
	// RequeueExpired returns stalled leases to the pending list until the attempt cap.
	RequeueExpired(ctx context.Context, now time.Time) (model.RequeueStats, error)
	Stats(ctx context.Context) (model.QueueStats, error)
}

// ProgressSink receives incremental progress from a running module.
// Fraction is the share of the module's own work done, in [0,1].
type ProgressSink interface {
	ModuleProgress(ctx context.Context, module string, fraction float64)
}

// ModuleInvocation describes one module call.
type ModuleInvocation struct {
	JobID    string
	Module   string
	Request  model.JobRequest
	Timeout  time.Duration
	Progress ProgressSink
}

// ModuleRunner executes one named module. ctx is the cancellation signal; the
// runner reports cancellation in the result rather than returning an error.
type ModuleRunner interface {
	Run(ctx context.Context, inv ModuleInvocation) model.ModuleResult
}

// ScanAuditRepository keeps a durable trail of consented submissions and their outcomes.
type ScanAuditRepository interface {
	RecordSubmission(ctx context.Context, rec *model.JobRecord) error
	RecordOutcome(ctx context.Context, rec *model.JobRecord) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FailureNotifier alerts operators when a job ends in failure. Implementations
// must not block the caller beyond their own delivery timeout.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, rec *model.JobRecord)
}
