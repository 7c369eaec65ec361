package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/data"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	apperrors "github.com/Abhracodec/osint-recon/internal/errors"
	"github.com/Abhracodec/osint-recon/internal/observability/metrics"
	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
)

// DefaultWaitPoll is the status polling interval used by Wait when none is given.
const DefaultWaitPoll = 500 * time.Millisecond

const auditTimeout = 5 * time.Second

// OrchestratorOptions groups dependencies for Orchestrator.
type OrchestratorOptions struct {
	Store  core.JobRecordStore // Required
	Queue  core.JobQueue       // Required
	Logger *slog.Logger        // Optional

	// Optional dependencies
	Audit   core.ScanAuditRepository
	Metrics statsd.Sink
	NewID   func() string // defaults to uuid.NewString
}

// Orchestrator is the public face of the engine: it accepts submissions and
// answers status, result and cancellation requests. It never runs modules.
type Orchestrator struct {
	store   core.JobRecordStore
	queue   core.JobQueue
	logger  *slog.Logger
	audit   core.ScanAuditRepository
	metrics statsd.Sink
	newID   func() string
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("JobRecordStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("JobQueue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Orchestrator{
		store:   opts.Store,
		queue:   opts.Queue,
		logger:  logger.With("component", "orchestrator"),
		audit:   opts.Audit,
		metrics: opts.Metrics,
		newID:   newID,
	}, nil
}

// Submit validates req, stores a pending record and enqueues it. The returned
// id is only handed out once both writes succeeded.
func (o *Orchestrator) Submit(ctx context.Context, req model.JobRequest) (string, error) {
	req = req.Clone()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", validationError(err)
	}

	id := o.newID()
	rec, err := o.store.Create(ctx, id, req)
	if err != nil {
		if errors.Is(err, data.ErrDuplicateIdentifier) {
			return "", apperrors.Wrapf(err, apperrors.ErrCodeConflict, "job %s already exists", id)
		}
		return "", storeUnavailable(err)
	}

	if err := o.queue.Enqueue(ctx, id, req); err != nil {
		// Without a queue entry no worker will ever pick the record up.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		if derr := o.store.Delete(dctx, id); derr != nil {
			o.logger.WarnContext(ctx, "delete orphaned job record", "job_id", id, "error", derr)
		}
		cancel()
		o.logger.ErrorContext(ctx, "enqueue job", "job_id", id, "error", err)
		return "", queueUnavailable(err)
	}

	o.logger.InfoContext(ctx, "job submitted",
		"job_id", id,
		"target_type", req.TargetType,
		"modules", len(req.Modules),
		"rate_profile", req.RateProfile,
	)
	metrics.EmitJobLifecycle(o.metrics, metrics.JobMetric{Transition: "submitted", Result: metrics.ResultSuccess})

	if o.audit != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		if err := o.audit.RecordSubmission(actx, rec); err != nil {
			o.logger.WarnContext(ctx, "record audit submission", "job_id", id, "error", err)
		}
		cancel()
	}
	return id, nil
}

// GetStatus returns a snapshot of the job record.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*model.JobRecord, error) {
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err, id)
	}
	return rec, nil
}

// GetResult returns the findings of a completed job.
func (o *Orchestrator) GetResult(ctx context.Context, id string) (*model.JobResult, error) {
	rec, err := o.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.JobStatusCompleted {
		return nil, apperrors.NotReadyf("job %s is %s", id, rec.Status)
	}
	return model.ResultFromRecord(rec), nil
}

// Cancel stops a job. A pending job still in the queue is cancelled at once;
// a running job, or a pending one a worker just claimed, is flagged and the
// worker stops at its next module boundary. It reports false when the job
// had already finished.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (bool, error) {
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return false, storeError(err, id)
	}
	if rec.Status.IsTerminal() {
		return false, nil
	}

	removed := false
	if rec.Status == model.JobStatusPending {
		removed, err = o.queue.Remove(ctx, id)
		if err != nil {
			return false, queueUnavailable(err)
		}
	}

	rec, err = o.store.Update(ctx, id, func(r *model.JobRecord) error {
		if removed && r.Status == model.JobStatusPending {
			r.Status = model.JobStatusCancelled
			return nil
		}
		r.CancelRequested = true
		return nil
	})
	switch {
	case errors.Is(err, data.ErrTerminal):
		return false, nil
	case err != nil:
		return false, storeError(err, id)
	}

	if rec.Status == model.JobStatusCancelled {
		o.logger.InfoContext(ctx, "job cancelled before start", "job_id", id)
		metrics.EmitJobLifecycle(o.metrics, metrics.JobMetric{
			Transition: string(model.JobStatusCancelled),
			Result:     metrics.ResultCancelled,
		})
		if o.audit != nil {
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
			if err := o.audit.RecordOutcome(actx, rec); err != nil {
				o.logger.WarnContext(ctx, "record audit outcome", "job_id", id, "error", err)
			}
			cancel()
		}
		return true, nil
	}
	o.logger.InfoContext(ctx, "job cancellation requested", "job_id", id, "status", rec.Status)
	return true, nil
}

// Wait polls the record until it is terminal or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, id string, poll time.Duration) (*model.JobRecord, error) {
	if poll <= 0 {
		poll = DefaultWaitPoll
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	var last *model.JobRecord
	for {
		rec, err := o.GetStatus(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && last != nil {
				return last, ctxErr
			}
			return nil, err
		}
		if rec.Status.IsTerminal() {
			return rec, nil
		}
		last = rec
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-t.C:
		}
	}
}

// QueueStats reports queue depth and publishes it as gauges.
func (o *Orchestrator) QueueStats(ctx context.Context) (model.QueueStats, error) {
	stats, err := o.queue.Stats(ctx)
	if err != nil {
		return stats, queueUnavailable(err)
	}
	metrics.EmitQueueDepth(o.metrics, stats)
	return stats, nil
}

func validationError(err error) error {
	var fe *model.FieldError
	if errors.As(err, &fe) {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeValidation,
			Message: fe.Error(),
			Field:   fe.Field,
			Cause:   err,
		}
	}
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job request")
}

func storeError(err error, id string) error {
	switch {
	case errors.Is(err, data.ErrNotFound):
		return apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "job %s not found", id)
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request timed out")
	}
	return storeUnavailable(err)
}

func storeUnavailable(err error) error {
	if !errors.Is(err, data.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", data.ErrStoreUnavailable, err)
	}
	return apperrors.Unavailable(err, "job record store unavailable")
}

func queueUnavailable(err error) error {
	if !errors.Is(err, data.ErrQueueUnavailable) {
		err = fmt.Errorf("%w: %w", data.ErrQueueUnavailable, err)
	}
	return apperrors.Unavailable(err, "job queue unavailable")
}
