package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Abhracodec/osint-recon/config"
	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/data"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	obserrors "github.com/Abhracodec/osint-recon/internal/observability/errors"
	"github.com/Abhracodec/osint-recon/internal/observability/metrics"
	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
)

// Reaper sweep actions, used as log labels and metric tags.
const (
	ReaperActionPurgeRecords = "purge_records"
	ReaperActionRequeue      = "requeue"
	ReaperActionDeadLetter   = "dead_letter"
	ReaperActionPurgeAudit   = "purge_audit"
)

const deadLetterMessage = "lease expired after max attempts"

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Store  core.JobRecordStore // Required
	Queue  core.JobQueue       // Required
	Config config.ReaperConfig // Required: reaper configuration
	Logger *slog.Logger        // Optional: structured logger

	// Optional dependencies
	Metrics        statsd.Sink
	Audit          core.ScanAuditRepository
	AuditRetention time.Duration
	Notifier       core.FailureNotifier
	Now            func() time.Time
}

// ReaperService keeps the store and queue healthy between worker runs.
//
// Each sweep:
// - removes records whose retention deadline passed.
// - hands stalled leases back to the queue, failing jobs that used every attempt.
// - trims audit rows older than the audit retention.
type ReaperService struct {
	store          core.JobRecordStore
	queue          core.JobQueue
	config         config.ReaperConfig
	logger         *slog.Logger
	metrics        statsd.Sink
	audit          core.ScanAuditRepository
	auditRetention time.Duration
	notifier       core.FailureNotifier
	now            func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobRecordStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("JobQueue is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"audit", opts.Audit != nil,
			"audit_retention", opts.AuditRetention,
		)
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &ReaperService{
		store:          opts.Store,
		queue:          opts.Queue,
		config:         opts.Config,
		logger:         logger,
		metrics:        opts.Metrics,
		audit:          opts.Audit,
		auditRetention: opts.AuditRetention,
		notifier:       opts.Notifier,
		now:            now,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return errors.New("reaper interval must be positive")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		s.logCleanupError(err, "initial sweep")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logCleanupError(err, "sweep")
			}
		}
	}
}

// SweepStats reports what one sweep changed.
type SweepStats struct {
	PurgedRecords int64
	Requeued      int64
	DeadLettered  int64
	PurgedAudit   int64
	Queue         model.QueueStats
}

// Sweep runs every cleanup step once. Steps are independent: a failing step
// is reported but does not stop the others.
func (s *ReaperService) Sweep(ctx context.Context) (SweepStats, error) {
	var (
		stats              SweepStats
		errs               []error
		allContextCanceled = true
	)

	steps := []cleanupStep{
		{fn: s.purgeExpiredRecords, label: ReaperActionPurgeRecords, count: &stats.PurgedRecords},
		{fn: s.requeueStalled(&stats), label: ReaperActionRequeue, count: &stats.Requeued},
		{fn: s.purgeAudit, label: ReaperActionPurgeAudit, count: &stats.PurgedAudit},
	}

	for _, step := range steps {
		count, err := step.fn(ctx)
		*step.count = count
		s.emitStepMetric(step.label, count, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
	}
	metrics.EmitReaperSweep(s.metrics, ReaperActionDeadLetter, int(stats.DeadLettered))

	if qs, err := s.queue.Stats(ctx); err == nil {
		stats.Queue = qs
		metrics.EmitQueueDepth(s.metrics, qs)
	} else if !isContextCancellation(err) && s.logger != nil {
		s.logger.WarnContext(ctx, "read queue depth", "error", err)
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled {
			return stats, context.Canceled
		}
		return stats, fmt.Errorf("sweep failed: %w", joined)
	}
	if s.metrics != nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
	}
	return stats, nil
}

type cleanupStep struct {
	fn    func(context.Context) (int64, error)
	label string
	count *int64
}

func (s *ReaperService) purgeExpiredRecords(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "purged expired job records", "count", n)
	}
	return int64(n), nil
}

// requeueStalled returns expired leases to the queue and fails the records of
// entries that were dead-lettered.
func (s *ReaperService) requeueStalled(stats *SweepStats) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		rs, err := s.queue.RequeueExpired(ctx, s.now())
		if err != nil {
			return 0, err
		}
		if rs.Requeued > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "requeued stalled jobs", "count", rs.Requeued)
		}

		var failErrs []error
		for _, id := range rs.DeadLettered {
			ok, err := s.failDeadLettered(ctx, id)
			if err != nil {
				failErrs = append(failErrs, fmt.Errorf("fail %s: %w", id, err))
				continue
			}
			if ok {
				stats.DeadLettered++
			}
		}
		return int64(rs.Requeued), errors.Join(failErrs...)
	}
}

// failDeadLettered settles the record of a dead-lettered entry. A record that
// was never claimed is still pending; it is cancelled when a cancel was already
// requested and failed otherwise.
func (s *ReaperService) failDeadLettered(ctx context.Context, id string) (bool, error) {
	rec, err := s.store.Update(ctx, id, func(r *model.JobRecord) error {
		if r.Status == model.JobStatusPending && r.CancelRequested {
			r.Status = model.JobStatusCancelled
			r.CurrentModule = ""
			return nil
		}
		r.Fail(model.ErrorKindInternal, r.CurrentModule, deadLetterMessage)
		return nil
	})
	switch {
	case errors.Is(err, data.ErrTerminal), errors.Is(err, data.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}

	if rec.Status == model.JobStatusCancelled {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "dead-lettered job cancelled", "job_id", id)
		}
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: string(model.JobStatusCancelled),
			Result:     metrics.ResultCancelled,
		})
		s.recordOutcome(ctx, rec)
		return true, nil
	}

	if s.logger != nil {
		s.logger.WarnContext(ctx, "job failed after repeated stalls", "job_id", id, "attempts", rec.Attempts)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: string(model.JobStatusFailed),
		Result:     metrics.ResultError,
		Kind:       model.ErrorKindInternal,
		Err:        errors.New(deadLetterMessage),
	})
	s.recordOutcome(ctx, rec)
	if s.notifier != nil {
		s.notifier.NotifyJobFailure(ctx, rec)
	}
	return true, nil
}

func (s *ReaperService) recordOutcome(ctx context.Context, rec *model.JobRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordOutcome(ctx, rec); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "record audit outcome", "job_id", rec.ID, "error", err)
	}
}

func (s *ReaperService) purgeAudit(ctx context.Context) (int64, error) {
	if s.audit == nil || s.auditRetention <= 0 {
		return 0, nil
	}
	n, err := s.audit.PurgeBefore(ctx, s.now().Add(-s.auditRetention))
	if err != nil {
		return 0, err
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "purged old audit rows", "count", n, "retention", s.auditRetention)
	}
	return n, nil
}

func (s *ReaperService) emitStepMetric(action string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": action,
		"result":    result,
	}
	if err != nil && !isContextCancellation(err) {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	metrics.EmitReaperSweep(s.metrics, action, int(count))
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
