// Package jobrunner provides the worker pool that leases recon jobs from the
// queue and drives their modules to a terminal state.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/data"
	"github.com/Abhracodec/osint-recon/internal/domain/job"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	"github.com/Abhracodec/osint-recon/internal/observability/metrics"
	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
)

const (
	defaultJobTimeout    = 30 * time.Minute
	defaultModuleTimeout = 5 * time.Minute
	minModuleTimeout     = time.Second
	dequeueErrorBackoff  = time.Second
	finalizeTimeout      = 10 * time.Second
	// takeoverGrace pads the wait after claiming a record another worker was
	// running, covering renewal round trips of the previous holder.
	takeoverGrace = 500 * time.Millisecond
)

var (
	errLeaseLost = errors.New("lease lost")
	errSkip      = errors.New("skip delivery")
)

// RunnerOptions configures the worker pool.
type RunnerOptions struct {
	Store   core.JobRecordStore
	Queue   core.JobQueue
	Modules core.ModuleRunner
	Logger  *slog.Logger

	Concurrency   int           // worker goroutines; defaults to 1
	JobTimeout    time.Duration // wall-clock budget per attempt; defaults to 30m
	ModuleTimeout time.Duration // ceiling per module; defaults to 5m
	MaxAttempts   int           // attempts before a crashing job fails; defaults to 3
	Lease         *job.LeasePolicy
	Backoff       job.Backoff

	// Optional dependencies
	Metrics  statsd.Sink
	Audit    core.ScanAuditRepository
	Notifier core.FailureNotifier
}

// Runner pulls deliveries and executes them. Each worker processes one job at
// a time; Concurrency bounds how many run in parallel.
type Runner struct {
	store   core.JobRecordStore
	queue   core.JobQueue
	modules core.ModuleRunner
	logger  *slog.Logger

	workers       int
	jobTimeout    time.Duration
	moduleTimeout time.Duration
	maxAttempts   int
	leaseTTL      time.Duration
	heartbeat     time.Duration
	backoff       job.Backoff

	metrics  statsd.Sink
	audit    core.ScanAuditRepository
	notifier core.FailureNotifier
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil || opts.Queue == nil || opts.Modules == nil {
		return nil, errors.New("store, queue and module runner are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease == nil {
		lp, err := job.NewLeasePolicy(30 * time.Second)
		if err != nil {
			return nil, err
		}
		lease = lp
	}
	r := &Runner{
		store:         opts.Store,
		queue:         opts.Queue,
		modules:       opts.Modules,
		logger:        logger.With("component", "job_runner"),
		workers:       max(opts.Concurrency, 1),
		jobTimeout:    opts.JobTimeout,
		moduleTimeout: opts.ModuleTimeout,
		maxAttempts:   opts.MaxAttempts,
		leaseTTL:      lease.Default(),
		heartbeat:     lease.HeartbeatInterval(),
		backoff:       opts.Backoff,
		metrics:       opts.Metrics,
		audit:         opts.Audit,
		notifier:      opts.Notifier,
	}
	if r.jobTimeout <= 0 {
		r.jobTimeout = defaultJobTimeout
	}
	if r.moduleTimeout <= 0 {
		r.moduleTimeout = defaultModuleTimeout
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = data.DefaultMaxAttempts
	}
	if r.backoff.Base <= 0 {
		r.backoff = job.DefaultBackoff
	}
	return r, nil
}

// Run starts the workers and blocks until ctx is cancelled and every in-flight
// attempt has stopped. Jobs interrupted by shutdown keep their lease until it
// expires and the reaper hands them to another worker.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner",
		"workers", r.workers, "job_timeout", r.jobTimeout, "heartbeat", r.heartbeat)

	g, gctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		g.Go(func() error {
			return r.workerLoop(gctx, i)
		})
	}
	err := g.Wait()
	r.logger.InfoContext(context.WithoutCancel(ctx), "job runner stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, worker int) error {
	log := r.logger.With("worker", worker)
	for ctx.Err() == nil {
		d, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.ErrorContext(ctx, "dequeue failed", "error", err)
			if !sleepCtx(ctx, dequeueErrorBackoff) {
				return ctx.Err()
			}
			continue
		}
		r.processDelivery(ctx, d)
	}
	return ctx.Err()
}

// attempt carries the state of one delivery while it executes.
type attempt struct {
	d     *model.Delivery
	rec   *model.JobRecord
	log   *slog.Logger
	start time.Time
	// fence cancels the attempt once its lease token no longer owns the record.
	fence context.CancelCauseFunc
}

func (r *Runner) processDelivery(ctx context.Context, d *model.Delivery) {
	a := &attempt{d: d, log: r.logger.With("job_id", d.ID, "attempt", d.Attempt), start: time.Now()}

	var takeover bool
	rec, err := r.store.Update(ctx, d.ID, func(rec *model.JobRecord) error {
		if rec.Status == model.JobStatusPending && rec.CancelRequested {
			rec.Status = model.JobStatusCancelled
			return nil
		}
		takeover = rec.Status == model.JobStatusRunning &&
			rec.LeaseToken != "" && rec.LeaseToken != d.LeaseToken
		rec.Status = model.JobStatusRunning
		rec.LeaseToken = d.LeaseToken
		rec.Attempts++
		rec.CurrentModule = ""
		rec.Error = nil
		return nil
	})
	switch {
	case errors.Is(err, data.ErrTerminal), errors.Is(err, data.ErrNotFound):
		a.log.InfoContext(ctx, "skipping delivery for finished or expired job", "reason", err)
		r.ack(ctx, a)
		return
	case err != nil:
		// Leave the lease to expire so the reaper redelivers once the store recovers.
		a.log.ErrorContext(ctx, "mark job running", "error", err)
		return
	}
	a.rec = rec
	if rec.Status == model.JobStatusCancelled {
		r.finish(ctx, a, nil)
		return
	}
	a.log.InfoContext(ctx, "job started", "target_type", rec.Request.TargetType, "modules", rec.TotalModules)

	leaseCtx, cancelLease := context.WithCancelCause(ctx)
	defer cancelLease(nil)
	a.fence = cancelLease
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeatLoop(leaseCtx, cancelLease, a)
	}()

	crash := r.awaitPreviousHolder(leaseCtx, a, takeover)
	if crash == nil {
		crash = r.execute(leaseCtx, a)
	}

	cancelLease(nil)
	<-hbDone

	switch {
	case errors.Is(context.Cause(leaseCtx), errLeaseLost):
		a.log.WarnContext(ctx, "lease lost; abandoning attempt without further writes")
		return
	case crash == nil && a.rec.Status.IsTerminal():
		r.finish(ctx, a, nil)
	case ctx.Err() != nil:
		// Shutdown mid-job; the record stays running and the lease lapses.
		a.log.InfoContext(context.WithoutCancel(ctx), "attempt interrupted by shutdown")
	default:
		r.handleCrash(ctx, a, crash)
	}
}

// heartbeatLoop renews the lease until ctx ends. The attempt is cancelled when
// the queue reports the lease gone, or when renewals keep failing past the
// point where the lease must have lapsed and another worker may hold it.
func (r *Runner) heartbeatLoop(ctx context.Context, cancel context.CancelCauseFunc, a *attempt) {
	t := time.NewTicker(r.heartbeat)
	defer t.Stop()
	deadline := a.start.Add(r.leaseTTL)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			renewedAt := time.Now()
			err := r.queue.Renew(ctx, a.d)
			switch {
			case err == nil:
				deadline = renewedAt.Add(r.leaseTTL)
			case errors.Is(err, data.ErrLeaseLost):
				cancel(errLeaseLost)
				return
			case ctx.Err() != nil:
				return
			case !time.Now().Before(deadline):
				a.log.WarnContext(ctx, "lease lapsed while renewals failed", "error", err)
				cancel(errLeaseLost)
				return
			default:
				a.log.WarnContext(ctx, "lease renewal failed", "error", err)
			}
		}
	}
}

// awaitPreviousHolder delays a takeover of a record that another worker was
// running until that worker's heartbeat has had a chance to observe the lost
// lease and stop its modules. Its record writes are already fenced off.
func (r *Runner) awaitPreviousHolder(ctx context.Context, a *attempt, takeover bool) error {
	if !takeover {
		return nil
	}
	wait := r.heartbeat + takeoverGrace
	a.log.WarnContext(ctx, "taking over job from a lapsed lease", "wait", wait)
	if !sleepCtx(ctx, wait) {
		return ctx.Err()
	}
	return nil
}

// update applies mutate only while the record still belongs to this attempt's
// lease. A foreign token means another worker claimed the job: the write is
// rejected with data.ErrLeaseLost and the attempt is cancelled.
func (r *Runner) update(ctx context.Context, a *attempt, mutate core.JobMutator) (*model.JobRecord, error) {
	rec, err := r.update(ctx, a, func(rec *model.JobRecord) error {
		if rec.LeaseToken != a.d.LeaseToken {
			return data.ErrLeaseLost
		}
		return mutate(rec)
	})
	if errors.Is(err, data.ErrLeaseLost) && a.fence != nil {
		a.fence(errLeaseLost)
	}
	return rec, err
}

// execute runs the remaining modules of a.rec. It returns a non-nil error when
// the attempt crashed and should go through the retry policy; on a nil return
// a.rec holds the terminal record, unless ctx ended first.
func (r *Runner) execute(ctx context.Context, a *attempt) (crash error) {
	defer func() {
		if p := recover(); p != nil {
			a.log.ErrorContext(ctx, "worker panic", "panic", p, "stack", string(debug.Stack()))
			crash = fmt.Errorf("worker panic: %v", p)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	req := a.rec.Request
	total := len(req.Modules)
	perModule := r.perModuleTimeout(total)

	for _, name := range req.Modules {
		if slices.Contains(a.rec.CompletedModules, name) {
			// already ran in an earlier attempt of this lease chain
			continue
		}

		rec, err := r.update(ctx, a, func(rec *model.JobRecord) error {
			if rec.CancelRequested {
				rec.Status = model.JobStatusCancelled
				return nil
			}
			rec.Progress = model.ProgressFor(len(rec.CompletedModules), total)
			rec.CurrentModule = name
			return nil
		})
		if err != nil {
			return fmt.Errorf("record progress: %w", err)
		}
		a.rec = rec
		if rec.Status == model.JobStatusCancelled {
			a.log.InfoContext(ctx, "job cancelled", "before_module", name)
			return nil
		}

		res := r.modules.Run(jobCtx, core.ModuleInvocation{
			JobID:    a.d.ID,
			Module:   name,
			Request:  req,
			Timeout:  perModule,
			Progress: &progressSink{runner: r, attempt: a, done: len(rec.CompletedModules), total: total},
		})

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if jobCtx.Err() != nil {
			return r.failTimeout(ctx, a, name)
		}
		if res.Crashed {
			return fmt.Errorf("module %s crashed: %s", name, res.ErrorMessage)
		}

		entry := res.Entry()
		rec, err = r.update(ctx, a, func(rec *model.JobRecord) error {
			rec.Findings = append(rec.Findings, entry)
			rec.CompletedModules = append(rec.CompletedModules, name)
			rec.Progress = model.ProgressFor(len(rec.CompletedModules), total)
			rec.CurrentModule = ""
			if res.Blocking && !res.Succeeded {
				rec.Fail(res.ErrorKind, name, res.ErrorMessage)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("record module result: %w", err)
		}
		a.rec = rec
		if !res.Succeeded {
			a.log.WarnContext(ctx, "module failed", "module", name, "kind", res.ErrorKind,
				"blocking", res.Blocking, "error", res.ErrorMessage)
		}
		if rec.Status == model.JobStatusFailed {
			return nil
		}
	}

	rec, err := r.update(ctx, a, func(rec *model.JobRecord) error {
		if rec.CancelRequested {
			rec.Status = model.JobStatusCancelled
			return nil
		}
		summary := model.Summarize(rec.Findings)
		rec.Summary = &summary
		rec.Progress = 100
		rec.Status = model.JobStatusCompleted
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	a.rec = rec
	return nil
}

func (r *Runner) failTimeout(ctx context.Context, a *attempt, module string) error {
	msg := fmt.Sprintf("job exceeded timeout of %s", r.jobTimeout)
	rec, err := r.update(ctx, a, func(rec *model.JobRecord) error {
		rec.Fail(model.ErrorKindTimeout, module, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record timeout: %w", err)
	}
	a.rec = rec
	return nil
}

// perModuleTimeout splits the job budget across modules, bounded by the module ceiling.
func (r *Runner) perModuleTimeout(total int) time.Duration {
	if total <= 0 {
		return r.moduleTimeout
	}
	share := max(r.jobTimeout/time.Duration(total), minModuleTimeout)
	return min(share, r.moduleTimeout)
}

// handleCrash applies the retry policy: re-arm and re-enqueue with backoff
// while attempts remain, otherwise fail the job.
func (r *Runner) handleCrash(ctx context.Context, a *attempt, crash error) {
	a.log.ErrorContext(ctx, "attempt crashed", "error", crash, "attempts", a.rec.Attempts)

	if a.rec.Attempts < r.maxAttempts {
		rec, err := r.update(ctx, a, func(rec *model.JobRecord) error {
			rec.ResetForRetry()
			return nil
		})
		if err != nil {
			a.log.ErrorContext(ctx, "re-arm job for retry", "error", err)
			return
		}
		delay := r.backoff.Delay(rec.Attempts)
		if err := r.queue.EnqueueAfter(ctx, core.EnqueueParams{
			ID: a.d.ID, Request: rec.Request, Delay: delay, Attempt: a.d.Attempt,
		}); err != nil && !errors.Is(err, data.ErrDuplicateIdentifier) {
			a.log.ErrorContext(ctx, "re-enqueue job for retry", "error", err)
			return
		}
		a.log.InfoContext(ctx, "job scheduled for retry", "delay", delay)
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition: "retry",
			Result:     metrics.ResultRetry,
			Duration:   time.Since(a.start),
			Err:        crash,
		})
		r.ack(ctx, a)
		return
	}

	rec, err := r.update(ctx, a, func(rec *model.JobRecord) error {
		rec.Fail(model.ErrorKindInternal, rec.CurrentModule,
			fmt.Sprintf("gave up after %d attempts: %v", rec.Attempts, crash))
		return nil
	})
	if err != nil {
		a.log.ErrorContext(ctx, "fail crashed job", "error", err)
		return
	}
	a.rec = rec
	r.finish(ctx, a, crash)
}

// finish emits the terminal outcome and releases the lease.
func (r *Runner) finish(ctx context.Context, a *attempt, cause error) {
	rec := a.rec
	result := metrics.ResultSuccess
	switch rec.Status {
	case model.JobStatusFailed:
		result = metrics.ResultError
	case model.JobStatusCancelled:
		result = metrics.ResultCancelled
	}
	jm := metrics.JobMetric{
		Transition: string(rec.Status),
		Result:     result,
		Duration:   time.Since(a.start),
		Err:        cause,
	}
	if rec.Error != nil {
		jm.Kind = rec.Error.Kind
		if jm.Err == nil {
			jm.Err = errors.New(rec.Error.Message)
		}
	}
	metrics.EmitJobLifecycle(r.metrics, jm)

	a.log.InfoContext(ctx, "job finished", "status", rec.Status, "progress", rec.Progress,
		"duration_ms", time.Since(a.start).Milliseconds())

	if r.audit != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		if err := r.audit.RecordOutcome(actx, rec); err != nil {
			a.log.WarnContext(ctx, "record audit outcome", "error", err)
		}
		cancel()
	}
	r.ack(ctx, a)

	if r.notifier != nil && rec.Status == model.JobStatusFailed {
		r.notifier.NotifyJobFailure(context.WithoutCancel(ctx), rec)
	}
}

func (r *Runner) ack(ctx context.Context, a *attempt) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := r.queue.Ack(actx, a.d); err != nil {
		a.log.WarnContext(ctx, "ack delivery", "error", err)
	}
}

// progressSink turns module-level progress into record progress.
type progressSink struct {
	runner  *Runner
	attempt *attempt
	done    int
	total   int
}

func (p *progressSink) ModuleProgress(ctx context.Context, module string, fraction float64) {
	if ctx.Err() != nil || p.total <= 0 {
		return
	}
	pct := int(math.Round((float64(p.done) + fraction) / float64(p.total) * 100))
	_, err := p.runner.update(ctx, p.attempt, func(rec *model.JobRecord) error {
		if rec.Status != model.JobStatusRunning {
			return errSkip
		}
		rec.Progress = min(pct, 100)
		return nil
	})
	if err != nil && !errors.Is(err, errSkip) {
		p.attempt.log.DebugContext(ctx, "module progress update", "module", module, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
