package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	"github.com/Abhracodec/osint-recon/internal/observability/metrics"
	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
)

// DefaultModuleTimeout applies when an invocation carries no timeout.
const DefaultModuleTimeout = 5 * time.Minute

// RunnerOptions configures Runner.
type RunnerOptions struct {
	Registry       *Registry
	Logger         *slog.Logger
	DefaultTimeout time.Duration
	Metrics        statsd.Sink
	// Now is used for finding timestamps; defaults to time.Now.
	Now func() time.Time
}

// Runner executes registered modules with a hard timeout, recovering panics
// into crashed results. It never returns an error; every outcome is a ModuleResult.
type Runner struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
	metrics  statsd.Sink
	now      func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Registry == nil {
		return nil, errors.New("module registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultModuleTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		registry: opts.Registry,
		logger:   logger.With("component", "module_runner"),
		timeout:  timeout,
		metrics:  opts.Metrics,
		now:      now,
	}, nil
}

type execOutcome struct {
	findings []model.Finding
	err      error
	panicked any
}

// Run executes inv.Module against inv.Request.
func (r *Runner) Run(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult {
	start := time.Now()
	res := r.run(ctx, inv)
	metrics.EmitModuleRun(r.metrics, metrics.ModuleMetric{
		Module:   inv.Module,
		Result:   moduleResultLabel(res),
		Kind:     string(res.ErrorKind),
		Duration: time.Since(start),
	})
	return res
}

func (r *Runner) run(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult {
	res := model.ModuleResult{ModuleName: inv.Module}

	mod, ok := r.registry.Lookup(inv.Module)
	if !ok {
		return failed(res, model.ErrorKindModule, fmt.Sprintf("unknown module %q", inv.Module))
	}
	res.Blocking = mod.Blocking()
	if mod.Active() && !inv.Request.EnableActiveModules {
		return failed(res, model.ErrorKindModule, "active modules disabled")
	}
	if err := ctx.Err(); err != nil {
		return interrupted(res, err)
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	mctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	progress := func(fraction float64) {
		if inv.Progress == nil {
			return
		}
		inv.Progress.ModuleProgress(ctx, inv.Module, clampFraction(fraction))
	}

	done := make(chan execOutcome, 1)
	go func() {
		var out execOutcome
		defer func() {
			if p := recover(); p != nil {
				out.panicked = p
			}
			done <- out
		}()
		out.findings, out.err = mod.Execute(mctx, inv.Request.Clone(), progress)
	}()

	var out execOutcome
	select {
	case out = <-done:
	case <-mctx.Done():
		// A module ignoring its context is abandoned; its goroutine drains into the buffered channel.
		out = execOutcome{err: mctx.Err()}
	}

	switch {
	case out.panicked != nil:
		r.logger.ErrorContext(ctx, "module panicked", "job_id", inv.JobID, "module", inv.Module, "panic", out.panicked)
		res.Crashed = true
		return failed(res, model.ErrorKindInternal, fmt.Sprintf("module panicked: %v", out.panicked))
	case ctx.Err() != nil:
		return interrupted(res, ctx.Err())
	case errors.Is(out.err, context.DeadlineExceeded) && mctx.Err() != nil:
		return failed(res, model.ErrorKindTimeout, fmt.Sprintf("module timed out after %s", timeout))
	case out.err != nil:
		kind, msg := classify(out.err)
		r.logger.WarnContext(ctx, "module failed", "job_id", inv.JobID, "module", inv.Module, "kind", kind, "error", out.err)
		return failed(res, kind, msg)
	}

	res.Succeeded = true
	res.Findings = r.normalize(inv.Module, out.findings)
	return res
}

func (r *Runner) normalize(module string, findings []model.Finding) []model.Finding {
	out := make([]model.Finding, 0, len(findings))
	for _, f := range findings {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.Type == "" {
			f.Type = module
		}
		if f.Source == "" {
			f.Source = module
		}
		if f.Severity == "" {
			f.Severity = model.SeverityInfo
		}
		if f.Timestamp.IsZero() {
			f.Timestamp = r.now().UTC()
		}
		out = append(out, f)
	}
	return out
}

func classify(err error) (model.ErrorKind, string) {
	var me *Error
	if errors.As(err, &me) && me.Kind != "" {
		return me.Kind, me.Error()
	}
	return model.ErrorKindModule, err.Error()
}

func failed(res model.ModuleResult, kind model.ErrorKind, msg string) model.ModuleResult {
	res.Succeeded = false
	res.ErrorKind = kind
	res.ErrorMessage = msg
	return res
}

// interrupted maps a cancelled parent context onto the result.
func interrupted(res model.ModuleResult, err error) model.ModuleResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return failed(res, model.ErrorKindTimeout, "job deadline exceeded")
	}
	res.Cancelled = true
	return failed(res, model.ErrorKindCancelled, "module cancelled")
}

func moduleResultLabel(res model.ModuleResult) string {
	switch {
	case res.Succeeded:
		return metrics.ResultSuccess
	case res.Cancelled:
		return metrics.ResultCancelled
	default:
		return metrics.ResultError
	}
}

func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

var _ core.ModuleRunner = (*Runner)(nil)
