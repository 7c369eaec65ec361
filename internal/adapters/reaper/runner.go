// Package reaper provides adapters for running the job reaper.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Abhracodec/osint-recon/config"
	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
	"github.com/Abhracodec/osint-recon/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service and runs the cleanup loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Store  core.JobRecordStore
	Queue  core.JobQueue
	Config config.ReaperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Audit       core.ScanAuditRepository
	AuditConfig config.AuditConfig
	Metrics     statsd.Sink
	Notifier    core.FailureNotifier
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := wireReaperService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{
		reaper: reaper,
		logger: opts.Logger,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Store == nil {
		return errors.New("job record store is required")
	}
	if opts.Queue == nil {
		return errors.New("job queue is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireReaperService(opts RunnerOptions) (*service.ReaperService, error) {
	so := service.ReaperServiceOptions{
		Store:    opts.Store,
		Queue:    opts.Queue,
		Config:   opts.Config,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		Notifier: opts.Notifier,
	}
	if opts.Audit != nil && opts.AuditConfig.Enabled {
		so.Audit = opts.Audit
		so.AuditRetention = opts.AuditConfig.Retention()
	}
	return service.NewReaperService(so)
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
