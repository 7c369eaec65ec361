package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Abhracodec/osint-recon/config"
	"github.com/Abhracodec/osint-recon/internal/adapters/jobrunner"
	"github.com/Abhracodec/osint-recon/internal/adapters/reaper"
	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/domain/job"
	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
)

// WorkerConfig contains configuration for the worker pool.
type WorkerConfig struct {
	Store    core.JobRecordStore
	Queue    core.JobQueue
	Modules  core.ModuleRunner
	Config   config.WorkerConfig
	Logger   *slog.Logger
	Audit    core.ScanAuditRepository
	Metrics  statsd.Sink
	Notifier core.FailureNotifier
}

// defaultLeaseTTL applies when LEASE_TTL_SECONDS is unset.
const defaultLeaseTTL = 30 * time.Second

// leasePolicy resolves the configured lease into the supported range and logs
// when the configured value could not be used as is.
func leasePolicy(cfg config.WorkerConfig, logger *slog.Logger) (*job.LeasePolicy, error) {
	base, err := job.NewLeasePolicy(defaultLeaseTTL)
	if err != nil {
		return nil, err
	}
	decision := base.Resolve(cfg.LeaseTTL())
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case decision.Clamped():
		logger.Warn("lease ttl out of range; clamped",
			"requested", decision.Requested, "ttl", decision.TTL, "min", job.MinLease, "max", job.MaxLease)
	case decision.UsedDefault():
		logger.Info("lease ttl not configured; using default", "ttl", decision.TTL)
	}
	return job.NewLeasePolicy(decision.TTL)
}

// RunWorker starts the worker pool and blocks until ctx is cancelled.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	lease, err := leasePolicy(cfg.Config, cfg.Logger)
	if err != nil {
		return fmt.Errorf("lease policy: %w", err)
	}
	base, maxDelay := cfg.Config.RetryBackoff()

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Store:         cfg.Store,
		Queue:         cfg.Queue,
		Modules:       cfg.Modules,
		Logger:        cfg.Logger,
		Concurrency:   cfg.Config.Concurrency,
		JobTimeout:    cfg.Config.JobTimeout(),
		ModuleTimeout: cfg.Config.ModuleTimeout(),
		MaxAttempts:   cfg.Config.MaxAttempts,
		Lease:         lease,
		Backoff:       job.Backoff{Base: base, Max: maxDelay},
		Metrics:       cfg.Metrics,
		Audit:         cfg.Audit,
		Notifier:      cfg.Notifier,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run worker runner: %w", runErr)
	}
	return nil
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	Store       core.JobRecordStore
	Queue       core.JobQueue
	Config      config.ReaperConfig
	AuditConfig config.AuditConfig
	Audit       core.ScanAuditRepository
	Logger      *slog.Logger
	Metrics     statsd.Sink
	Notifier    core.FailureNotifier
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Store:       cfg.Store,
		Queue:       cfg.Queue,
		Config:      cfg.Config,
		Logger:      cfg.Logger,
		Audit:       cfg.Audit,
		AuditConfig: cfg.AuditConfig,
		Metrics:     cfg.Metrics,
		Notifier:    cfg.Notifier,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
