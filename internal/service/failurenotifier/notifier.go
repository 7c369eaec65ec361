// Package failurenotifier fans job failure alerts out to the configured sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
	"github.com/Abhracodec/osint-recon/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// MinAttempts suppresses alerts for failures on earlier attempts; zero alerts on every failure.
	MinAttempts int
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger      *slog.Logger
	sinks       []SinkRegistration
	minAttempts int
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{logger: logger, sinks: sinks, minAttempts: opts.MinAttempts}
}

// NotifyJobFailure sends rec to every sink in parallel and waits for all of
// them. Records that are not failed are ignored.
func (s *Service) NotifyJobFailure(ctx context.Context, rec *model.JobRecord) {
	if s == nil || len(s.sinks) == 0 || rec == nil || rec.Status != model.JobStatusFailed {
		return
	}
	if rec.Attempts < s.minAttempts {
		s.logger.DebugContext(ctx, "skipping failure notification",
			"job_id", rec.ID, "attempts", rec.Attempts, "min_attempts", s.minAttempts)
		return
	}

	payload := notify.PayloadFromRecord(rec)
	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"error_kind", payload.ErrorKind,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
