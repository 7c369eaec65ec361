// Package notify defines the payload and sink contract for job failure alerts.
package notify

import (
	"context"
	"maps"
	"time"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// JobFailurePayload is what every sink receives when a job ends in failure.
type JobFailurePayload struct {
	JobID      string
	Target     string
	TargetType string
	Module     string
	ErrorKind  string
	Error      string
	Attempts   int
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// PayloadFromRecord builds the alert payload for a failed record. Consent is
// never included.
func PayloadFromRecord(rec *model.JobRecord) JobFailurePayload {
	p := JobFailurePayload{
		JobID:      rec.ID,
		Target:     rec.Request.Target,
		TargetType: string(rec.Request.TargetType),
		Attempts:   rec.Attempts,
		Severity:   severityFor(rec),
		OccurredAt: rec.UpdatedAt,
		Metadata:   maps.Clone(rec.Request.Metadata),
	}
	if rec.CompletedAt != nil {
		p.OccurredAt = *rec.CompletedAt
	}
	if rec.Error != nil {
		p.Module = rec.Error.Module
		p.ErrorKind = string(rec.Error.Kind)
		p.Error = rec.Error.Message
	}
	return p
}

// severityFor pages for infrastructure failures and reports module failures
// at a lower level.
func severityFor(rec *model.JobRecord) string {
	if rec.Error == nil {
		return SeverityCritical
	}
	switch rec.Error.Kind {
	case model.ErrorKindModule, model.ErrorKindTimeout, model.ErrorKindValidation:
		return SeverityError
	default:
		return SeverityCritical
	}
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
