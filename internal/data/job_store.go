package data

import (
	"fmt"
	"time"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// DefaultRetention is how long a record stays readable after it finishes.
const DefaultRetention = 24 * time.Hour

// JobStoreOptions configures the record store implementations.
type JobStoreOptions struct {
	// Retention is applied at create and refreshed at the terminal transition.
	Retention    time.Duration
	TimeProvider TimeProvider
}

func (o JobStoreOptions) retention() time.Duration {
	if o.Retention <= 0 {
		return DefaultRetention
	}
	return o.Retention
}

// applyMutation runs mutate against a copy of cur and enforces the record
// invariants. The returned record is what the store must persist.
func applyMutation(
	cur *model.JobRecord,
	mutate core.JobMutator,
	now time.Time,
	retention time.Duration,
) (*model.JobRecord, error) {
	if cur.Status.IsTerminal() {
		return nil, ErrTerminal
	}

	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	// Identity fields never change after create.
	next.ID = cur.ID
	next.Request = cur.Request.Clone()
	next.TotalModules = cur.TotalModules
	next.CreatedAt = cur.CreatedAt
	next.ConsentHash = cur.ConsentHash

	if !next.Status.Valid() || !model.CanTransition(cur.Status, next.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, next.Status)
	}
	if err := checkAppendOnly(cur, next); err != nil {
		return nil, err
	}

	if cur.StartedAt != nil {
		next.StartedAt = cur.StartedAt
	} else if next.Status == model.JobStatusRunning && next.StartedAt == nil {
		started := now
		next.StartedAt = &started
	}

	if next.Status.IsTerminal() {
		done := now
		next.CompletedAt = &done
		next.ExpiresAt = done.Add(retention)
		next.CurrentModule = ""
		if next.Status != model.JobStatusFailed {
			next.Error = nil
		}
	} else {
		next.CompletedAt = nil
	}
	next.UpdatedAt = now
	return next, nil
}

// checkAppendOnly rejects shrinking findings or completed modules, and
// progress moving backwards, except on the running -> pending retry re-arm.
func checkAppendOnly(cur, next *model.JobRecord) error {
	if cur.Status == model.JobStatusRunning && next.Status == model.JobStatusPending {
		return nil
	}
	if len(next.CompletedModules) > next.TotalModules {
		return fmt.Errorf("%w: %d completed modules exceeds total %d",
			ErrInvalidTransition, len(next.CompletedModules), next.TotalModules)
	}
	if len(next.CompletedModules) < len(cur.CompletedModules) || len(next.Findings) < len(cur.Findings) {
		return fmt.Errorf("%w: completed modules and findings are append-only", ErrInvalidTransition)
	}
	if next.Progress < cur.Progress {
		next.Progress = cur.Progress
	}
	if next.Progress > 100 {
		next.Progress = 100
	}
	return nil
}
