// Package model defines the core data types shared by the recon job engine.
package model

import (
	"errors"
	"math"
	"time"
)

// JobStatus represents the lifecycle state of a recon job.
type JobStatus string

const (
	// JobStatusPending indicates a job is accepted and waiting for a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a worker is executing the job's modules.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates every module ran without a blocking failure.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job stopped on a fatal error.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled before finishing.
	JobStatusCancelled JobStatus = "cancelled"
)

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransition reports whether a record may move from one status to another.
// Staying in the same non-terminal status is always allowed. running -> pending
// is the re-arm used when a crashed attempt is scheduled for retry. pending ->
// failed covers a delivery dead-lettered before any attempt could claim it.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning || to == JobStatusCancelled || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusPending || to == JobStatusCompleted ||
			to == JobStatusFailed || to == JobStatusCancelled
	}
	return false
}

// ErrorKind classifies failures recorded on a job or module outcome.
type ErrorKind string

const (
	ErrorKindValidation          ErrorKind = "ValidationError"
	ErrorKindNotFound            ErrorKind = "NotFound"
	ErrorKindNotReady            ErrorKind = "NotReady"
	ErrorKindDuplicateIdentifier ErrorKind = "DuplicateIdentifier"
	ErrorKindQueueUnavailable    ErrorKind = "QueueUnavailable"
	ErrorKindStoreUnavailable    ErrorKind = "StoreUnavailable"
	ErrorKindModule              ErrorKind = "ModuleError"
	ErrorKindTimeout             ErrorKind = "Timeout"
	ErrorKindInternal            ErrorKind = "InternalError"
	ErrorKindCancelled           ErrorKind = "Cancelled"
)

// JobError is the failure attached to a record whose status is failed.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Module  string    `json:"module,omitempty"`
}

// JobRecord is the mutable state of one accepted job. It is persisted as a
// flat JSON document by the record stores.
type JobRecord struct {
	ID               string           `json:"id"`
	Request          JobRequest       `json:"request"`
	Status           JobStatus        `json:"status"`
	Progress         int              `json:"progress"`
	CurrentModule    string           `json:"current_module"`
	CompletedModules []string         `json:"completed_modules"`
	TotalModules     int              `json:"total_modules"`
	Findings         []ModuleFindings `json:"findings"`
	Summary          *ResultSummary   `json:"summary,omitempty"`
	Error            *JobError        `json:"error,omitempty"`
	Attempts         int              `json:"attempts"`
	CancelRequested  bool             `json:"cancel_requested"`
	// LeaseToken names the delivery lease that owns the running attempt.
	// Worker writes carrying any other token are rejected.
	LeaseToken       string           `json:"lease_token,omitempty"`
	ConsentHash      string           `json:"consent_hash,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	ExpiresAt        time.Time        `json:"expires_at"`
}

// NewJobRecord builds the initial pending record for an accepted request.
func NewJobRecord(id string, req JobRequest, now time.Time, retention time.Duration) *JobRecord {
	return &JobRecord{
		ID:               id,
		Request:          req.Clone(),
		Status:           JobStatusPending,
		CompletedModules: []string{},
		TotalModules:     len(req.Modules),
		Findings:         []ModuleFindings{},
		ConsentHash:      req.ConsentHash(),
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(retention),
	}
}

// Expired reports whether the record's retention deadline has passed.
func (r *JobRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Fail moves the record to failed with the given error.
func (r *JobRecord) Fail(kind ErrorKind, module, msg string) {
	r.Status = JobStatusFailed
	r.CurrentModule = ""
	r.Error = &JobError{Kind: kind, Message: msg, Module: module}
}

// ResetForRetry re-arms a running record so a fresh attempt starts from the first module.
func (r *JobRecord) ResetForRetry() {
	r.Status = JobStatusPending
	r.Progress = 0
	r.CurrentModule = ""
	r.CompletedModules = []string{}
	r.Findings = []ModuleFindings{}
	r.Summary = nil
	r.Error = nil
	r.LeaseToken = ""
}

// Clone returns a deep copy of the record.
func (r *JobRecord) Clone() *JobRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Request = r.Request.Clone()
	out.CompletedModules = append([]string{}, r.CompletedModules...)
	out.Findings = make([]ModuleFindings, len(r.Findings))
	for i := range r.Findings {
		out.Findings[i] = r.Findings[i].Clone()
	}
	if r.Summary != nil {
		s := r.Summary.Clone()
		out.Summary = &s
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	out.StartedAt = cloneTime(r.StartedAt)
	out.CompletedAt = cloneTime(r.CompletedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ProgressFor returns round(done/total*100) clamped to 0..100.
func ProgressFor(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(done) / float64(total) * 100))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
