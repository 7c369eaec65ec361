// Package mocks provides mock implementations for testing the recon job engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the ports in internal/core.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobRecordStore(ctrl)
//	store.EXPECT().Get(gomock.Any(), "job-1").Return(rec, nil)
package mocks

// Generate mock for JobRecordStore interface from internal/core package.
// Create, Get, Update, Delete, PurgeExpired
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_record_store_mock.go github.com/Abhracodec/osint-recon/internal/core JobRecordStore

// Generate mock for JobQueue interface from internal/core package.
// Enqueue, EnqueueAfter, Dequeue, Remove, Renew, Ack, RequeueExpired, Stats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go github.com/Abhracodec/osint-recon/internal/core JobQueue

// Generate mock for ModuleRunner interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=module_runner_mock.go github.com/Abhracodec/osint-recon/internal/core ModuleRunner

// Generate mock for ScanAuditRepository interface from internal/core package.
// RecordSubmission, RecordOutcome, PurgeBefore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=scan_audit_repository_mock.go github.com/Abhracodec/osint-recon/internal/core ScanAuditRepository
