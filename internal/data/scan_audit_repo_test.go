package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
	apperrors "github.com/Abhracodec/osint-recon/internal/errors"
	"github.com/Abhracodec/osint-recon/internal/testutil"
)

func auditRecord(id string) *model.JobRecord {
	req := testutil.NewJobRequest().WithTypedConsent("I AGREE").Build()
	return model.NewJobRecord(id, req, testutil.TestTime(), time.Hour)
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func TestScanAuditRepo_RecordOutcomeRequiresTerminalStatus(t *testing.T) {
	repo := NewScanAuditRepo(nil)
	err := repo.RecordOutcome(context.Background(), auditRecord("job-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	assert.ErrorIs(t, repo.RecordSubmission(context.Background(), &model.JobRecord{}), ErrIDRequired)
}

func TestScanAuditRepo_SubmissionAndOutcome(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewScanAuditRepoWithTimeProvider(db, tp)

		rec := auditRecord("job-audit-1")
		require.NotEmpty(t, rec.ConsentHash)
		require.NoError(t, repo.RecordSubmission(ctx, rec))
		require.NoError(t, repo.RecordSubmission(ctx, rec), "re-recording is a no-op")

		var consentHash string
		var moduleCount int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT consent_hash, cardinality(modules) FROM scan_submissions WHERE job_id = $1`, rec.ID,
		).Scan(&consentHash, &moduleCount))
		assert.Equal(t, rec.ConsentHash, consentHash)
		assert.NotContains(t, consentHash, "I AGREE")
		assert.Equal(t, 2, moduleCount)

		rec.Status = model.JobStatusCompleted
		rec.Summary = &model.ResultSummary{TotalFindings: 4, ModulesFailed: 1}
		done := testutil.TestTime().Add(time.Minute)
		rec.CompletedAt = &done
		require.NoError(t, repo.RecordOutcome(ctx, rec))

		rec.Fail(model.ErrorKindInternal, "dns", "boom")
		require.NoError(t, repo.RecordOutcome(ctx, rec))

		var status, errKind string
		var findings int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT status, total_findings, error_kind FROM scan_outcomes WHERE job_id = $1`, rec.ID,
		).Scan(&status, &findings, &errKind))
		assert.Equal(t, "failed", status)
		assert.Equal(t, 4, findings)
		assert.Equal(t, string(model.ErrorKindInternal), errKind)
	})
}

func TestScanAuditRepo_PurgeBefore(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewScanAuditRepoWithTimeProvider(db, tp)

		old := auditRecord("job-old")
		require.NoError(t, repo.RecordSubmission(ctx, old))
		old.Status = model.JobStatusCancelled
		require.NoError(t, repo.RecordOutcome(ctx, old))

		tp.Advance(48 * time.Hour)
		require.NoError(t, repo.RecordSubmission(ctx, auditRecord("job-new")))

		n, err := repo.PurgeBefore(ctx, testutil.TestTime().Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		assert.Equal(t, 1, countRows(t, db, `SELECT count(*) FROM scan_submissions`))
		assert.Equal(t, 0, countRows(t, db, `SELECT count(*) FROM scan_outcomes WHERE job_id = $1`, "job-old"))

		_, err = repo.PurgeBefore(ctx, time.Time{})
		require.Error(t, err)
	})
}

func TestScanAuditRepo_OutcomeBackfillsSubmission(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewScanAuditRepoWithTimeProvider(db, NewFixedTimeProvider(testutil.TestTime()))

		rec := auditRecord("job-late-audit")
		rec.Status = model.JobStatusCompleted
		require.NoError(t, repo.RecordOutcome(ctx, rec))

		assert.Equal(t, 1, countRows(t, db, `SELECT count(*) FROM scan_submissions WHERE job_id = $1`, rec.ID))
		assert.Equal(t, 1, countRows(t, db, `SELECT count(*) FROM scan_outcomes WHERE job_id = $1`, rec.ID))
	})
}
