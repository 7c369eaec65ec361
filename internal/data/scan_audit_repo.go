package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/data/pgxutil"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	apperrors "github.com/Abhracodec/osint-recon/internal/errors"
)

var _ core.ScanAuditRepository = (*ScanAuditRepo)(nil)

// ScanAuditRepo persists consented submissions and their outcomes to PostgreSQL.
// Only the consent digest is written; raw consent never reaches the database.
type ScanAuditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewScanAuditRepo creates a new ScanAuditRepo with the given database connection.
func NewScanAuditRepo(db *sql.DB) *ScanAuditRepo {
	return &ScanAuditRepo{DB: db, timeProvider: SystemClock{}}
}

// NewScanAuditRepoWithTimeProvider creates a ScanAuditRepo with a custom clock.
func NewScanAuditRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ScanAuditRepo {
	return &ScanAuditRepo{DB: db, timeProvider: timeProviderOrDefault(tp)}
}

// RecordSubmission writes the accepted request. Re-recording the same job is a no-op.
func (r *ScanAuditRepo) RecordSubmission(ctx context.Context, rec *model.JobRecord) error {
	if rec == nil || rec.ID == "" {
		return ErrIDRequired
	}
	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return insertSubmission(ctx, conn, rec, now)
	})
	return apperrors.MapDBError(err)
}

// execer is satisfied by both *pgx.Conn and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSubmission(ctx context.Context, q execer, rec *model.JobRecord, now time.Time) error {
	modules := rec.Request.Modules
	if modules == nil {
		modules = []string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO scan_submissions
			(job_id, target, target_type, modules, rate_profile, consent_hash, submitted_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO NOTHING
	`,
		rec.ID,
		rec.Request.Target,
		string(rec.Request.TargetType),
		modules,
		string(rec.Request.RateProfile),
		rec.ConsentHash,
		rec.CreatedAt.UTC(),
		now,
	)
	return err
}

// RecordOutcome writes the terminal state of a job. Later outcomes for the
// same job replace earlier ones. A job whose submission was never recorded
// (audit enabled after it was queued) gets its submission row in the same
// transaction.
func (r *ScanAuditRepo) RecordOutcome(ctx context.Context, rec *model.JobRecord) error {
	if rec == nil || rec.ID == "" {
		return ErrIDRequired
	}
	if !rec.Status.IsTerminal() {
		return apperrors.Validationf("audit outcome requires a terminal status, got %q", rec.Status)
	}

	var (
		totalFindings, modulesFailed int
		errKind, errMsg              *string
		completedAt                  *time.Time
	)
	if rec.Summary != nil {
		totalFindings = rec.Summary.TotalFindings
		modulesFailed = rec.Summary.ModulesFailed
	}
	if rec.Error != nil {
		kind := string(rec.Error.Kind)
		errKind, errMsg = &kind, &rec.Error.Message
	}
	if rec.CompletedAt != nil {
		t := rec.CompletedAt.UTC()
		completedAt = &t
	}

	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := insertSubmission(ctx, tx, rec, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO scan_outcomes
				(job_id, status, attempts, total_findings, modules_failed, error_kind, error_message, completed_at, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (job_id) DO UPDATE SET
				status = EXCLUDED.status,
				attempts = EXCLUDED.attempts,
				total_findings = EXCLUDED.total_findings,
				modules_failed = EXCLUDED.modules_failed,
				error_kind = EXCLUDED.error_kind,
				error_message = EXCLUDED.error_message,
				completed_at = EXCLUDED.completed_at,
				recorded_at = EXCLUDED.recorded_at
		`,
			rec.ID,
			string(rec.Status),
			rec.Attempts,
			totalFindings,
			modulesFailed,
			errKind,
			errMsg,
			completedAt,
			now,
		)
		return err
	})
	return apperrors.MapDBError(err)
}

// PurgeBefore deletes submissions recorded before cutoff along with their
// outcomes. It returns the number of submissions removed.
func (r *ScanAuditRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, errors.New("cutoff is required")
	}
	var deleted int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM scan_submissions WHERE recorded_at < $1`, cutoff.UTC())
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return deleted, nil
}
