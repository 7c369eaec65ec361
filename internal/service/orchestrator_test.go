package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Abhracodec/osint-recon/internal/data"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	apperrors "github.com/Abhracodec/osint-recon/internal/errors"
	"github.com/Abhracodec/osint-recon/internal/mocks"
)

func validRequest() model.JobRequest {
	return model.JobRequest{
		Target:     "Example.COM",
		TargetType: model.TargetTypeDomain,
		Modules:    []string{"resolve", "whois"},
	}
}

type orchestratorFixture struct {
	orch  *Orchestrator
	store *data.MemoryJobStore
	queue *data.MemoryJobQueue
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	store := data.NewMemoryJobStore(data.JobStoreOptions{})
	queue, err := data.NewMemoryJobQueue(data.QueueOptions{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	n := 0
	orch, err := NewOrchestrator(OrchestratorOptions{
		Store: store,
		Queue: queue,
		NewID: func() string {
			n++
			return fmt.Sprintf("job-%d", n)
		},
	})
	require.NoError(t, err)
	return &orchestratorFixture{orch: orch, store: store, queue: queue}
}

func (f *orchestratorFixture) move(t *testing.T, id string, statuses ...model.JobStatus) {
	t.Helper()
	for _, s := range statuses {
		_, err := f.store.Update(context.Background(), id, func(r *model.JobRecord) error {
			r.Status = s
			return nil
		})
		require.NoError(t, err)
	}
}

func TestOrchestrator_Submit(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.Submit(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	rec, err := f.orch.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, rec.Status)
	assert.Equal(t, "example.com", rec.Request.Target, "request is normalized before it is stored")
	assert.Equal(t, model.RateProfileLow, rec.Request.RateProfile)
	assert.Equal(t, 2, rec.TotalModules)

	stats, err := f.orch.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	d, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, "example.com", d.Request.Target)
}

func TestOrchestrator_SubmitValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	orch, err := NewOrchestrator(OrchestratorOptions{
		Store: mocks.NewMockJobRecordStore(ctrl),
		Queue: mocks.NewMockJobQueue(ctrl),
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		mut   func(r *model.JobRequest)
		field string
	}{
		{"missing target", func(r *model.JobRequest) { r.Target = "  " }, "target"},
		{"unknown target type", func(r *model.JobRequest) { r.TargetType = "planet" }, "target_type"},
		{"no modules", func(r *model.JobRequest) { r.Modules = nil }, "modules"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mut(&req)
			_, err := orch.Submit(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestOrchestrator_SubmitStoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobRecordStore(ctrl)
	store.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	orch, err := NewOrchestrator(OrchestratorOptions{Store: store, Queue: mocks.NewMockJobQueue(ctrl)})
	require.NoError(t, err)

	_, err = orch.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.ErrorIs(t, err, data.ErrStoreUnavailable)
}

func TestOrchestrator_SubmitQueueUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := data.NewMemoryJobStore(data.JobStoreOptions{})
	queue := mocks.NewMockJobQueue(ctrl)
	queue.EXPECT().Enqueue(gomock.Any(), "job-x", gomock.Any()).Return(errors.New("redis: connection pool timeout"))
	audit := mocks.NewMockScanAuditRepository(ctrl)

	orch, err := NewOrchestrator(OrchestratorOptions{
		Store: store, Queue: queue, Audit: audit,
		NewID: func() string { return "job-x" },
	})
	require.NoError(t, err)

	_, err = orch.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.ErrorIs(t, err, data.ErrQueueUnavailable)

	_, err = store.Get(context.Background(), "job-x")
	assert.ErrorIs(t, err, data.ErrNotFound, "orphaned record is removed")
}

func TestOrchestrator_SubmitRecordsAudit(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockScanAuditRepository(ctrl)
	store := data.NewMemoryJobStore(data.JobStoreOptions{})
	queue, err := data.NewMemoryJobQueue(data.QueueOptions{})
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	audit.EXPECT().RecordSubmission(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *model.JobRecord) error {
			assert.Equal(t, "job-a", rec.ID)
			assert.Equal(t, model.JobStatusPending, rec.Status)
			return errors.New("audit db down")
		})

	orch, err := NewOrchestrator(OrchestratorOptions{
		Store: store, Queue: queue, Audit: audit,
		NewID: func() string { return "job-a" },
	})
	require.NoError(t, err)

	id, err := orch.Submit(context.Background(), validRequest())
	require.NoError(t, err, "audit failures do not fail the submission")
	assert.Equal(t, "job-a", id)
}

func TestOrchestrator_GetStatusAndResult(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orch.GetStatus(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.orch.GetResult(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))

	id, err := f.orch.Submit(ctx, validRequest())
	require.NoError(t, err)

	_, err = f.orch.GetResult(ctx, id)
	assert.True(t, apperrors.IsNotReady(err))

	_, err = f.store.Update(ctx, id, func(r *model.JobRecord) error {
		r.Status = model.JobStatusRunning
		r.Findings = append(r.Findings, model.ModuleFindings{
			ModuleName: "resolve",
			Succeeded:  true,
			Findings:   []model.Finding{{ID: "f1", Title: "Target resolves", Severity: model.SeverityInfo}},
		})
		r.CompletedModules = append(r.CompletedModules, "resolve")
		return nil
	})
	require.NoError(t, err)
	_, err = f.orch.GetResult(ctx, id)
	assert.True(t, apperrors.IsNotReady(err))

	f.move(t, id, model.JobStatusCompleted)
	res, err := f.orch.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, res.ID)
	assert.Equal(t, "example.com", res.Target)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 1, res.Summary.TotalFindings)
	assert.Equal(t, 1, res.Summary.ModulesCovered)
}

func TestOrchestrator_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending job still queued is cancelled at once", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		id, err := f.orch.Submit(ctx, validRequest())
		require.NoError(t, err)

		ok, err := f.orch.Cancel(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		rec, err := f.orch.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, rec.Status)
		assert.NotNil(t, rec.CompletedAt)

		stats, err := f.queue.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.QueueStats{}, stats)

		ok, err = f.orch.Cancel(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, "terminal jobs cannot be cancelled again")
	})

	t.Run("pending job already claimed is flagged", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		id, err := f.orch.Submit(ctx, validRequest())
		require.NoError(t, err)
		_, err = f.queue.Dequeue(ctx)
		require.NoError(t, err)

		ok, err := f.orch.Cancel(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		rec, err := f.orch.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, rec.Status)
		assert.True(t, rec.CancelRequested)
	})

	t.Run("running job is flagged", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		id, err := f.orch.Submit(ctx, validRequest())
		require.NoError(t, err)
		_, err = f.queue.Dequeue(ctx)
		require.NoError(t, err)
		f.move(t, id, model.JobStatusRunning)

		ok, err := f.orch.Cancel(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		rec, err := f.orch.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, rec.Status)
		assert.True(t, rec.CancelRequested)
	})

	t.Run("finished job reports false", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		id, err := f.orch.Submit(ctx, validRequest())
		require.NoError(t, err)
		f.move(t, id, model.JobStatusRunning, model.JobStatusCompleted)

		ok, err := f.orch.Cancel(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		_, err := f.orch.Cancel(ctx, "nope")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestOrchestrator_CancelQueueError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := data.NewMemoryJobStore(data.JobStoreOptions{})
	queue := mocks.NewMockJobQueue(ctrl)
	queue.EXPECT().Enqueue(gomock.Any(), "job-q", gomock.Any()).Return(nil)
	queue.EXPECT().Remove(gomock.Any(), "job-q").Return(false, errors.New("redis down"))

	orch, err := NewOrchestrator(OrchestratorOptions{
		Store: store, Queue: queue,
		NewID: func() string { return "job-q" },
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = orch.Submit(ctx, validRequest())
	require.NoError(t, err)

	ok, err := orch.Cancel(ctx, "job-q")
	assert.False(t, ok)
	assert.True(t, apperrors.IsUnavailable(err))

	rec, err := store.Get(ctx, "job-q")
	require.NoError(t, err)
	assert.False(t, rec.CancelRequested)
}

func TestOrchestrator_Wait(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	id, err := f.orch.Submit(ctx, validRequest())
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = f.store.Update(ctx, id, func(r *model.JobRecord) error {
			r.Status = model.JobStatusRunning
			return nil
		})
		_, _ = f.store.Update(ctx, id, func(r *model.JobRecord) error {
			r.Fail(model.ErrorKindModule, "resolve", "target does not resolve")
			return nil
		})
	}()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rec, err := f.orch.Wait(wctx, id, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "resolve", rec.Error.Module)
}

func TestOrchestrator_WaitHonorsContext(t *testing.T) {
	f := newOrchestratorFixture(t)
	id, err := f.orch.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	rec, err := f.orch.Wait(ctx, id, 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, rec)
	assert.Equal(t, model.JobStatusPending, rec.Status)
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorOptions{})
	require.Error(t, err)

	ctrl := gomock.NewController(t)
	_, err = NewOrchestrator(OrchestratorOptions{Store: mocks.NewMockJobRecordStore(ctrl)})
	require.Error(t, err)
}
