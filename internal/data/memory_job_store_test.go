package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

var storeEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func testRequest(modules ...string) model.JobRequest {
	if len(modules) == 0 {
		modules = []string{"subdomains", "whois"}
	}
	return model.JobRequest{
		Target:     "example.com",
		TargetType: model.TargetTypeDomain,
		Modules:    modules,
	}
}

func newTestMemoryStore() (*MemoryJobStore, *FixedTimeProvider) {
	clock := NewFixedTimeProvider(storeEpoch)
	return NewMemoryJobStore(JobStoreOptions{Retention: 24 * time.Hour, TimeProvider: clock}), clock
}

func toRunning(rec *model.JobRecord) error {
	rec.Status = model.JobStatusRunning
	return nil
}

func TestMemoryJobStore_CreateAndGet(t *testing.T) {
	store, _ := newTestMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "job-1", testRequest())
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, rec.Status)
	assert.Equal(t, 0, rec.Progress)
	assert.Equal(t, 2, rec.TotalModules)

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = store.Create(ctx, "job-1", testRequest())
	require.ErrorIs(t, err, ErrDuplicateIdentifier)

	_, err = store.Create(ctx, "", testRequest())
	require.ErrorIs(t, err, ErrIDRequired)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryJobStore_SnapshotsAreIsolated(t *testing.T) {
	store, _ := newTestMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "job-1", testRequest())
	require.NoError(t, err)
	rec.Status = model.JobStatusCompleted
	rec.Request.Modules[0] = "tampered"

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, "subdomains", got.Request.Modules[0])
}

func TestMemoryJobStore_UpdateStateMachine(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to running sets startedAt once", func(t *testing.T) {
		store, clock := newTestMemoryStore()
		_, err := store.Create(ctx, "job-1", testRequest())
		require.NoError(t, err)

		clock.Advance(time.Second)
		rec, err := store.Update(ctx, "job-1", toRunning)
		require.NoError(t, err)
		require.NotNil(t, rec.StartedAt)
		started := *rec.StartedAt

		clock.Advance(time.Second)
		rec, err = store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.Progress = 50
			now := clock.Now()
			r.StartedAt = &now
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, started, *rec.StartedAt)
		assert.Equal(t, 50, rec.Progress)
	})

	t.Run("pending cannot complete directly", func(t *testing.T) {
		store, _ := newTestMemoryStore()
		_, err := store.Create(ctx, "job-1", testRequest())
		require.NoError(t, err)

		_, err = store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.Status = model.JobStatusCompleted
			return nil
		})
		require.ErrorIs(t, err, ErrInvalidTransition)

		got, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, got.Status)
	})

	t.Run("terminal records reject every mutation", func(t *testing.T) {
		store, _ := newTestMemoryStore()
		_, err := store.Create(ctx, "job-1", testRequest())
		require.NoError(t, err)
		_, err = store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.Status = model.JobStatusCancelled
			return nil
		})
		require.NoError(t, err)

		_, err = store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.Progress = 10
			return nil
		})
		require.ErrorIs(t, err, ErrTerminal)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("mutator error leaves record unchanged", func(t *testing.T) {
		store, _ := newTestMemoryStore()
		_, err := store.Create(ctx, "job-1", testRequest())
		require.NoError(t, err)
		boom := errors.New("boom")

		_, err = store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.Status = model.JobStatusRunning
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, got.Status)
	})

	t.Run("update of missing record", func(t *testing.T) {
		store, _ := newTestMemoryStore()
		_, err := store.Update(ctx, "nope", toRunning)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryJobStore_UpdateInvariants(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()
	_, err := store.Create(ctx, "job-1", testRequest("whois"))
	require.NoError(t, err)
	_, err = store.Update(ctx, "job-1", func(r *model.JobRecord) error {
		r.Status = model.JobStatusRunning
		r.Progress = 40
		r.CompletedModules = append(r.CompletedModules, "whois")
		r.Findings = append(r.Findings, model.ModuleFindings{ModuleName: "whois", Succeeded: true})
		return nil
	})
	require.NoError(t, err)

	t.Run("progress never moves backwards", func(t *testing.T) {
		rec, uerr := store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.Progress = 10
			return nil
		})
		require.NoError(t, uerr)
		assert.Equal(t, 40, rec.Progress)
	})

	t.Run("findings are append-only", func(t *testing.T) {
		_, uerr := store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.Findings = nil
			return nil
		})
		require.ErrorIs(t, uerr, ErrInvalidTransition)
	})

	t.Run("completed modules cannot exceed total", func(t *testing.T) {
		_, uerr := store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.CompletedModules = append(r.CompletedModules, "extra")
			return nil
		})
		require.ErrorIs(t, uerr, ErrInvalidTransition)
	})

	t.Run("identity fields are immutable", func(t *testing.T) {
		rec, uerr := store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.ID = "other"
			r.TotalModules = 9
			r.Request.Target = "evil.example"
			return nil
		})
		require.NoError(t, uerr)
		assert.Equal(t, "job-1", rec.ID)
		assert.Equal(t, 1, rec.TotalModules)
		assert.Equal(t, "example.com", rec.Request.Target)
	})

	t.Run("retry re-arm resets progress and findings", func(t *testing.T) {
		rec, uerr := store.Update(ctx, "job-1", func(r *model.JobRecord) error {
			r.ResetForRetry()
			return nil
		})
		require.NoError(t, uerr)
		assert.Equal(t, model.JobStatusPending, rec.Status)
		assert.Equal(t, 0, rec.Progress)
		assert.Empty(t, rec.Findings)
		assert.NotNil(t, rec.StartedAt)
	})
}

func TestMemoryJobStore_Retention(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestMemoryStore()

	_, err := store.Create(ctx, "job-1", testRequest())
	require.NoError(t, err)
	_, err = store.Update(ctx, "job-1", toRunning)
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	rec, err := store.Update(ctx, "job-1", func(r *model.JobRecord) error {
		r.Status = model.JobStatusCompleted
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, rec.CompletedAt.Add(24*time.Hour), rec.ExpiresAt)

	// Past the create-time deadline but inside the refreshed window.
	clock.Advance(2 * time.Hour)
	_, err = store.Get(ctx, "job-1")
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	_, err = store.Get(ctx, "job-1")
	require.ErrorIs(t, err, ErrNotFound, "expired records read as not found before the sweep")

	purged, err := store.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestMemoryJobStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()
	_, err := store.Create(ctx, "job-1", testRequest())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "job-1"))
	require.NoError(t, store.Delete(ctx, "job-1"))
	_, err = store.Get(ctx, "job-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryJobStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()
	_, err := store.Create(ctx, "job-1", testRequest())
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, uerr := store.Update(ctx, "job-1", func(r *model.JobRecord) error {
				if r.Status != model.JobStatusPending {
					return ErrInvalidTransition
				}
				r.Status = model.JobStatusRunning
				return nil
			})
			if uerr == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
