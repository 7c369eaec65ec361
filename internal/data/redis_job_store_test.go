package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

func TestRedisJobStore(t *testing.T) {
	client := setupTestRedis(t)
	store, err := NewRedisJobStore(RedisJobStoreOptions{
		Client:          client,
		JobStoreOptions: JobStoreOptions{Retention: time.Hour},
		KeyPrefix:       "test:job:",
	})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("create sets ttl and rejects duplicates", func(t *testing.T) {
		rec, cerr := store.Create(ctx, "r1", testRequest())
		require.NoError(t, cerr)
		assert.Equal(t, model.JobStatusPending, rec.Status)

		ttl := client.TTL(ctx, "test:job:r1").Val()
		assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl %s", ttl)

		_, cerr = store.Create(ctx, "r1", testRequest())
		require.ErrorIs(t, cerr, ErrDuplicateIdentifier)
	})

	t.Run("get round trips the record", func(t *testing.T) {
		got, gerr := store.Get(ctx, "r1")
		require.NoError(t, gerr)
		assert.Equal(t, "r1", got.ID)
		assert.Equal(t, []string{"subdomains", "whois"}, got.Request.Modules)

		_, gerr = store.Get(ctx, "missing")
		require.ErrorIs(t, gerr, ErrNotFound)
	})

	t.Run("update applies the state machine", func(t *testing.T) {
		rec, uerr := store.Update(ctx, "r1", toRunning)
		require.NoError(t, uerr)
		assert.NotNil(t, rec.StartedAt)

		rec, uerr = store.Update(ctx, "r1", func(r *model.JobRecord) error {
			r.Status = model.JobStatusCompleted
			r.Progress = 100
			return nil
		})
		require.NoError(t, uerr)
		assert.NotNil(t, rec.CompletedAt)

		_, uerr = store.Update(ctx, "r1", toRunning)
		require.ErrorIs(t, uerr, ErrTerminal)
	})

	t.Run("concurrent updates do not lose writes", func(t *testing.T) {
		_, cerr := store.Create(ctx, "r2", testRequest("a", "b", "c", "d", "e", "f", "g", "h"))
		require.NoError(t, cerr)
		_, uerr := store.Update(ctx, "r2", toRunning)
		require.NoError(t, uerr)

		modules := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		var wg sync.WaitGroup
		for _, m := range modules {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, werr := store.Update(ctx, "r2", func(r *model.JobRecord) error {
					r.CompletedModules = append(r.CompletedModules, m)
					return nil
				})
				assert.NoError(t, werr)
			}()
		}
		wg.Wait()

		got, gerr := store.Get(ctx, "r2")
		require.NoError(t, gerr)
		assert.ElementsMatch(t, modules, got.CompletedModules)
	})

	t.Run("lease token persists and guards writes", func(t *testing.T) {
		_, cerr := store.Create(ctx, "r3", testRequest())
		require.NoError(t, cerr)
		_, uerr := store.Update(ctx, "r3", func(r *model.JobRecord) error {
			r.Status = model.JobStatusRunning
			r.LeaseToken = "lease-b"
			return nil
		})
		require.NoError(t, uerr)

		_, uerr = store.Update(ctx, "r3", func(r *model.JobRecord) error {
			if r.LeaseToken != "lease-a" {
				return ErrLeaseLost
			}
			r.Progress = 90
			return nil
		})
		require.ErrorIs(t, uerr, ErrLeaseLost)

		got, gerr := store.Get(ctx, "r3")
		require.NoError(t, gerr)
		assert.Equal(t, "lease-b", got.LeaseToken)
		assert.Equal(t, 0, got.Progress)
	})

	t.Run("health pings redis", func(t *testing.T) {
		require.NoError(t, store.Health(ctx))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "r2"))
		_, gerr := store.Get(ctx, "r2")
		require.ErrorIs(t, gerr, ErrNotFound)
	})
}
