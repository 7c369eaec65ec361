package data

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/domain/job"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	"github.com/Abhracodec/osint-recon/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestRedisQueue(t *testing.T, maxAttempts int) (*RedisJobQueue, *FixedTimeProvider) {
	t.Helper()
	client := setupTestRedis(t)
	clock := NewFixedTimeProvider(storeEpoch)
	lease, err := job.NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)
	q, err := NewRedisJobQueue(RedisJobQueueOptions{
		Client: client,
		QueueOptions: QueueOptions{
			Lease:        lease,
			MaxAttempts:  maxAttempts,
			PollInterval: 50 * time.Millisecond,
			TimeProvider: clock,
		},
		KeyPrefix: "{test:queue}:",
	})
	require.NoError(t, err)
	t.Cleanup(q.Close)
	return q, clock
}

func TestRedisJobQueue_EnqueueDequeueOrder(t *testing.T) {
	q, _ := newTestRedisQueue(t, 3)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, id, testRequest()))
	}
	require.ErrorIs(t, q.Enqueue(ctx, "a", testRequest()), ErrDuplicateIdentifier)

	var got []string
	for range 3 {
		d := dequeueNow(t, q)
		assert.Equal(t, 1, d.Attempt)
		assert.Equal(t, "example.com", d.Request.Target)
		got = append(got, d.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStats{Leased: 3}, stats)
}

func TestRedisJobQueue_DequeueWakesOnPublish(t *testing.T) {
	q, _ := newTestRedisQueue(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		if d, err := q.Dequeue(ctx); err == nil {
			got <- d.ID
		}
		close(got)
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, "late", testRequest()))

	select {
	case id := <-got:
		assert.Equal(t, "late", id)
	case <-ctx.Done():
		t.Fatal("dequeue never returned")
	}
}

func TestRedisJobQueue_Remove(t *testing.T) {
	q, _ := newTestRedisQueue(t, 3)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a", testRequest()))
	require.NoError(t, q.EnqueueAfter(ctx, core.EnqueueParams{ID: "later", Request: testRequest(), Delay: time.Hour}))

	removed, err := q.Remove(ctx, "later")
	require.NoError(t, err)
	assert.True(t, removed)

	d := dequeueNow(t, q)
	removed, err = q.Remove(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisJobQueue_LeasesAndRequeue(t *testing.T) {
	q, clock := newTestRedisQueue(t, 2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a", testRequest()))
	require.NoError(t, q.Enqueue(ctx, "b", testRequest()))

	first := dequeueNow(t, q)
	require.Equal(t, "a", first.ID)

	clock.Advance(20 * time.Second)
	require.NoError(t, q.Renew(ctx, first))
	assert.Equal(t, clock.Now().Add(30*time.Second), first.LeaseExpiresAt)

	clock.Advance(31 * time.Second)
	stats, err := q.RequeueExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Requeued)

	second := dequeueNow(t, q)
	assert.Equal(t, "a", second.ID, "requeued entries return to the head")
	assert.Equal(t, 2, second.Attempt)
	require.ErrorIs(t, q.Renew(ctx, first), ErrLeaseLost)
	require.ErrorIs(t, q.Ack(ctx, first), ErrLeaseLost)

	clock.Advance(31 * time.Second)
	stats, err = q.RequeueExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, stats.DeadLettered)

	third := dequeueNow(t, q)
	assert.Equal(t, "b", third.ID)
	require.NoError(t, q.Ack(ctx, third))

	qs, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStats{}, qs)
}

func TestRedisJobQueue_RetryWhileLeased(t *testing.T) {
	q, clock := newTestRedisQueue(t, 3)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a", testRequest()))
	d := dequeueNow(t, q)

	require.NoError(t, q.EnqueueAfter(ctx, core.EnqueueParams{
		ID: "a", Request: testRequest(), Delay: 5 * time.Second, Attempt: d.Attempt,
	}))
	require.NoError(t, q.Ack(ctx, d))

	qs, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStats{Delayed: 1}, qs)

	clock.Advance(5 * time.Second)
	again := dequeueNow(t, q)
	assert.Equal(t, "a", again.ID)
	assert.Equal(t, 2, again.Attempt)
}
