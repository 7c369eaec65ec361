package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/domain/job"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// The hash tag keeps every queue key in one cluster slot so the scripts may
// touch payload keys they derive from ids.
const defaultQueuePrefix = "{scan:queue}:"

const requeueBatch = 100

// enqueueScript stores the payload and pushes the id, refusing ids already queued.
// KEYS: pending, delayed, payload. ARGV: id, request, attempt, due_ms (0 = now), enqueued_ms, channel.
var enqueueScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[2], ARGV[1]) or redis.call('LPOS', KEYS[1], ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[3], 'request', ARGV[2], 'attempt', ARGV[3], 'enqueued_at', ARGV[5])
if tonumber(ARGV[4]) > 0 then
  redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
else
  redis.call('LPUSH', KEYS[1], ARGV[1])
end
redis.call('PUBLISH', ARGV[6], ARGV[1])
return 1
`)

// claimScript promotes due delayed ids, pops the oldest pending id and leases it.
// KEYS: pending, delayed, leases. ARGV: now_ms, lease_ms, token, payload_prefix.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('LPUSH', KEYS[1], id)
end
local id = redis.call('RPOP', KEYS[1])
if not id then
  return false
end
local pkey = ARGV[4] .. id
if redis.call('EXISTS', pkey) == 0 then
  return {id, '', 0}
end
local attempt = redis.call('HINCRBY', pkey, 'attempt', 1)
redis.call('HSET', pkey, 'token', ARGV[3])
redis.call('ZADD', KEYS[3], tonumber(ARGV[1]) + tonumber(ARGV[2]), id)
return {id, redis.call('HGET', pkey, 'request'), attempt}
`)

// removeScript drops a queued (not leased) id.
// KEYS: pending, delayed, payload. ARGV: id.
var removeScript = redis.NewScript(`
local removed = redis.call('LREM', KEYS[1], 0, ARGV[1]) + redis.call('ZREM', KEYS[2], ARGV[1])
if removed > 0 then
  redis.call('DEL', KEYS[3])
  return 1
end
return 0
`)

// renewScript extends a lease when the caller still owns it.
// KEYS: leases, payload. ARGV: id, token, deadline_ms.
var renewScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then
  return 0
end
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

// ackScript releases a lease. The payload survives when the id was re-enqueued
// by the retry path while the lease was still held.
// KEYS: leases, payload, pending, delayed. ARGV: id, token.
var ackScript = redis.NewScript(`
local tok = redis.call('HGET', KEYS[2], 'token')
if tok and tok ~= ARGV[2] then
  return 0
end
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
if redis.call('ZSCORE', KEYS[4], ARGV[1]) or redis.call('LPOS', KEYS[3], ARGV[1]) then
  redis.call('HDEL', KEYS[2], 'token')
else
  redis.call('DEL', KEYS[2])
end
return 1
`)

// requeueScript returns expired leases to the front of the pending list, or
// dead-letters ids that used every attempt.
// KEYS: leases, pending, delayed. ARGV: now_ms, max_attempts, payload_prefix, limit.
var requeueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[4]))
local requeued = 0
local dead = {}
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local pkey = ARGV[3] .. id
  if redis.call('EXISTS', pkey) == 1 then
    if redis.call('ZSCORE', KEYS[3], id) or redis.call('LPOS', KEYS[2], id) then
      redis.call('HDEL', pkey, 'token')
    elseif tonumber(redis.call('HGET', pkey, 'attempt') or '0') >= tonumber(ARGV[2]) then
      redis.call('DEL', pkey)
      table.insert(dead, id)
    else
      redis.call('HDEL', pkey, 'token')
      redis.call('RPUSH', KEYS[2], id)
      requeued = requeued + 1
    end
  end
end
return {requeued, dead}
`)

// RedisJobQueueOptions configures RedisJobQueue.
type RedisJobQueueOptions struct {
	Client redis.UniversalClient
	QueueOptions
	// KeyPrefix namespaces queue keys. Defaults to "{scan:queue}:".
	KeyPrefix string
	// Notifier delivers enqueue wakeups. When nil a pub/sub backed notifier is created.
	Notifier job.Notifier
}

// RedisJobQueue is a lease-based FIFO on Redis: a pending LIST, a delayed ZSET
// scored by due time, a leases ZSET scored by lease deadline, and one payload
// hash per id. Every state change runs as a Lua script.
type RedisJobQueue struct {
	client   redis.UniversalClient
	opts     QueueOptions
	prefix   string
	notifier job.Notifier
	ownsNtf  bool
}

// NewRedisJobQueue constructs a RedisJobQueue.
func NewRedisJobQueue(opts RedisJobQueueOptions) (*RedisJobQueue, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	o, err := opts.QueueOptions.normalized()
	if err != nil {
		return nil, err
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultQueuePrefix
	}
	q := &RedisJobQueue{client: opts.Client, opts: o, prefix: prefix, notifier: opts.Notifier}
	if q.notifier == nil {
		ntf, nerr := job.NewNotifier(job.NotifierOptions{
			Waiter:     NewRedisQueueWaiter(opts.Client, q.channel()),
			WaitWindow: time.Minute,
		})
		if nerr != nil {
			return nil, nerr
		}
		q.notifier = ntf
		q.ownsNtf = true
	}
	return q, nil
}

// Close stops the notifier listeners owned by the queue.
func (q *RedisJobQueue) Close() {
	if q.ownsNtf {
		q.notifier.StopAll()
	}
}

func (q *RedisJobQueue) pendingKey() string { return q.prefix + "pending" }
func (q *RedisJobQueue) delayedKey() string { return q.prefix + "delayed" }
func (q *RedisJobQueue) leasesKey() string  { return q.prefix + "leases" }
func (q *RedisJobQueue) payloadPrefix() string {
	return q.prefix + "payload:"
}
func (q *RedisJobQueue) payloadKey(id string) string { return q.payloadPrefix() + id }
func (q *RedisJobQueue) channel() string             { return q.prefix + "notify" }

// Enqueue appends a fresh entry to the pending list.
func (q *RedisJobQueue) Enqueue(ctx context.Context, id string, req model.JobRequest) error {
	return q.EnqueueAfter(ctx, core.EnqueueParams{ID: id, Request: req})
}

// EnqueueAfter schedules an entry that becomes deliverable after Delay.
func (q *RedisJobQueue) EnqueueAfter(ctx context.Context, p core.EnqueueParams) error {
	if p.ID == "" {
		return ErrIDRequired
	}
	payload, err := json.Marshal(p.Request)
	if err != nil {
		return fmt.Errorf("marshal job request: %w", err)
	}
	now := q.opts.TimeProvider.Now()
	var due int64
	if p.Delay > 0 {
		due = now.Add(p.Delay).UnixMilli()
	}

	res, err := enqueueScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.delayedKey(), q.payloadKey(p.ID)},
		p.ID, payload, p.Attempt, due, now.UnixMilli(), q.channel(),
	).Int()
	if err != nil {
		return queueErr("enqueue", err)
	}
	if res == 0 {
		return ErrDuplicateIdentifier
	}
	return nil
}

// Dequeue blocks until an entry is leased or ctx ends.
func (q *RedisJobQueue) Dequeue(ctx context.Context) (*model.Delivery, error) {
	return waitForDelivery(ctx, q.notifier, q.opts.Topic, q.opts.PollInterval, q.tryClaim)
}

func (q *RedisJobQueue) tryClaim(ctx context.Context) (*model.Delivery, error) {
	for {
		now := q.opts.TimeProvider.Now()
		ttl := q.opts.Lease.Default()
		token := newLeaseToken()

		res, err := claimScript.Run(ctx, q.client,
			[]string{q.pendingKey(), q.delayedKey(), q.leasesKey()},
			now.UnixMilli(), ttl.Milliseconds(), token, q.payloadPrefix(),
		).Slice()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, model.ErrNoJobsAvailable
			}
			return nil, queueErr("claim", err)
		}
		d, ok, err := decodeClaim(res)
		if err != nil {
			return nil, err
		}
		if !ok {
			// orphaned id without payload; keep draining
			continue
		}
		d.LeaseToken = token
		d.LeaseExpiresAt = now.Add(ttl)
		return d, nil
	}
}

func decodeClaim(res []any) (*model.Delivery, bool, error) {
	if len(res) != 3 {
		return nil, false, fmt.Errorf("claim: unexpected reply length %d", len(res))
	}
	id, _ := res[0].(string)
	raw, _ := res[1].(string)
	attempt, _ := res[2].(int64)
	if id == "" || raw == "" {
		return nil, false, nil
	}
	var req model.JobRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, false, fmt.Errorf("decode queued request %s: %w", id, err)
	}
	return &model.Delivery{ID: id, Request: req, Attempt: int(attempt)}, true, nil
}

// Remove drops a pending or delayed entry. Leased or unknown ids report false.
func (q *RedisJobQueue) Remove(ctx context.Context, id string) (bool, error) {
	n, err := removeScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.delayedKey(), q.payloadKey(id)}, id,
	).Int()
	if err != nil {
		return false, queueErr("remove", err)
	}
	return n == 1, nil
}

// Renew extends the lease held by d.
func (q *RedisJobQueue) Renew(ctx context.Context, d *model.Delivery) error {
	deadline := q.opts.TimeProvider.Now().Add(q.opts.Lease.Default())
	n, err := renewScript.Run(ctx, q.client,
		[]string{q.leasesKey(), q.payloadKey(d.ID)},
		d.ID, d.LeaseToken, deadline.UnixMilli(),
	).Int()
	if err != nil {
		return queueErr("renew", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	d.LeaseExpiresAt = deadline
	return nil
}

// Ack releases the lease held by d.
func (q *RedisJobQueue) Ack(ctx context.Context, d *model.Delivery) error {
	n, err := ackScript.Run(ctx, q.client,
		[]string{q.leasesKey(), q.payloadKey(d.ID), q.pendingKey(), q.delayedKey()},
		d.ID, d.LeaseToken,
	).Int()
	if err != nil {
		return queueErr("ack", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// RequeueExpired returns stalled leases to the pending list or dead-letters them.
func (q *RedisJobQueue) RequeueExpired(ctx context.Context, now time.Time) (model.RequeueStats, error) {
	var stats model.RequeueStats
	for {
		res, err := requeueScript.Run(ctx, q.client,
			[]string{q.leasesKey(), q.pendingKey(), q.delayedKey()},
			now.UnixMilli(), q.opts.MaxAttempts, q.payloadPrefix(), requeueBatch,
		).Slice()
		if err != nil {
			return stats, queueErr("requeue expired", err)
		}
		requeued, dead, err := decodeRequeue(res)
		if err != nil {
			return stats, err
		}
		stats.Requeued += requeued
		stats.DeadLettered = append(stats.DeadLettered, dead...)
		if requeued+len(dead) < requeueBatch {
			break
		}
	}
	if stats.Requeued > 0 {
		if err := q.client.Publish(ctx, q.channel(), "requeue").Err(); err != nil {
			return stats, queueErr("publish", err)
		}
	}
	return stats, nil
}

func decodeRequeue(res []any) (int, []string, error) {
	if len(res) != 2 {
		return 0, nil, fmt.Errorf("requeue: unexpected reply length %d", len(res))
	}
	n, _ := res[0].(int64)
	rawDead, _ := res[1].([]any)
	dead := make([]string, 0, len(rawDead))
	for _, v := range rawDead {
		if id, ok := v.(string); ok {
			dead = append(dead, id)
		}
	}
	return int(n), dead, nil
}

// Stats reports queue depth.
func (q *RedisJobQueue) Stats(ctx context.Context) (model.QueueStats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.pendingKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	leased := pipe.ZCard(ctx, q.leasesKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return model.QueueStats{}, queueErr("stats", err)
	}
	return model.QueueStats{
		Pending: int(pending.Val()),
		Delayed: int(delayed.Val()),
		Leased:  int(leased.Val()),
	}, nil
}

func queueErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrQueueUnavailable, op, err)
}

// RedisQueueWaiter blocks on the queue's pub/sub channel.
type RedisQueueWaiter struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisQueueWaiter constructs a waiter on channel.
func NewRedisQueueWaiter(client redis.UniversalClient, channel string) *RedisQueueWaiter {
	return &RedisQueueWaiter{client: client, channel: channel}
}

// WaitForNotification returns after one message on the channel or when ctx ends.
func (w *RedisQueueWaiter) WaitForNotification(ctx context.Context, _ string) error {
	sub := w.client.Subscribe(ctx, w.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-sub.Channel():
		if !ok {
			return redis.ErrClosed
		}
		return nil
	}
}

var _ core.JobQueue = (*RedisJobQueue)(nil)
