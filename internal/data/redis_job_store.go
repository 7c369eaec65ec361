package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

const (
	defaultJobKeyPrefix  = "scan:job:"
	defaultUpdateRetries = 16
	minRecordTTL         = time.Second
)

// RedisJobStoreOptions configures RedisJobStore.
type RedisJobStoreOptions struct {
	Client redis.UniversalClient
	JobStoreOptions
	// KeyPrefix namespaces record keys. Defaults to "scan:job:".
	KeyPrefix string
	// MaxUpdateRetries bounds optimistic-lock retries before ErrConflict.
	MaxUpdateRetries int
}

// RedisJobStore keeps each JobRecord as a JSON document under its own key with
// a TTL matching the record's retention deadline. Updates use WATCH/MULTI so
// concurrent writers never interleave a read-modify-write.
type RedisJobStore struct {
	client     redis.UniversalClient
	prefix     string
	retention  time.Duration
	clock      TimeProvider
	maxRetries int
}

// NewRedisJobStore constructs a RedisJobStore.
func NewRedisJobStore(opts RedisJobStoreOptions) (*RedisJobStore, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultJobKeyPrefix
	}
	retries := opts.MaxUpdateRetries
	if retries <= 0 {
		retries = defaultUpdateRetries
	}
	return &RedisJobStore{
		client:     opts.Client,
		prefix:     prefix,
		retention:  opts.retention(),
		clock:      timeProviderOrDefault(opts.TimeProvider),
		maxRetries: retries,
	}, nil
}

func (s *RedisJobStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisJobStore) ttlFor(rec *model.JobRecord, now time.Time) time.Duration {
	ttl := rec.ExpiresAt.Sub(now)
	if ttl < minRecordTTL {
		return minRecordTTL
	}
	return ttl
}

// Create stores a new pending record with SET NX.
func (s *RedisJobStore) Create(ctx context.Context, id string, req model.JobRequest) (*model.JobRecord, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	now := s.clock.Now()
	rec := model.NewJobRecord(id, req, now, s.retention)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal job record: %w", err)
	}

	status, err := s.client.SetArgs(ctx, s.key(id), data, redis.SetArgs{Mode: "NX", TTL: s.ttlFor(rec, now)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDuplicateIdentifier
		}
		return nil, storeErr("redis set", err)
	}
	if status != "OK" {
		return nil, ErrDuplicateIdentifier
	}
	return rec, nil
}

// Get loads a record; expired documents read as not found.
func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, storeErr("redis get", err)
	}
	rec, err := s.decode(raw)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.clock.Now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Update performs an optimistic read-modify-write, retrying when another writer
// touched the key between WATCH and EXEC.
func (s *RedisJobStore) Update(ctx context.Context, id string, mutate core.JobMutator) (*model.JobRecord, error) {
	key := s.key(id)
	var (
		out     *model.JobRecord
		passErr error
	)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				passErr = ErrNotFound
				return passErr
			}
			return err
		}
		cur, err := s.decode(raw)
		if err != nil {
			passErr = err
			return err
		}
		now := s.clock.Now()
		if cur.Expired(now) {
			passErr = ErrNotFound
			return passErr
		}
		next, err := applyMutation(cur, mutate, now, s.retention)
		if err != nil {
			passErr = err
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal job record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttlFor(next, now))
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}

	for range s.maxRetries {
		passErr = nil
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return out, nil
		case passErr != nil:
			return nil, passErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, storeErr("redis update", err)
		}
	}
	return nil, ErrConflict
}

// Delete removes the record key.
func (s *RedisJobStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return storeErr("redis del", err)
	}
	return nil
}

// PurgeExpired is a no-op: Redis evicts keys when their TTL lapses, and reads
// double-check the deadline in between.
func (s *RedisJobStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Health checks the Redis connection.
func (s *RedisJobStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisJobStore) decode(raw []byte) (*model.JobRecord, error) {
	var rec model.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode job record: %w", err)
	}
	return &rec, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

var _ core.JobRecordStore = (*RedisJobStore)(nil)
