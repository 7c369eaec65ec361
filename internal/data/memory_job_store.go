package data

import (
	"context"
	"sync"
	"time"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

// MemoryJobStore is an in-process JobRecordStore. Records are copied on the
// way in and out so callers never share memory with the store.
type MemoryJobStore struct {
	mu        sync.Mutex
	records   map[string]*model.JobRecord
	retention time.Duration
	clock     TimeProvider
}

// NewMemoryJobStore constructs an empty in-memory store.
func NewMemoryJobStore(opts JobStoreOptions) *MemoryJobStore {
	return &MemoryJobStore{
		records:   make(map[string]*model.JobRecord),
		retention: opts.retention(),
		clock:     timeProviderOrDefault(opts.TimeProvider),
	}
}

// Create stores a new pending record.
func (s *MemoryJobStore) Create(ctx context.Context, id string, req model.JobRequest) (*model.JobRecord, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return nil, ErrDuplicateIdentifier
	}
	rec := model.NewJobRecord(id, req, s.clock.Now(), s.retention)
	s.records[id] = rec
	return rec.Clone(), nil
}

// Get returns a snapshot; expired records read as not found until swept.
func (s *MemoryJobStore) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Expired(s.clock.Now()) {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Update applies mutate under the store lock.
func (s *MemoryJobStore) Update(ctx context.Context, id string, mutate core.JobMutator) (*model.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	cur, ok := s.records[id]
	if !ok || cur.Expired(now) {
		return nil, ErrNotFound
	}
	next, err := applyMutation(cur, mutate, now, s.retention)
	if err != nil {
		return nil, err
	}
	s.records[id] = next
	return next.Clone(), nil
}

// Delete removes the record if present.
func (s *MemoryJobStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// PurgeExpired drops every record whose retention deadline has passed.
func (s *MemoryJobStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
			purged++
		}
	}
	return purged, nil
}

var _ core.JobRecordStore = (*MemoryJobStore)(nil)
