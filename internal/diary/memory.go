package diary

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of Store.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*Diary
	nextID  int64
}

// NewInMemoryStore creates a new in-memory diary store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[int64]*Diary),
		nextID:  1,
	}
}

// Begin opens a staged transactional scope. Ids are allocated immediately
// (the capture path needs them before commit to derive the blob key), but
// created records only become visible to reads once Commit is called.
func (s *InMemoryStore) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{store: s, staged: make(map[int64]*Diary)}, nil
}

// Update applies a partial update as its own atomic scope.
func (s *InMemoryStore) Update(ctx context.Context, id int64, patch Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrDiaryNotFound
	}
	patch.apply(record)
	return nil
}

// Get returns one record owned by ownerID.
func (s *InMemoryStore) Get(ctx context.Context, ownerID uuid.UUID, id int64) (*Diary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok || record.OwnerID != ownerID {
		return nil, ErrDiaryNotFound
	}
	return record.clone(), nil
}

// GetMany returns the owner's records matching ids.
func (s *InMemoryStore) GetMany(ctx context.Context, ownerID uuid.UUID, ids []int64) ([]*Diary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Diary, 0, len(ids))
	for _, id := range ids {
		if record, ok := s.records[id]; ok && record.OwnerID == ownerID {
			result = append(result, record.clone())
		}
	}
	return result, nil
}

// GetByMonth returns the owner's records created in the given year/month.
func (s *InMemoryStore) GetByMonth(ctx context.Context, ownerID uuid.UUID, year, month int) ([]*Diary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Diary
	for _, record := range s.records {
		if record.OwnerID != ownerID {
			continue
		}
		if record.CreatedAt.Year() == year && int(record.CreatedAt.Month()) == month {
			result = append(result, record.clone())
		}
	}
	return result, nil
}

// memoryTx stages writes until Commit. Creates allocate real ids up front;
// updates against records outside the scope are staged against a copy of
// the published record.
type memoryTx struct {
	store  *InMemoryStore
	staged map[int64]*Diary
	done   bool
}

// Create stages a new record and returns its id.
func (tx *memoryTx) Create(ctx context.Context, params CreateParams) (int64, error) {
	tx.store.mu.Lock()
	id := tx.store.nextID
	tx.store.nextID++
	tx.store.mu.Unlock()

	now := time.Now().UTC()
	tx.staged[id] = &Diary{
		ID:        id,
		OwnerID:   params.OwnerID,
		CreatedAt: now,
		LocalDate: LocalDate(now),
		IsPrivate: params.IsPrivate,
	}
	return id, nil
}

// Update applies a patch inside the transaction.
func (tx *memoryTx) Update(ctx context.Context, id int64, patch Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	if record, ok := tx.staged[id]; ok {
		patch.apply(record)
		return nil
	}

	tx.store.mu.RLock()
	published, ok := tx.store.records[id]
	tx.store.mu.RUnlock()
	if !ok {
		return ErrDiaryNotFound
	}

	copy := published.clone()
	patch.apply(copy)
	tx.staged[id] = copy
	return nil
}

// Commit publishes all staged writes.
func (tx *memoryTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for id, record := range tx.staged {
		tx.store.records[id] = record
	}
	return nil
}

// Rollback discards staged writes. No-op after Commit.
func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.staged = nil
	return nil
}
