package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// deadLetterKey is the redis list holding CBOR-encoded dead letters.
const deadLetterKey = "enrich:dead_letters"

// ErrDeadLetterStore wraps failures of the dead-letter backend.
var ErrDeadLetterStore = errors.New("dead letter store failure")

// DeadLetterStore persists descriptors of failed enrichment jobs so they
// can be re-triggered later. Implementations must be safe for concurrent
// use.
type DeadLetterStore interface {
	// Push appends a dead letter.
	Push(ctx context.Context, letter DeadLetter) error

	// Pop removes and returns the oldest dead letter. The second return
	// is false when the store is empty.
	Pop(ctx context.Context) (DeadLetter, bool, error)

	// Len returns the number of stored dead letters.
	Len(ctx context.Context) (int64, error)
}

// RedisDeadLetterStore keeps dead letters in a redis list, CBOR-encoded.
// Letters survive process restarts, which is the point: a crashed worker
// pool must not lose track of which records are missing enrichment.
type RedisDeadLetterStore struct {
	client *redis.Client
}

// NewRedisDeadLetterStore creates a redis-backed dead-letter store.
func NewRedisDeadLetterStore(client *redis.Client) *RedisDeadLetterStore {
	return &RedisDeadLetterStore{client: client}
}

// Push appends a dead letter to the redis list.
func (s *RedisDeadLetterStore) Push(ctx context.Context, letter DeadLetter) error {
	data, err := cbor.Marshal(letter)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrDeadLetterStore, err)
	}
	if err := s.client.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("%w: push: %v", ErrDeadLetterStore, err)
	}
	return nil
}

// Pop removes and returns the oldest dead letter.
func (s *RedisDeadLetterStore) Pop(ctx context.Context) (DeadLetter, bool, error) {
	data, err := s.client.RPop(ctx, deadLetterKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return DeadLetter{}, false, nil
		}
		return DeadLetter{}, false, fmt.Errorf("%w: pop: %v", ErrDeadLetterStore, err)
	}

	var letter DeadLetter
	if err := cbor.Unmarshal(data, &letter); err != nil {
		return DeadLetter{}, false, fmt.Errorf("%w: decode: %v", ErrDeadLetterStore, err)
	}
	return letter, true, nil
}

// Len returns the number of stored dead letters.
func (s *RedisDeadLetterStore) Len(ctx context.Context) (int64, error) {
	count, err := s.client.LLen(ctx, deadLetterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: len: %v", ErrDeadLetterStore, err)
	}
	return count, nil
}

// InMemoryDeadLetterStore is a bounded in-memory dead-letter store, used
// when no redis is configured and in tests. When full, the oldest letter
// is evicted.
type InMemoryDeadLetterStore struct {
	mu       sync.Mutex
	letters  []DeadLetter
	capacity int
}

// DefaultDeadLetterCapacity bounds the in-memory store.
const DefaultDeadLetterCapacity = 1024

// NewInMemoryDeadLetterStore creates an in-memory dead-letter store.
// capacity <= 0 uses DefaultDeadLetterCapacity.
func NewInMemoryDeadLetterStore(capacity int) *InMemoryDeadLetterStore {
	if capacity <= 0 {
		capacity = DefaultDeadLetterCapacity
	}
	return &InMemoryDeadLetterStore{capacity: capacity}
}

// Push appends a dead letter, evicting the oldest when full.
func (s *InMemoryDeadLetterStore) Push(ctx context.Context, letter DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.letters) >= s.capacity {
		s.letters = s.letters[1:]
	}
	s.letters = append(s.letters, letter)
	return nil
}

// Pop removes and returns the oldest dead letter.
func (s *InMemoryDeadLetterStore) Pop(ctx context.Context) (DeadLetter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.letters) == 0 {
		return DeadLetter{}, false, nil
	}
	letter := s.letters[0]
	s.letters = s.letters[1:]
	return letter, true, nil
}

// Len returns the number of stored dead letters.
func (s *InMemoryDeadLetterStore) Len(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.letters)), nil
}
