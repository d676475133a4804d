package deco

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recordiary/backend/internal/diary"
)

type placementKey struct {
	ownerID uuid.UUID
	diaryID int64
	decoID  int64
}

// InMemoryStore is an in-memory implementation of Store.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu         sync.RWMutex
	decos      map[int64]*Deco
	placements map[placementKey]*Placement
	nextID     int64

	// diaries resolves which diaries fall in a month; the SQL
	// implementation does this with a join.
	diaries diary.Store
}

// NewInMemoryStore creates a new in-memory deco store. diaries is used
// to resolve the month filter of RoomByMonth.
func NewInMemoryStore(diaries diary.Store) *InMemoryStore {
	return &InMemoryStore{
		decos:      make(map[int64]*Deco),
		placements: make(map[placementKey]*Placement),
		nextID:     1,
		diaries:    diaries,
	}
}

// CreateDeco inserts a catalog entry and returns its id.
func (s *InMemoryStore) CreateDeco(ctx context.Context, params CreateDecoParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	now := time.Now().UTC()
	s.decos[id] = &Deco{
		ID:          id,
		CreatedAt:   now,
		UpdatedAt:   now,
		Name:        params.Name,
		DisplayName: params.DisplayName,
		Category:    params.Category,
		AssetLink:   params.AssetLink,
		IsValid:     params.IsValid,
	}
	return id, nil
}

// GetDeco returns one catalog entry.
func (s *InMemoryStore) GetDeco(ctx context.Context, id int64) (*Deco, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.decos[id]
	if !ok {
		return nil, ErrDecoNotFound
	}
	copied := *d
	return &copied, nil
}

// AvailableDecos returns all valid catalog entries.
func (s *InMemoryStore) AvailableDecos(ctx context.Context) ([]*Deco, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Deco, 0)
	for _, d := range s.decos {
		if d.IsValid {
			copied := *d
			result = append(result, &copied)
		}
	}
	return result, nil
}

// Grant ties a decoration to a diary entry, unplaced. The diary must
// exist and belong to the owner; the SQL implementation enforces this
// with a foreign key.
func (s *InMemoryStore) Grant(ctx context.Context, ownerID uuid.UUID, diaryID, decoID int64) error {
	if _, err := s.diaries.Get(ctx, ownerID, diaryID); err != nil {
		if errors.Is(err, diary.ErrDiaryNotFound) {
			return ErrDiaryNotFound
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decos[decoID]
	if !ok || !d.IsValid {
		return ErrDecoNotFound
	}

	key := placementKey{ownerID: ownerID, diaryID: diaryID, decoID: decoID}
	if _, exists := s.placements[key]; exists {
		return ErrDuplicatePlacement
	}
	s.placements[key] = &Placement{
		OwnerID: ownerID,
		DiaryID: diaryID,
		DecoID:  decoID,
	}
	return nil
}

// UpdatePlacement applies a partial update to a placement.
func (s *InMemoryStore) UpdatePlacement(ctx context.Context, ownerID uuid.UUID, diaryID, decoID int64, patch PlacementPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := placementKey{ownerID: ownerID, diaryID: diaryID, decoID: decoID}
	p, ok := s.placements[key]
	if !ok {
		return ErrPlacementNotFound
	}
	if patch.IsPlaced != nil {
		p.IsPlaced = *patch.IsPlaced
	}
	if patch.Coordinates != nil {
		coords := *patch.Coordinates
		p.Coordinates = &coords
	}
	return nil
}

// RoomByMonth returns the owner's placements joined with their
// decorations for the month. The month filter runs on the diary's
// local date, matching the SQL join on local_date.
func (s *InMemoryStore) RoomByMonth(ctx context.Context, ownerID uuid.UUID, year, month int) ([]*RoomItem, error) {
	s.mu.RLock()
	seen := make(map[int64]bool)
	ids := make([]int64, 0)
	for key := range s.placements {
		if key.ownerID == ownerID && !seen[key.diaryID] {
			seen[key.diaryID] = true
			ids = append(ids, key.diaryID)
		}
	}
	s.mu.RUnlock()

	diaries, err := s.diaries.GetMany(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}
	inMonth := make(map[int64]bool, len(diaries))
	for _, d := range diaries {
		y, m, _ := time.Time(d.LocalDate).Date()
		if y == year && int(m) == month {
			inMonth[d.ID] = true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*RoomItem, 0)
	for key, p := range s.placements {
		if key.ownerID != ownerID || !inMonth[key.diaryID] {
			continue
		}
		d, ok := s.decos[key.decoID]
		if !ok {
			continue
		}
		item := &RoomItem{
			DiaryID:  p.DiaryID,
			Deco:     *d,
			IsPlaced: p.IsPlaced,
		}
		if p.Coordinates != nil {
			coords := *p.Coordinates
			item.Coordinates = &coords
		}
		result = append(result, item)
	}
	return result, nil
}
