package deco

import (
	"context"

	"github.com/google/uuid"
)

// CreateDecoParams are the fields for a new catalog entry.
type CreateDecoParams struct {
	Name        string
	DisplayName string
	Category    string
	AssetLink   string
	IsValid     bool
}

// PlacementPatch is a partial update of a placement. Nil fields are
// left untouched.
type PlacementPatch struct {
	IsPlaced    *bool
	Coordinates *Coordinates
}

// IsEmpty reports whether the patch carries no fields.
func (p PlacementPatch) IsEmpty() bool {
	return p.IsPlaced == nil && p.Coordinates == nil
}

// Store is the catalog and placement repository.
type Store interface {
	// CreateDeco inserts a catalog entry and returns its id.
	CreateDeco(ctx context.Context, params CreateDecoParams) (int64, error)

	// GetDeco returns one catalog entry.
	GetDeco(ctx context.Context, id int64) (*Deco, error)

	// AvailableDecos returns all valid catalog entries.
	AvailableDecos(ctx context.Context) ([]*Deco, error)

	// Grant ties a decoration to a diary entry, unplaced. Returns
	// ErrDuplicatePlacement if this diary already has this decoration
	// and ErrDecoNotFound if the decoration does not exist or is
	// invalid.
	Grant(ctx context.Context, ownerID uuid.UUID, diaryID, decoID int64) error

	// UpdatePlacement applies a partial update to a placement. An empty
	// patch is a no-op success.
	UpdatePlacement(ctx context.Context, ownerID uuid.UUID, diaryID, decoID int64, patch PlacementPatch) error

	// RoomByMonth returns the owner's placements joined with their
	// decorations, for diaries whose local date falls in year/month.
	RoomByMonth(ctx context.Context, ownerID uuid.UUID, year, month int) ([]*RoomItem, error)
}
