// Package deco provides the decoration catalog and the per-diary room
// placements: users earn a decoration for a diary entry and arrange it
// in their monthly room view.
package deco

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Catalog and placement errors.
var (
	ErrDecoNotFound       = errors.New("deco not found")
	ErrDiaryNotFound      = errors.New("diary not found for placement")
	ErrPlacementNotFound  = errors.New("placement not found")
	ErrDuplicatePlacement = errors.New("deco already granted for this diary")
	ErrInvalidOrientation = errors.New("orientation must be between 0 and 3")
)

// Deco is one catalog entry. AssetLink points at the 3D model in blob
// storage. Invalid entries stay in the catalog but are never handed out.
type Deco struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Category    string    `json:"category"`
	AssetLink   string    `json:"asset_link"`
	IsValid     bool      `json:"is_valid"`
}

// Coordinates is the position of a placed decoration in the room.
// Orientation is a quarter-turn count, 0 through 3.
type Coordinates struct {
	X           int64 `json:"x"`
	Y           int64 `json:"y"`
	Z           int64 `json:"z"`
	Orientation int   `json:"orientation"`
}

// Validate checks the orientation range.
func (c Coordinates) Validate() error {
	if c.Orientation < 0 || c.Orientation > 3 {
		return fmt.Errorf("%w: got %d", ErrInvalidOrientation, c.Orientation)
	}
	return nil
}

// Placement ties a granted decoration to a diary entry. Coordinates are
// nil until the user places the decoration in the room.
type Placement struct {
	OwnerID     uuid.UUID    `json:"user_id"`
	DiaryID     int64        `json:"diary_id"`
	DecoID      int64        `json:"deco_id"`
	IsPlaced    bool         `json:"is_placed"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// RoomItem is one entry of the monthly room view: the decoration joined
// with its placement state.
type RoomItem struct {
	DiaryID     int64        `json:"diary_id"`
	Deco        Deco         `json:"deco"`
	IsPlaced    bool         `json:"is_placed"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}
