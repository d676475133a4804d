package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/recordiary/backend/internal/deco"
	"github.com/recordiary/backend/internal/middleware"
)

// GrantDecoRequest ties a decoration to a diary entry.
type GrantDecoRequest struct {
	DiaryID int64 `json:"diary_id"`
	DecoID  int64 `json:"deco_id"`
}

// PlaceDecoRequest updates a placement. Omitted fields are untouched.
type PlaceDecoRequest struct {
	DiaryID     int64             `json:"diary_id"`
	DecoID      int64             `json:"deco_id"`
	IsPlaced    *bool             `json:"is_placed,omitempty"`
	Coordinates *deco.Coordinates `json:"coordinates,omitempty"`
}

// RoomHandlers holds dependencies for room HTTP handlers.
type RoomHandlers struct {
	store deco.Store
}

// NewRoomHandlers creates a new RoomHandlers instance.
func NewRoomHandlers(store deco.Store) *RoomHandlers {
	return &RoomHandlers{store: store}
}

// Room handles /room: GET reads a month's room, POST grants a
// decoration, PUT moves or toggles one.
func (h *RoomHandlers) Room(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getRoom(w, r)
	case http.MethodPost:
		h.grantDeco(w, r)
	case http.MethodPut:
		h.placeDeco(w, r)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// getRoom handles GET /room?user_id=&year=&month=.
func (h *RoomHandlers) getRoom(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	year, month, ok := parseYearMonth(w, r)
	if !ok {
		return
	}

	items, err := h.store.RoomByMonth(r.Context(), ownerID, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to get room", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to read the room")
		return
	}
	if items == nil {
		items = []*deco.RoomItem{}
	}
	writeJSON(w, r.Context(), http.StatusOK, items)
}

// grantDeco handles POST /room?user_id= with a JSON body.
func (h *RoomHandlers) grantDeco(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req GrantDecoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid JSON body")
		return
	}
	if req.DiaryID <= 0 || req.DecoID <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "diary_id and deco_id are required")
		return
	}

	err := h.store.Grant(r.Context(), ownerID, req.DiaryID, req.DecoID)
	if err != nil {
		switch {
		case errors.Is(err, deco.ErrDecoNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Deco not found")
		case errors.Is(err, deco.ErrDiaryNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Diary not found")
		case errors.Is(err, deco.ErrDuplicatePlacement):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "This diary already has this deco")
		default:
			slog.ErrorContext(r.Context(), "failed to grant deco", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to grant the deco")
		}
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]string{"status": "granted"})
}

// placeDeco handles PUT /room?user_id= with a JSON body.
func (h *RoomHandlers) placeDeco(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req PlaceDecoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid JSON body")
		return
	}
	if req.DiaryID <= 0 || req.DecoID <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "diary_id and deco_id are required")
		return
	}
	if req.Coordinates != nil {
		if err := req.Coordinates.Validate(); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "orientation must be between 0 and 3")
			return
		}
	}

	patch := deco.PlacementPatch{
		IsPlaced:    req.IsPlaced,
		Coordinates: req.Coordinates,
	}
	err := h.store.UpdatePlacement(r.Context(), ownerID, req.DiaryID, req.DecoID, patch)
	if err != nil {
		if errors.Is(err, deco.ErrPlacementNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Placement not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to update placement", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to update the placement")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]string{"status": "updated"})
}
