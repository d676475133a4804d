package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/recordiary/backend/internal/deco"
	"github.com/recordiary/backend/internal/middleware"
	"github.com/recordiary/backend/internal/storage"
	"github.com/recordiary/backend/internal/validate"
)

// CreateDecoResponse is the body for a successful catalog upload.
type CreateDecoResponse struct {
	DecoID int64 `json:"deco_id"`
}

// DecoHandlers holds dependencies for decoration catalog HTTP handlers.
type DecoHandlers struct {
	catalog        *deco.Service
	store          deco.Store
	maxUploadBytes int64
}

// NewDecoHandlers creates a new DecoHandlers instance.
// maxUploadBytes <= 0 uses DefaultMaxUploadBytes.
func NewDecoHandlers(catalog *deco.Service, store deco.Store, maxUploadBytes int64) *DecoHandlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &DecoHandlers{
		catalog:        catalog,
		store:          store,
		maxUploadBytes: maxUploadBytes,
	}
}

// Deco handles /deco: POST uploads a catalog entry, GET reads one.
func (h *DecoHandlers) Deco(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createDeco(w, r)
	case http.MethodGet:
		h.getDeco(w, r)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// createDeco handles POST /deco?name=&display_name=&category=&is_valid=
// with the 3D model as a multipart file field.
func (h *DecoHandlers) createDeco(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name, err := validate.DecoName(query.Get("name"))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "name must be 1-64 letters, numbers, dashes or underscores")
		return
	}
	displayName, err := validate.DisplayName(query.Get("display_name"))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "display_name is too long")
		return
	}
	category, err := validate.Category(query.Get("category"))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "category contains invalid characters")
		return
	}

	isValid := true
	if v := query.Get("is_valid"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "is_valid must be a boolean")
			return
		}
		isValid = parsed
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	model, contentType, err := firstFilePart(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePayloadTooLarge)
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Upload exceeds the size limit")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Multipart body with one model file is required")
		return
	}

	if contentType == "" {
		contentType = validate.MIMEOctetStream
	}
	contentType, err = validate.ModelFile(contentType, int64(len(model)))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Upload must be a 3D model asset")
		return
	}

	id, err := h.catalog.CreateDeco(r.Context(), deco.CreateDecoRequest{
		Name:        name,
		DisplayName: displayName,
		Category:    category,
		Model:       model,
		ContentType: contentType,
		IsValid:     isValid,
	})
	if err != nil {
		switch {
		case errors.Is(err, deco.ErrNoModel), errors.Is(err, deco.ErrNoName):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Model file is empty")
		case errors.Is(err, storage.ErrStorage):
			slog.ErrorContext(r.Context(), "deco upload storage failure", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeStorage)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeStorage, "Failed to store the model")
		default:
			slog.ErrorContext(r.Context(), "deco creation failed", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to create the deco")
		}
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, CreateDecoResponse{DecoID: id})
}

// getDeco handles GET /deco?deco_id=.
func (h *DecoHandlers) getDeco(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("deco_id"), 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "deco_id must be an integer")
		return
	}

	d, err := h.store.GetDeco(r.Context(), id)
	if err != nil {
		if errors.Is(err, deco.ErrDecoNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Deco not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get deco", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to read the deco")
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, d)
}

// Available handles GET /deco/available.
func (h *DecoHandlers) Available(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	decos, err := h.store.AvailableDecos(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list available decos", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to list decos")
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, decos)
}
