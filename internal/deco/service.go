package deco

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/recordiary/backend/internal/storage"
)

// ErrNoModel is returned when a catalog upload carries no model bytes.
var ErrNoModel = errors.New("no model provided")

// ErrNoName is returned when a catalog upload has an empty name. The
// name seeds the storage key, so it cannot be blank.
var ErrNoName = errors.New("deco name is required")

// CreateDecoRequest is one catalog upload.
type CreateDecoRequest struct {
	Name        string
	DisplayName string
	Category    string
	Model       []byte
	ContentType string
	IsValid     bool
}

// Service orchestrates catalog uploads: store the model asset, then
// insert the catalog row pointing at it.
type Service struct {
	store  Store
	blobs  storage.BlobStore
	logger *slog.Logger
}

// NewService creates the catalog service.
func NewService(store Store, blobs storage.BlobStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, blobs: blobs, logger: logger}
}

// CreateDeco uploads the model and creates the catalog entry. The asset
// goes to storage first, so an existing catalog row always points at a
// stored model; a failed insert leaves an orphaned asset that the next
// upload under the same name overwrites.
func (s *Service) CreateDeco(ctx context.Context, req CreateDecoRequest) (int64, error) {
	if req.Name == "" {
		return 0, ErrNoName
	}
	if len(req.Model) == 0 {
		return 0, ErrNoModel
	}

	key := storage.ModelObjectKey(req.Name)
	url, err := s.blobs.Put(ctx, key, req.Model, req.ContentType)
	if err != nil {
		return 0, fmt.Errorf("upload model %q: %w", req.Name, err)
	}

	id, err := s.store.CreateDeco(ctx, CreateDecoParams{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Category:    req.Category,
		AssetLink:   url,
		IsValid:     req.IsValid,
	})
	if err != nil {
		return 0, fmt.Errorf("create deco %q: %w", req.Name, err)
	}
	return id, nil
}
