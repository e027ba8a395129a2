package service

import (
	"context"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// AssetService serves generated art assets (characters, decors, scenes).
type AssetService struct {
	store storage.Store
	log   *logging.Logger
}

// NewAssetService creates an AssetService.
func NewAssetService(store storage.Store, log *logging.Logger) *AssetService {
	return &AssetService{store: store, log: log}
}

// ListAssets returns the user's assets of one kind within a project.
func (s *AssetService) ListAssets(ctx context.Context, kind model.AssetKind, projectID, userID string) ([]model.Asset, error) {
	if !kind.Valid() {
		return nil, errors.Validation("unknown asset kind")
	}
	if _, err := requireOwnedProject(ctx, s.store, projectID, userID); err != nil {
		return nil, err
	}
	assets, err := s.store.ListAssets(ctx, kind, projectID, userID)
	if err != nil {
		return nil, errors.Upstream("database", err)
	}
	return assets, nil
}

// GetAsset returns one asset scoped to its project and owner.
func (s *AssetService) GetAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) (model.Asset, error) {
	if !kind.Valid() {
		return model.Asset{}, errors.Validation("unknown asset kind")
	}
	if id == "" {
		return model.Asset{}, errors.Validation("asset id is required")
	}
	if _, err := requireOwnedProject(ctx, s.store, projectID, userID); err != nil {
		return model.Asset{}, err
	}
	a, err := s.store.GetAsset(ctx, kind, id, projectID, userID)
	if err != nil {
		return model.Asset{}, mapStoreError(err, "asset not found")
	}
	return a, nil
}

// DeleteAsset removes one asset scoped to its project and owner.
func (s *AssetService) DeleteAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) error {
	if !kind.Valid() {
		return errors.Validation("unknown asset kind")
	}
	if id == "" {
		return errors.Validation("asset id is required")
	}
	if _, err := requireOwnedProject(ctx, s.store, projectID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteAsset(ctx, kind, id, projectID, userID); err != nil {
		return mapStoreError(err, "asset not found")
	}
	return nil
}
