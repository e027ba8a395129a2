package service

import (
	"context"
	"time"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// SaveService implements the unified save-all flow.
type SaveService struct {
	store storage.Store
	log   *logging.Logger
	now   func() time.Time
}

// NewSaveService creates a SaveService.
func NewSaveService(store storage.Store, log *logging.Logger) *SaveService {
	return &SaveService{store: store, log: log, now: time.Now}
}

// SaveAll builds the unified document from the per-feature payloads and
// replaces the (project, user) save row. Missing sub-documents default to
// empty; the stored shape is always complete. Last write wins.
func (s *SaveService) SaveAll(ctx context.Context, projectID, userID string, input model.SaveInput) (model.ProjectSave, error) {
	if _, err := requireOwnedProject(ctx, s.store, projectID, userID); err != nil {
		return model.ProjectSave{}, err
	}

	now := s.now().UTC()
	doc := model.NewSaveDocument(input, userID, now)

	saved, err := s.store.UpsertSave(ctx, model.ProjectSave{
		ProjectID: projectID,
		UserID:    userID,
		Document:  doc,
		SavedAt:   now,
	})
	if err != nil {
		return model.ProjectSave{}, errors.Upstream("database", err)
	}

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"project_id": projectID,
		"saved_at":   saved.SavedAt,
	}).Info("project saved")

	return saved, nil
}

// LoadAll returns the stored save document for the (project, user) pair.
func (s *SaveService) LoadAll(ctx context.Context, projectID, userID string) (model.ProjectSave, error) {
	if _, err := requireOwnedProject(ctx, s.store, projectID, userID); err != nil {
		return model.ProjectSave{}, err
	}
	saved, err := s.store.GetSave(ctx, projectID, userID)
	if err != nil {
		return model.ProjectSave{}, mapStoreError(err, "no save found for project")
	}
	return saved, nil
}
