package service

import (
	"context"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// DraftService removes transient autosave drafts.
type DraftService struct {
	store storage.DraftStore
	log   *logging.Logger
}

// NewDraftService creates a DraftService.
func NewDraftService(store storage.DraftStore, log *logging.Logger) *DraftService {
	return &DraftService{store: store, log: log}
}

// CleanupDraft deletes the draft identified by the (page, user, session)
// triple. All three keys are validated before any storage call. Deleting an
// absent draft succeeds; the operation is idempotent.
func (s *DraftService) CleanupDraft(ctx context.Context, pageID, userID, sessionID string) error {
	if pageID == "" {
		return errors.Validation("page id is required")
	}
	if userID == "" {
		return errors.Validation("user id is required")
	}
	if sessionID == "" {
		return errors.Validation("session id is required")
	}
	if err := s.store.DeleteDraft(ctx, pageID, userID, sessionID); err != nil {
		return errors.Upstream("database", err)
	}
	return nil
}
