package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// duplicateRetries bounds the page-number allocation loop. Each retry
// re-counts after losing the unique-constraint race.
const duplicateRetries = 3

// PageService implements page load, save and duplication.
type PageService struct {
	store storage.Store
	log   *logging.Logger
	now   func() time.Time
}

// NewPageService creates a PageService.
func NewPageService(store storage.Store, log *logging.Logger) *PageService {
	return &PageService{store: store, log: log, now: time.Now}
}

// LoadPage returns the page identified by both ids, owned by userID.
func (s *PageService) LoadPage(ctx context.Context, projectID, pageID, userID string) (model.Page, error) {
	if pageID == "" {
		return model.Page{}, errors.Validation("page id is required")
	}
	if _, err := requireOwnedProject(ctx, s.store, projectID, userID); err != nil {
		return model.Page{}, err
	}
	p, err := s.store.GetPage(ctx, pageID, projectID)
	if err != nil {
		return model.Page{}, mapStoreError(err, "page not found")
	}
	return p, nil
}

// ListPages returns the project's pages ordered by page number.
func (s *PageService) ListPages(ctx context.Context, projectID, userID string) ([]model.Page, error) {
	if _, err := requireOwnedProject(ctx, s.store, projectID, userID); err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, projectID)
	if err != nil {
		return nil, errors.Upstream("database", err)
	}
	return pages, nil
}

// SavePageInput carries a save-page request.
type SavePageInput struct {
	ProjectID string
	PageID    string
	Content   json.RawMessage
	Status    string
}

// SavePage updates the page content in place when the (page, project) row
// exists, otherwise inserts a fresh first page. The whole content blob is
// replaced; there is no partial merge.
func (s *PageService) SavePage(ctx context.Context, in SavePageInput, userID string) (model.Page, error) {
	if in.PageID == "" {
		return model.Page{}, errors.Validation("page id is required")
	}
	if len(in.Content) == 0 {
		return model.Page{}, errors.Validation("page content is required")
	}
	if _, err := requireOwnedProject(ctx, s.store, in.ProjectID, userID); err != nil {
		return model.Page{}, err
	}

	status := in.Status
	if status == "" {
		status = model.PageStatusDraft
	}
	now := s.now().UTC()

	existing, err := s.store.GetPage(ctx, in.PageID, in.ProjectID)
	switch {
	case err == nil:
		existing.Content = in.Content
		existing.Status = status
		existing.UpdatedAt = now
		updated, err := s.store.UpdatePage(ctx, existing)
		if err != nil {
			return model.Page{}, mapStoreError(err, "page not found")
		}
		return updated, nil
	case stderrors.Is(err, storage.ErrNotFound):
		inserted, err := s.store.InsertPage(ctx, model.Page{
			ID:         in.PageID,
			ProjectID:  in.ProjectID,
			PageNumber: 1,
			Title:      "Nouvelle page",
			Content:    in.Content,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return model.Page{}, errors.Upstream("database", err)
		}
		return inserted, nil
	default:
		return model.Page{}, errors.Upstream("database", err)
	}
}

// DuplicatePage copies the source page into a new row with the next free
// page number. The number is claimed by inserting against the unique
// (project_id, page_number) constraint and re-counting on conflict, so two
// concurrent duplications never produce the same number.
func (s *PageService) DuplicatePage(ctx context.Context, projectID, sourcePageID, userID string) (model.Page, error) {
	if sourcePageID == "" {
		return model.Page{}, errors.Validation("source page id is required")
	}
	if _, err := requireOwnedProject(ctx, s.store, projectID, userID); err != nil {
		return model.Page{}, err
	}

	source, err := s.store.GetPage(ctx, sourcePageID, projectID)
	if err != nil {
		return model.Page{}, mapStoreError(err, "source page not found")
	}

	content, metadata := source.CloneContent()
	now := s.now().UTC()

	var created model.Page
	for attempt := 0; ; attempt++ {
		count, err := s.store.CountPages(ctx, projectID)
		if err != nil {
			return model.Page{}, errors.Upstream("database", err)
		}
		created, err = s.store.InsertPage(ctx, model.Page{
			ProjectID:  projectID,
			PageNumber: count + 1,
			Title:      fmt.Sprintf("%s (Copie)", source.Title),
			Content:    content,
			Status:     model.PageStatusDraft,
			Metadata:   metadata,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err == nil {
			break
		}
		if stderrors.Is(err, storage.ErrConflict) && attempt < duplicateRetries {
			continue
		}
		return model.Page{}, errors.Upstream("database", err)
	}

	// The counter on the project row is advisory. A failed refresh must not
	// undo a successful duplication.
	if err := s.store.UpdateProjectPageCount(ctx, projectID, created.PageNumber); err != nil {
		s.log.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"project_id": projectID,
		}).Warn("page count refresh failed after duplication")
	}

	return created, nil
}
