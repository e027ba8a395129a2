// Package service implements the application use cases on top of the storage
// interfaces. Handlers stay thin; ownership checks and error mapping live
// here.
package service

import (
	"context"
	stderrors "errors"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// requireOwnedProject loads projectID and verifies userID owns it. A missing
// or foreign project is reported as NotFound so callers cannot probe for
// other users' project ids.
func requireOwnedProject(ctx context.Context, store storage.ProjectStore, projectID, userID string) (model.Project, error) {
	if projectID == "" {
		return model.Project{}, errors.Validation("project id is required")
	}
	p, err := store.GetProject(ctx, projectID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return model.Project{}, errors.NotFound("project not found")
		}
		return model.Project{}, errors.Upstream("database", err)
	}
	if !p.OwnedBy(userID) {
		return model.Project{}, errors.NotFound("project not found")
	}
	return p, nil
}

// mapStoreError converts a storage error into the service taxonomy, using
// notFoundMsg for the absent-row case.
func mapStoreError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound(notFoundMsg)
	}
	return errors.Upstream("database", err)
}
