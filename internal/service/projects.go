package service

import (
	"context"
	"strings"
	"time"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// ProjectService serves project reads and creation for the editor shell.
type ProjectService struct {
	store storage.Store
	log   *logging.Logger
	now   func() time.Time
}

// NewProjectService creates a ProjectService.
func NewProjectService(store storage.Store, log *logging.Logger) *ProjectService {
	return &ProjectService{store: store, log: log, now: time.Now}
}

// ListProjects returns the user's projects, oldest first.
func (s *ProjectService) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	projects, err := s.store.ListProjects(ctx, userID)
	if err != nil {
		return nil, errors.Upstream("database", err)
	}
	return projects, nil
}

// GetProject returns one project owned by userID.
func (s *ProjectService) GetProject(ctx context.Context, projectID, userID string) (model.Project, error) {
	return requireOwnedProject(ctx, s.store, projectID, userID)
}

// CreateProject creates an empty project for userID.
func (s *ProjectService) CreateProject(ctx context.Context, userID, name string) (model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Project{}, errors.Validation("project name is required")
	}
	now := s.now().UTC()
	p, err := s.store.CreateProject(ctx, model.Project{
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.Project{}, errors.Upstream("database", err)
	}
	return p, nil
}
