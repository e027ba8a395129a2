// Package storage defines the persistence interfaces and their backends:
// Supabase (hosted), Postgres (self-hosted) and an in-memory store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mangaka-ai/mangaka-server/internal/model"
)

// Sentinel errors every backend maps its provider errors onto.
var (
	ErrNotFound = errors.New("storage: not found")
	ErrConflict = errors.New("storage: conflict")
)

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	GetProject(ctx context.Context, id string) (model.Project, error)
	ListProjects(ctx context.Context, userID string) ([]model.Project, error)
	// UpdateProjectPageCount refreshes the cached page counter.
	UpdateProjectPageCount(ctx context.Context, id string, count int) error
}

// PageStore persists comic pages.
type PageStore interface {
	// GetPage returns ErrNotFound unless a row matches both ids.
	GetPage(ctx context.Context, pageID, projectID string) (model.Page, error)
	ListPages(ctx context.Context, projectID string) ([]model.Page, error)
	CountPages(ctx context.Context, projectID string) (int, error)
	// InsertPage returns ErrConflict on a duplicate id or a duplicate
	// (project_id, page_number) pair.
	InsertPage(ctx context.Context, p model.Page) (model.Page, error)
	// UpdatePage replaces content/status/metadata in place; ErrNotFound when
	// the row is absent.
	UpdatePage(ctx context.Context, p model.Page) (model.Page, error)
}

// SaveStore persists unified save blobs.
type SaveStore interface {
	// UpsertSave replaces the whole row keyed on (project_id, user_id).
	UpsertSave(ctx context.Context, s model.ProjectSave) (model.ProjectSave, error)
	GetSave(ctx context.Context, projectID, userID string) (model.ProjectSave, error)
}

// DraftStore persists transient autosave drafts.
type DraftStore interface {
	// DeleteDraft removes at most one row; deleting an absent draft is not an
	// error.
	DeleteDraft(ctx context.Context, pageID, userID, sessionID string) error
	// DeleteDraftsBefore removes drafts older than cutoff, returning the count.
	DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// QuotaStore persists per-user generation quotas.
type QuotaStore interface {
	GetQuota(ctx context.Context, userID string) (model.UserQuota, error)
	InsertQuota(ctx context.Context, q model.UserQuota) (model.UserQuota, error)
	UpdateQuota(ctx context.Context, q model.UserQuota) (model.UserQuota, error)
	// ListQuotasDueForReset returns quotas whose reset date has passed.
	ListQuotasDueForReset(ctx context.Context, now time.Time) ([]model.UserQuota, error)
}

// AssetStore persists generated art assets, one table per kind.
type AssetStore interface {
	ListAssets(ctx context.Context, kind model.AssetKind, projectID, userID string) ([]model.Asset, error)
	GetAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) (model.Asset, error)
	InsertAsset(ctx context.Context, kind model.AssetKind, a model.Asset) (model.Asset, error)
	DeleteAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) error
}

// SubscriptionStore mirrors payment provider subscription state.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, s model.Subscription) (model.Subscription, error)
	GetSubscriptionByProviderID(ctx context.Context, providerID string) (model.Subscription, error)
	GetSubscriptionForUser(ctx context.Context, userID string) (model.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, providerID, status string, periodEnd time.Time) error
}

// Store aggregates every persistence interface behind one backend.
type Store interface {
	ProjectStore
	PageStore
	SaveStore
	DraftStore
	QuotaStore
	AssetStore
	SubscriptionStore

	Ping(ctx context.Context) error
	Close() error
}
