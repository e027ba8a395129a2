package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/supabase"
)

// SupabaseStore implements Store against the hosted Supabase project over
// PostgREST. Provider errors are mapped onto the storage sentinels so the
// service layer stays backend-agnostic.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore creates a Supabase-backed store.
func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{client: client}
}

// Ping verifies the REST endpoint answers.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	_, err := s.client.Database().From("projects").Select("id").Limit(1).Execute(ctx)
	return mapError(err)
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (s *SupabaseStore) Close() error { return nil }

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if supabase.IsNoRows(err) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if supabase.IsConflict(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// firstOf returns the first element of rows or ErrNotFound.
func firstOf[T any](rows []T) (T, error) {
	var zero T
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// --- ProjectStore -----------------------------------------------------------

func (s *SupabaseStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var rows []model.Project
	err := s.client.Database().From("projects").Insert(p).ExecuteInto(ctx, &rows)
	if err != nil {
		return model.Project{}, mapError(err)
	}
	return firstOf(rows)
}

func (s *SupabaseStore) GetProject(ctx context.Context, id string) (model.Project, error) {
	var p model.Project
	err := s.client.Database().From("projects").Select("*").Eq("id", id).Single().ExecuteInto(ctx, &p)
	if err != nil {
		return model.Project{}, mapError(err)
	}
	return p, nil
}

func (s *SupabaseStore) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	var rows []model.Project
	err := s.client.Database().From("projects").
		Select("*").
		Eq("user_id", userID).
		Order("created_at", supabase.OrderAsc).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (s *SupabaseStore) UpdateProjectPageCount(ctx context.Context, id string, count int) error {
	patch := map[string]interface{}{
		"pages_count": count,
		"updated_at":  time.Now().UTC(),
	}
	var rows []model.Project
	err := s.client.Database().From("projects").Update(patch).Eq("id", id).ExecuteInto(ctx, &rows)
	if err != nil {
		return mapError(err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// --- PageStore --------------------------------------------------------------

func (s *SupabaseStore) GetPage(ctx context.Context, pageID, projectID string) (model.Page, error) {
	var p model.Page
	err := s.client.Database().From("pages").
		Select("*").
		Eq("id", pageID).
		Eq("project_id", projectID).
		Single().
		ExecuteInto(ctx, &p)
	if err != nil {
		return model.Page{}, mapError(err)
	}
	return p, nil
}

func (s *SupabaseStore) ListPages(ctx context.Context, projectID string) ([]model.Page, error) {
	var rows []model.Page
	err := s.client.Database().From("pages").
		Select("*").
		Eq("project_id", projectID).
		Order("page_number", supabase.OrderAsc).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (s *SupabaseStore) CountPages(ctx context.Context, projectID string) (int, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	err := s.client.Database().From("pages").
		Select("id").
		Eq("project_id", projectID).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return 0, mapError(err)
	}
	return len(rows), nil
}

func (s *SupabaseStore) InsertPage(ctx context.Context, p model.Page) (model.Page, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var rows []model.Page
	err := s.client.Database().From("pages").Insert(p).ExecuteInto(ctx, &rows)
	if err != nil {
		return model.Page{}, mapError(err)
	}
	return firstOf(rows)
}

func (s *SupabaseStore) UpdatePage(ctx context.Context, p model.Page) (model.Page, error) {
	patch := map[string]interface{}{
		"content":    p.Content,
		"status":     p.Status,
		"updated_at": p.UpdatedAt,
	}
	if len(p.Metadata) > 0 {
		patch["metadata"] = p.Metadata
	}
	var rows []model.Page
	err := s.client.Database().From("pages").
		Update(patch).
		Eq("id", p.ID).
		Eq("project_id", p.ProjectID).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return model.Page{}, mapError(err)
	}
	return firstOf(rows)
}

// --- SaveStore --------------------------------------------------------------

func (s *SupabaseStore) UpsertSave(ctx context.Context, save model.ProjectSave) (model.ProjectSave, error) {
	if save.ID == "" {
		save.ID = uuid.NewString()
	}
	var rows []model.ProjectSave
	err := s.client.Database().From("project_saves").
		Upsert(save, "project_id,user_id").
		ExecuteInto(ctx, &rows)
	if err != nil {
		return model.ProjectSave{}, mapError(err)
	}
	return firstOf(rows)
}

func (s *SupabaseStore) GetSave(ctx context.Context, projectID, userID string) (model.ProjectSave, error) {
	var save model.ProjectSave
	err := s.client.Database().From("project_saves").
		Select("*").
		Eq("project_id", projectID).
		Eq("user_id", userID).
		Single().
		ExecuteInto(ctx, &save)
	if err != nil {
		return model.ProjectSave{}, mapError(err)
	}
	return save, nil
}

// --- DraftStore -------------------------------------------------------------

func (s *SupabaseStore) DeleteDraft(ctx context.Context, pageID, userID, sessionID string) error {
	_, err := s.client.Database().From("drafts").
		Delete().
		Eq("page_id", pageID).
		Eq("user_id", userID).
		Eq("session_id", sessionID).
		Execute(ctx)
	// A delete that matches nothing returns an empty set, not an error.
	return mapError(err)
}

func (s *SupabaseStore) DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	err := s.client.Database().From("drafts").
		Delete().
		Lt("created_at", cutoff.UTC().Format(time.RFC3339)).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return 0, mapError(err)
	}
	return len(rows), nil
}

// --- QuotaStore -------------------------------------------------------------

func (s *SupabaseStore) GetQuota(ctx context.Context, userID string) (model.UserQuota, error) {
	var q model.UserQuota
	err := s.client.Database().From("user_quotas").
		Select("*").
		Eq("user_id", userID).
		Single().
		ExecuteInto(ctx, &q)
	if err != nil {
		return model.UserQuota{}, mapError(err)
	}
	return q, nil
}

func (s *SupabaseStore) InsertQuota(ctx context.Context, q model.UserQuota) (model.UserQuota, error) {
	var rows []model.UserQuota
	err := s.client.Database().From("user_quotas").Insert(q).ExecuteInto(ctx, &rows)
	if err != nil {
		return model.UserQuota{}, mapError(err)
	}
	return firstOf(rows)
}

func (s *SupabaseStore) UpdateQuota(ctx context.Context, q model.UserQuota) (model.UserQuota, error) {
	var rows []model.UserQuota
	err := s.client.Database().From("user_quotas").
		Update(q).
		Eq("user_id", q.UserID).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return model.UserQuota{}, mapError(err)
	}
	return firstOf(rows)
}

func (s *SupabaseStore) ListQuotasDueForReset(ctx context.Context, now time.Time) ([]model.UserQuota, error) {
	var rows []model.UserQuota
	err := s.client.Database().From("user_quotas").
		Select("*").
		Lt("reset_at", now.UTC().Format(time.RFC3339)).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// --- AssetStore -------------------------------------------------------------

func (s *SupabaseStore) ListAssets(ctx context.Context, kind model.AssetKind, projectID, userID string) ([]model.Asset, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown asset kind %q", kind)
	}
	var rows []model.Asset
	err := s.client.Database().From(kind.Table()).
		Select("*").
		Eq("project_id", projectID).
		Eq("user_id", userID).
		Order("created_at", supabase.OrderAsc).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (s *SupabaseStore) GetAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) (model.Asset, error) {
	if !kind.Valid() {
		return model.Asset{}, fmt.Errorf("unknown asset kind %q", kind)
	}
	var a model.Asset
	err := s.client.Database().From(kind.Table()).
		Select("*").
		Eq("id", id).
		Eq("project_id", projectID).
		Eq("user_id", userID).
		Single().
		ExecuteInto(ctx, &a)
	if err != nil {
		return model.Asset{}, mapError(err)
	}
	return a, nil
}

func (s *SupabaseStore) InsertAsset(ctx context.Context, kind model.AssetKind, a model.Asset) (model.Asset, error) {
	if !kind.Valid() {
		return model.Asset{}, fmt.Errorf("unknown asset kind %q", kind)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var rows []model.Asset
	err := s.client.Database().From(kind.Table()).Insert(a).ExecuteInto(ctx, &rows)
	if err != nil {
		return model.Asset{}, mapError(err)
	}
	return firstOf(rows)
}

func (s *SupabaseStore) DeleteAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown asset kind %q", kind)
	}
	var rows []struct {
		ID string `json:"id"`
	}
	err := s.client.Database().From(kind.Table()).
		Delete().
		Eq("id", id).
		Eq("project_id", projectID).
		Eq("user_id", userID).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return mapError(err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// --- SubscriptionStore ------------------------------------------------------

func (s *SupabaseStore) UpsertSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	var rows []model.Subscription
	err := s.client.Database().From("subscriptions").
		Upsert(sub, "stripe_subscription_id").
		ExecuteInto(ctx, &rows)
	if err != nil {
		return model.Subscription{}, mapError(err)
	}
	return firstOf(rows)
}

func (s *SupabaseStore) GetSubscriptionByProviderID(ctx context.Context, providerID string) (model.Subscription, error) {
	var sub model.Subscription
	err := s.client.Database().From("subscriptions").
		Select("*").
		Eq("stripe_subscription_id", providerID).
		Single().
		ExecuteInto(ctx, &sub)
	if err != nil {
		return model.Subscription{}, mapError(err)
	}
	return sub, nil
}

func (s *SupabaseStore) GetSubscriptionForUser(ctx context.Context, userID string) (model.Subscription, error) {
	var rows []model.Subscription
	err := s.client.Database().From("subscriptions").
		Select("*").
		Eq("user_id", userID).
		Order("created_at", supabase.OrderDesc).
		Limit(1).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return model.Subscription{}, mapError(err)
	}
	return firstOf(rows)
}

func (s *SupabaseStore) UpdateSubscriptionStatus(ctx context.Context, providerID, status string, periodEnd time.Time) error {
	patch := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if !periodEnd.IsZero() {
		patch["current_period_end"] = periodEnd
	}
	var rows []model.Subscription
	err := s.client.Database().From("subscriptions").
		Update(patch).
		Eq("stripe_subscription_id", providerID).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return mapError(err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*SupabaseStore)(nil)
