package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mangaka-ai/mangaka-server/internal/model"
)

// MemoryStore is a map-backed Store. It backs unit tests and the development
// mode without external services.
type MemoryStore struct {
	mu            sync.RWMutex
	projects      map[string]model.Project
	pages         map[string]model.Page
	saves         map[string]model.ProjectSave // key: projectID|userID
	drafts        map[string]model.Draft       // key: pageID|userID|sessionID
	quotas        map[string]model.UserQuota
	assets        map[model.AssetKind]map[string]model.Asset
	subscriptions map[string]model.Subscription // key: provider id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]model.Project),
		pages:    make(map[string]model.Page),
		saves:    make(map[string]model.ProjectSave),
		drafts:   make(map[string]model.Draft),
		quotas:   make(map[string]model.UserQuota),
		assets: map[model.AssetKind]map[string]model.Asset{
			model.AssetCharacter: {},
			model.AssetDecor:     {},
			model.AssetScene:     {},
		},
		subscriptions: make(map[string]model.Subscription),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// --- ProjectStore -----------------------------------------------------------

func (s *MemoryStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.projects[p.ID]; exists {
		return model.Project{}, ErrConflict
	}
	s.projects[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetProject(ctx context.Context, id string) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Project, 0)
	for _, p := range s.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateProjectPageCount(ctx context.Context, id string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	p.PagesCount = count
	p.UpdatedAt = time.Now().UTC()
	s.projects[id] = p
	return nil
}

// --- PageStore --------------------------------------------------------------

func (s *MemoryStore) GetPage(ctx context.Context, pageID, projectID string) (model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[pageID]
	if !ok || p.ProjectID != projectID {
		return model.Page{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListPages(ctx context.Context, projectID string) ([]model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Page, 0)
	for _, p := range s.pages {
		if p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (s *MemoryStore) CountPages(ctx context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.pages {
		if p.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) InsertPage(ctx context.Context, p model.Page) (model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.pages[p.ID]; exists {
		return model.Page{}, ErrConflict
	}
	for _, existing := range s.pages {
		if existing.ProjectID == p.ProjectID && existing.PageNumber == p.PageNumber {
			return model.Page{}, ErrConflict
		}
	}
	s.pages[p.ID] = p
	return p, nil
}

func (s *MemoryStore) UpdatePage(ctx context.Context, p model.Page) (model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pages[p.ID]
	if !ok || existing.ProjectID != p.ProjectID {
		return model.Page{}, ErrNotFound
	}

	existing.Content = p.Content
	existing.Status = p.Status
	if len(p.Metadata) > 0 {
		existing.Metadata = p.Metadata
	}
	existing.UpdatedAt = p.UpdatedAt
	s.pages[p.ID] = existing
	return existing, nil
}

// --- SaveStore --------------------------------------------------------------

func saveKey(projectID, userID string) string { return projectID + "|" + userID }

func (s *MemoryStore) UpsertSave(ctx context.Context, save model.ProjectSave) (model.ProjectSave, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := saveKey(save.ProjectID, save.UserID)
	if existing, ok := s.saves[key]; ok {
		save.ID = existing.ID
	} else if save.ID == "" {
		save.ID = uuid.NewString()
	}
	s.saves[key] = save
	return save, nil
}

func (s *MemoryStore) GetSave(ctx context.Context, projectID, userID string) (model.ProjectSave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	save, ok := s.saves[saveKey(projectID, userID)]
	if !ok {
		return model.ProjectSave{}, ErrNotFound
	}
	return save, nil
}

// --- DraftStore -------------------------------------------------------------

func draftKey(pageID, userID, sessionID string) string {
	return pageID + "|" + userID + "|" + sessionID
}

// AddDraft inserts a draft row. Test helper; production drafts are written by
// the browser client directly against the hosted table.
func (s *MemoryStore) AddDraft(d model.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.drafts[draftKey(d.PageID, d.UserID, d.SessionID)] = d
}

// DraftCount reports the number of stored drafts. Test helper.
func (s *MemoryStore) DraftCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

func (s *MemoryStore) DeleteDraft(ctx context.Context, pageID, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, draftKey(pageID, userID, sessionID))
	return nil
}

func (s *MemoryStore) DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, d := range s.drafts {
		if d.CreatedAt.Before(cutoff) {
			delete(s.drafts, key)
			n++
		}
	}
	return n, nil
}

// --- QuotaStore -------------------------------------------------------------

func (s *MemoryStore) GetQuota(ctx context.Context, userID string) (model.UserQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotas[userID]
	if !ok {
		return model.UserQuota{}, ErrNotFound
	}
	return q, nil
}

func (s *MemoryStore) InsertQuota(ctx context.Context, q model.UserQuota) (model.UserQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.quotas[q.UserID]; exists {
		return model.UserQuota{}, ErrConflict
	}
	s.quotas[q.UserID] = q
	return q, nil
}

func (s *MemoryStore) UpdateQuota(ctx context.Context, q model.UserQuota) (model.UserQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quotas[q.UserID]; !ok {
		return model.UserQuota{}, ErrNotFound
	}
	s.quotas[q.UserID] = q
	return q, nil
}

func (s *MemoryStore) ListQuotasDueForReset(ctx context.Context, now time.Time) ([]model.UserQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.UserQuota, 0)
	for _, q := range s.quotas {
		if !q.ResetAt.After(now) {
			out = append(out, q)
		}
	}
	return out, nil
}

// --- AssetStore -------------------------------------------------------------

func (s *MemoryStore) ListAssets(ctx context.Context, kind model.AssetKind, projectID, userID string) ([]model.Asset, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown asset kind %q", kind)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Asset, 0)
	for _, a := range s.assets[kind] {
		if a.ProjectID == projectID && a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) (model.Asset, error) {
	if !kind.Valid() {
		return model.Asset{}, fmt.Errorf("unknown asset kind %q", kind)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[kind][id]
	if !ok || a.ProjectID != projectID || a.UserID != userID {
		return model.Asset{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) InsertAsset(ctx context.Context, kind model.AssetKind, a model.Asset) (model.Asset, error) {
	if !kind.Valid() {
		return model.Asset{}, fmt.Errorf("unknown asset kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := s.assets[kind][a.ID]; exists {
		return model.Asset{}, ErrConflict
	}
	s.assets[kind][a.ID] = a
	return a, nil
}

func (s *MemoryStore) DeleteAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown asset kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[kind][id]
	if !ok || a.ProjectID != projectID || a.UserID != userID {
		return ErrNotFound
	}
	delete(s.assets[kind], id)
	return nil
}

// --- SubscriptionStore ------------------------------------------------------

func (s *MemoryStore) UpsertSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subscriptions[sub.StripeSubscriptionID]; ok {
		sub.ID = existing.ID
	} else if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	s.subscriptions[sub.StripeSubscriptionID] = sub
	return sub, nil
}

func (s *MemoryStore) GetSubscriptionByProviderID(ctx context.Context, providerID string) (model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[providerID]
	if !ok {
		return model.Subscription{}, ErrNotFound
	}
	return sub, nil
}

func (s *MemoryStore) GetSubscriptionForUser(ctx context.Context, userID string) (model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.UserID == userID {
			return sub, nil
		}
	}
	return model.Subscription{}, ErrNotFound
}

func (s *MemoryStore) UpdateSubscriptionStatus(ctx context.Context, providerID, status string, periodEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[providerID]
	if !ok {
		return ErrNotFound
	}
	sub.Status = status
	if !periodEnd.IsZero() {
		sub.CurrentPeriodEnd = periodEnd
	}
	sub.UpdatedAt = time.Now().UTC()
	s.subscriptions[providerID] = sub
	return nil
}

var _ Store = (*MemoryStore)(nil)
