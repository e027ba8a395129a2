package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

func seedProject(t *testing.T, store *storage.MemoryStore, projectID, userID string) {
	t.Helper()
	_, err := store.CreateProject(context.Background(), model.Project{
		ID:        projectID,
		UserID:    userID,
		Name:      "Test Manga",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
}

func seedPage(t *testing.T, store *storage.MemoryStore, p model.Page) model.Page {
	t.Helper()
	out, err := store.InsertPage(context.Background(), p)
	if err != nil {
		t.Fatalf("seed page: %v", err)
	}
	return out
}

func TestLoadPage(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewPageService(store, logging.Nop())
	seedProject(t, store, "p1", "u1")
	seedPage(t, store, model.Page{ID: "pg1", ProjectID: "p1", PageNumber: 1, Title: "Page 1"})

	got, err := svc.LoadPage(context.Background(), "p1", "pg1", "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != "pg1" {
		t.Fatalf("unexpected page %q", got.ID)
	}
}

func TestLoadPageForeignProjectIsNotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewPageService(store, logging.Nop())
	seedProject(t, store, "p1", "owner")
	seedPage(t, store, model.Page{ID: "pg1", ProjectID: "p1", PageNumber: 1})

	_, err := svc.LoadPage(context.Background(), "p1", "pg1", "intruder")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not-found for foreign caller, got %v", err)
	}
}

func TestLoadPageMismatchedProjectIsNotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewPageService(store, logging.Nop())
	seedProject(t, store, "p1", "u1")
	seedProject(t, store, "p2", "u1")
	seedPage(t, store, model.Page{ID: "pg1", ProjectID: "p1", PageNumber: 1})

	_, err := svc.LoadPage(context.Background(), "p2", "pg1", "u1")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not-found for mismatched project, got %v", err)
	}
}

func TestSavePageUpdatesInPlace(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewPageService(store, logging.Nop())
	seedProject(t, store, "p1", "u1")
	seedPage(t, store, model.Page{
		ID: "pg1", ProjectID: "p1", PageNumber: 4, Title: "Page 4",
		Content: json.RawMessage(`{"v":1}`), Status: model.PageStatusDraft,
	})

	got, err := svc.SavePage(context.Background(), SavePageInput{
		ProjectID: "p1",
		PageID:    "pg1",
		Content:   json.RawMessage(`{"v":2}`),
		Status:    model.PageStatusCompleted,
	}, "u1")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if string(got.Content) != `{"v":2}` {
		t.Fatalf("content not replaced: %s", got.Content)
	}
	if got.Status != model.PageStatusCompleted {
		t.Fatalf("status not replaced: %s", got.Status)
	}
	if got.PageNumber != 4 || got.Title != "Page 4" {
		t.Fatalf("identity fields must survive a save: %+v", got)
	}
}

func TestSavePageInsertsWhenMissing(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewPageService(store, logging.Nop())
	seedProject(t, store, "p1", "u1")

	got, err := svc.SavePage(context.Background(), SavePageInput{
		ProjectID: "p1",
		PageID:    "pg-new",
		Content:   json.RawMessage(`{"v":1}`),
	}, "u1")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got.PageNumber != 1 {
		t.Fatalf("fresh page must get page_number 1, got %d", got.PageNumber)
	}
	if got.Status != model.PageStatusDraft {
		t.Fatalf("fresh page must default to draft, got %q", got.Status)
	}
	if got.Title == "" {
		t.Fatal("fresh page must get a provisional title")
	}
}

func TestSavePageValidation(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewPageService(store, logging.Nop())
	seedProject(t, store, "p1", "u1")

	_, err := svc.SavePage(context.Background(), SavePageInput{ProjectID: "p1", PageID: "pg1"}, "u1")
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeValidation {
		t.Fatalf("expected validation error for empty content, got %v", err)
	}
}

func TestDuplicatePage(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewPageService(store, logging.Nop())
	seedProject(t, store, "p1", "u1")
	seedPage(t, store, model.Page{ID: "pg1", ProjectID: "p1", PageNumber: 1, Title: "Intro"})
	source := seedPage(t, store, model.Page{
		ID: "pg2", ProjectID: "p1", PageNumber: 2, Title: "La Bataille",
		Content:  json.RawMessage(`{"panels":[1,2,3]}`),
		Metadata: json.RawMessage(`{"layout":"3x1"}`),
	})

	got, err := svc.DuplicatePage(context.Background(), "p1", source.ID, "u1")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if got.PageNumber != 3 {
		t.Fatalf("expected page_number 3 after duplicating into a 2-page project, got %d", got.PageNumber)
	}
	if got.Title != "La Bataille (Copie)" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.ID == source.ID {
		t.Fatal("duplicate must get a fresh id")
	}
	if string(got.Content) != string(source.Content) {
		t.Fatalf("content not copied: %s", got.Content)
	}
	if got.Status != model.PageStatusDraft {
		t.Fatalf("duplicate must start as draft, got %q", got.Status)
	}

	// Deep copy: mutating the duplicate's blob must not touch the source.
	got.Content[0] = 'X'
	reloaded, err := store.GetPage(context.Background(), source.ID, "p1")
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if string(reloaded.Content) != `{"panels":[1,2,3]}` {
		t.Fatalf("source content mutated through shared backing array: %s", reloaded.Content)
	}

	p, err := store.GetProject(context.Background(), "p1")
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if p.PagesCount != 3 {
		t.Fatalf("project page counter not refreshed, got %d", p.PagesCount)
	}
}

func TestDuplicatePageMissingSource(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewPageService(store, logging.Nop())
	seedProject(t, store, "p1", "u1")

	_, err := svc.DuplicatePage(context.Background(), "p1", "nope", "u1")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

// racingStore injects a competing insert before the first InsertPage call,
// simulating a concurrent duplication grabbing the same page number.
type racingStore struct {
	*storage.MemoryStore
	raced bool
}

func (r *racingStore) InsertPage(ctx context.Context, p model.Page) (model.Page, error) {
	if !r.raced {
		r.raced = true
		_, err := r.MemoryStore.InsertPage(ctx, model.Page{
			ProjectID:  p.ProjectID,
			PageNumber: p.PageNumber,
			Title:      "Rival",
			Status:     model.PageStatusDraft,
		})
		if err != nil {
			return model.Page{}, err
		}
	}
	return r.MemoryStore.InsertPage(ctx, p)
}

func TestDuplicatePageRetriesOnNumberConflict(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &racingStore{MemoryStore: mem}
	svc := NewPageService(store, logging.Nop())
	seedProject(t, mem, "p1", "u1")
	seedPage(t, mem, model.Page{ID: "pg1", ProjectID: "p1", PageNumber: 1, Title: "Intro"})

	got, err := svc.DuplicatePage(context.Background(), "p1", "pg1", "u1")
	if err != nil {
		t.Fatalf("duplicate after conflict: %v", err)
	}
	// The rival took number 2, so the retry must land on 3.
	if got.PageNumber != 3 {
		t.Fatalf("expected retry to allocate page_number 3, got %d", got.PageNumber)
	}

	pages, err := mem.ListPages(context.Background(), "p1")
	if err != nil {
		t.Fatalf("list pages: %v", err)
	}
	seen := make(map[int]bool)
	for _, p := range pages {
		if seen[p.PageNumber] {
			t.Fatalf("duplicate page_number %d emitted", p.PageNumber)
		}
		seen[p.PageNumber] = true
	}
}
