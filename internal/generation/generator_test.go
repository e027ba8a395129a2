package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/service"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

type fakeChat struct {
	reply string
	err   error
	calls int
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

type fakeImages struct {
	err   error
	calls int
}

func (f *fakeImages) CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.ImageResponse{}, f.err
	}
	return openai.ImageResponse{
		Data: []openai.ImageResponseDataInner{
			{B64JSON: base64.StdEncoding.EncodeToString([]byte("png-bytes"))},
		},
	}, nil
}

type fakeFiles struct {
	uploads map[string][]byte
}

func (f *fakeFiles) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[path] = data
	return nil
}

func (f *fakeFiles) PublicURL(path string) string {
	return "https://cdn.example.com/" + path
}

func newTestGenerator(t *testing.T) (*Generator, *storage.MemoryStore, *fakeChat, *fakeImages) {
	t.Helper()
	store := storage.NewMemoryStore()
	chat := &fakeChat{reply: "optimized manga prompt"}
	images := &fakeImages{}
	quotas := service.NewQuotaService(store, nil, time.Minute, logging.Nop())
	gen := New(Config{
		Chat:       chat,
		Images:     images,
		Files:      &fakeFiles{},
		Store:      store,
		Quotas:     quotas,
		Log:        logging.Nop(),
		ChatModel:  "gpt-4o-mini",
		ImageModel: "dall-e-3",
	})
	_, err := store.CreateProject(context.Background(), model.Project{ID: "p1", UserID: "u1", Name: "Manga"})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return gen, store, chat, images
}

func TestGenerate(t *testing.T) {
	gen, store, _, _ := newTestGenerator(t)

	asset, err := gen.Generate(context.Background(), GenerateInput{
		Kind:      model.AssetCharacter,
		ProjectID: "p1",
		UserID:    "u1",
		Prompt:    "un samouraï cyborg",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if asset.OriginalPrompt != "un samouraï cyborg" {
		t.Fatalf("original prompt lost: %q", asset.OriginalPrompt)
	}
	if asset.OptimizedPrompt != "optimized manga prompt" {
		t.Fatalf("optimized prompt not recorded: %q", asset.OptimizedPrompt)
	}
	if asset.ImageURL == "" {
		t.Fatal("asset must carry its public image URL")
	}

	stored, err := store.GetAsset(context.Background(), model.AssetCharacter, asset.ID, "p1", "u1")
	if err != nil {
		t.Fatalf("asset row not persisted: %v", err)
	}
	if stored.ImageURL != asset.ImageURL {
		t.Fatalf("stored asset differs: %+v", stored)
	}

	q, err := store.GetQuota(context.Background(), "u1")
	if err != nil {
		t.Fatalf("quota row: %v", err)
	}
	if q.MonthlyUsed != 1 {
		t.Fatalf("generation must consume one credit, used=%d", q.MonthlyUsed)
	}
}

func TestGenerateQuotaExhausted(t *testing.T) {
	gen, store, _, images := newTestGenerator(t)

	exhausted := model.NewUserQuota("u1", time.Now().UTC())
	exhausted.MonthlyUsed = exhausted.MonthlyLimit
	if _, err := store.InsertQuota(context.Background(), exhausted); err != nil {
		t.Fatalf("seed quota: %v", err)
	}

	_, err := gen.Generate(context.Background(), GenerateInput{
		Kind: model.AssetScene, ProjectID: "p1", UserID: "u1", Prompt: "a duel at dawn",
	})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeQuotaLimit {
		t.Fatalf("expected quota-exceeded, got %v", err)
	}
	if se.HTTPStatus != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", se.HTTPStatus)
	}
	if images.calls != 0 {
		t.Fatal("no provider call may happen once the quota is exhausted")
	}
}

func TestGenerateOptimizationFallback(t *testing.T) {
	gen, _, chat, _ := newTestGenerator(t)
	chat.err = fmt.Errorf("model overloaded")

	asset, err := gen.Generate(context.Background(), GenerateInput{
		Kind: model.AssetDecor, ProjectID: "p1", UserID: "u1", Prompt: "ruined temple",
	})
	if err != nil {
		t.Fatalf("generate with failed optimization: %v", err)
	}
	if asset.OptimizedPrompt != "ruined temple" {
		t.Fatalf("expected raw prompt fallback, got %q", asset.OptimizedPrompt)
	}
}

func TestGenerateImageFailureIsUpstream(t *testing.T) {
	gen, _, _, images := newTestGenerator(t)
	images.err = fmt.Errorf("content policy violation")

	_, err := gen.Generate(context.Background(), GenerateInput{
		Kind: model.AssetCharacter, ProjectID: "p1", UserID: "u1", Prompt: "a hero",
	})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestGenerateForeignProject(t *testing.T) {
	gen, _, _, _ := newTestGenerator(t)

	_, err := gen.Generate(context.Background(), GenerateInput{
		Kind: model.AssetCharacter, ProjectID: "p1", UserID: "intruder", Prompt: "a hero",
	})
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not-found for foreign caller, got %v", err)
	}
}
