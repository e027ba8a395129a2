// Package generation runs the manga asset pipeline: prompt optimization,
// image generation, storage upload and quota accounting.
package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/service"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// AssetBucket is the storage bucket holding generated images.
const AssetBucket = "assets"

const optimizeSystemPrompt = `You are a prompt engineer for black-and-white manga illustration.
Rewrite the user's description into a single concise English image prompt.
Keep the manga ink style, screentone shading and dynamic composition.
Return only the rewritten prompt.`

// ChatCompleter is the chat-completion surface of the OpenAI client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ImageCreator is the image-generation surface of the OpenAI client.
type ImageCreator interface {
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

// ImageStore uploads generated images and resolves their public URLs.
type ImageStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
}

// Generator produces one asset per request: optimize, render, upload, record.
type Generator struct {
	chat   ChatCompleter
	images ImageCreator
	files  ImageStore
	store  storage.Store
	quotas *service.QuotaService
	log    *logging.Logger
	now    func() time.Time

	chatModel  string
	imageModel string
}

// Config wires a Generator.
type Config struct {
	Chat       ChatCompleter
	Images     ImageCreator
	Files      ImageStore
	Store      storage.Store
	Quotas     *service.QuotaService
	Log        *logging.Logger
	ChatModel  string
	ImageModel string
}

// New creates a Generator.
func New(cfg Config) *Generator {
	return &Generator{
		chat:       cfg.Chat,
		images:     cfg.Images,
		files:      cfg.Files,
		store:      cfg.Store,
		quotas:     cfg.Quotas,
		log:        cfg.Log,
		now:        time.Now,
		chatModel:  cfg.ChatModel,
		imageModel: cfg.ImageModel,
	}
}

// GenerateInput is one generation request.
type GenerateInput struct {
	Kind      model.AssetKind
	ProjectID string
	UserID    string
	Prompt    string
}

// Generate runs the full pipeline. A quota credit is consumed before the
// provider calls; provider failures surface as upstream errors without
// refunding the credit, mirroring the provider's own billing.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (model.Asset, error) {
	if !in.Kind.Valid() {
		return model.Asset{}, errors.Validation("unknown asset kind")
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return model.Asset{}, errors.Validation("prompt is required")
	}

	project, err := g.store.GetProject(ctx, in.ProjectID)
	if err != nil {
		return model.Asset{}, mapProjectError(err)
	}
	if !project.OwnedBy(in.UserID) {
		return model.Asset{}, errors.NotFound("project not found")
	}

	if _, err := g.quotas.Consume(ctx, in.UserID, service.QuotaMonthly, 1); err != nil {
		return model.Asset{}, err
	}

	optimized, err := g.optimizePrompt(ctx, prompt)
	if err != nil {
		return model.Asset{}, err
	}

	image, err := g.renderImage(ctx, optimized)
	if err != nil {
		return model.Asset{}, err
	}

	assetID := uuid.NewString()
	path := fmt.Sprintf("%s/%s/%s.png", in.Kind.Table(), in.UserID, assetID)
	if err := g.files.Upload(ctx, path, image, "image/png"); err != nil {
		return model.Asset{}, errors.Upstream("storage", err)
	}

	meta, _ := json.Marshal(map[string]string{"model": g.imageModel, "path": path})
	asset, err := g.store.InsertAsset(ctx, in.Kind, model.Asset{
		ID:              assetID,
		ProjectID:       in.ProjectID,
		UserID:          in.UserID,
		OriginalPrompt:  prompt,
		OptimizedPrompt: optimized,
		ImageURL:        g.files.PublicURL(path),
		Metadata:        meta,
		CreatedAt:       g.now().UTC(),
	})
	if err != nil {
		return model.Asset{}, errors.Upstream("database", err)
	}

	g.log.WithContext(ctx).WithFields(map[string]interface{}{
		"asset_id": asset.ID,
		"kind":     string(in.Kind),
	}).Info("asset generated")

	return asset, nil
}

// optimizePrompt rewrites the user prompt for the image model. A failed
// optimization falls back to the raw prompt rather than failing the request.
func (g *Generator) optimizePrompt(ctx context.Context, prompt string) (string, error) {
	resp, err := g.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: optimizeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 300,
	})
	if err != nil {
		g.log.WithContext(ctx).WithError(err).Warn("prompt optimization failed, using raw prompt")
		return prompt, nil
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return prompt, nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *Generator) renderImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := g.images.CreateImage(ctx, openai.ImageRequest{
		Model:          g.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, errors.Upstream("openai", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.Upstream("openai", fmt.Errorf("empty image response"))
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, errors.Upstream("openai", fmt.Errorf("decode image payload: %w", err))
	}
	return data, nil
}

func mapProjectError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound("project not found")
	}
	return errors.Upstream("database", err)
}
