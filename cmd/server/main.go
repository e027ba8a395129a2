// Package main runs the manga editor backend: the public API server, the ops
// listener and the background maintenance jobs.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	openai "github.com/sashabaranov/go-openai"

	"github.com/mangaka-ai/mangaka-server/internal/api"
	"github.com/mangaka-ai/mangaka-server/internal/billing"
	"github.com/mangaka-ai/mangaka-server/internal/config"
	"github.com/mangaka-ai/mangaka-server/internal/currency"
	"github.com/mangaka-ai/mangaka-server/internal/generation"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/middleware"
	"github.com/mangaka-ai/mangaka-server/internal/ops"
	"github.com/mangaka-ai/mangaka-server/internal/service"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
	"github.com/mangaka-ai/mangaka-server/internal/supabase"
	"github.com/mangaka-ai/mangaka-server/internal/worker"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().WithError(err).Error("configuration failed")
		os.Exit(1)
	}

	log := logging.New(os.Stderr, cfg.LogLevel)
	log.WithFields(map[string]interface{}{"env": cfg.Env, "version": version}).Info("starting mangaka server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Supabase client, used for auth verification, storage and the realtime
	// feed even when persistence runs on plain postgres.
	var sb *supabase.Client
	if cfg.Supabase.URL != "" {
		sb, err = supabase.New(supabase.Config{
			URL:        cfg.Supabase.URL,
			AnonKey:    cfg.Supabase.AnonKey,
			ServiceKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			log.WithError(err).Error("supabase client failed")
			os.Exit(1)
		}
	}

	store, err := storage.Open(cfg, sb)
	if err != nil {
		log.WithError(err).Error("storage failed")
		os.Exit(1)
	}
	defer store.Close()

	var cache *redis.Client
	if cfg.Redis.Addr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := cache.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, quota cache disabled")
			cache = nil
		}
	}

	plans, err := config.LoadPlans(cfg.PlansPath)
	if err != nil {
		log.WithError(err).Error("plans config failed")
		os.Exit(1)
	}

	quotas := service.NewQuotaService(store, cache, time.Duration(cfg.Redis.QuotaTTL)*time.Second, log)

	oa := openai.NewClient(cfg.OpenAI.APIKey)
	var files generation.ImageStore
	if sb != nil {
		files = sb.Storage().From(generation.AssetBucket)
	}
	gen := generation.New(generation.Config{
		Chat:       oa,
		Images:     oa,
		Files:      files,
		Store:      store,
		Quotas:     quotas,
		Log:        log,
		ChatModel:  cfg.OpenAI.ChatModel,
		ImageModel: cfg.OpenAI.ImageModel,
	})

	bill := billing.New(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, store, quotas, plans, log)

	srv := api.NewServer(api.Deps{
		Log:      log,
		Projects: service.NewProjectService(store, log),
		Pages:    service.NewPageService(store, log),
		Saves:    service.NewSaveService(store, log),
		Drafts:   service.NewDraftService(store, log),
		Quotas:   quotas,
		Assets:   service.NewAssetService(store, log),
		Gen:      gen,
		Billing:  bill,
		Plans:    plans,
		Currency: currency.DefaultConfig(),
	})

	var verifier middleware.UserVerifier
	if sb != nil {
		verifier = sb.Auth()
	}
	auth := middleware.NewAuthMiddleware(cfg.Supabase.JWTSecret, verifier, log, nil)
	cors := middleware.NewCORSMiddleware(splitCSV(cfg.CORS.AllowedOrigins))
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	limiter.StartCleanup(10 * time.Minute)

	apiServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(auth, cors, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	opsServer := &http.Server{
		Addr:              cfg.Server.OpsAddr,
		Handler:           ops.New(store, log, version).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	jobs := worker.New(store, quotas, log)
	if err := jobs.Start(); err != nil {
		log.WithError(err).Error("worker failed")
		os.Exit(1)
	}

	// Quota rows change out of band when a Stripe webhook lands on another
	// replica; the realtime feed keeps every replica's cache honest.
	if sb != nil && cache != nil {
		err := sb.Realtime().Subscribe(ctx, "public", "user_quotas", func(ev supabase.RealtimeEvent) {
			userID, _ := ev.Record["user_id"].(string)
			if userID == "" {
				userID, _ = ev.OldRecord["user_id"].(string)
			}
			quotas.Invalidate(ctx, userID)
		})
		if err != nil {
			log.WithError(err).Warn("realtime subscription failed")
		}
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithFields(map[string]interface{}{"addr": cfg.Server.Addr}).Info("api listening")
		errCh <- apiServer.ListenAndServe()
	}()
	go func() {
		log.WithFields(map[string]interface{}{"addr": cfg.Server.OpsAddr}).Info("ops listening")
		errCh <- opsServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	jobs.Stop()
	limiter.Stop()
	if sb != nil {
		sb.Realtime().Close()
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("api shutdown incomplete")
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("ops shutdown incomplete")
	}
	if cache != nil {
		_ = cache.Close()
	}
	log.Info("stopped")
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
