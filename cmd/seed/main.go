// Package main seeds the configured store with a demo user, project and
// pages for local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/mangaka-ai/mangaka-server/internal/config"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
	"github.com/mangaka-ai/mangaka-server/internal/supabase"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "Path to the environment file")
		userID  = flag.String("user", "dev-user", "User id to own the seeded data")
		pages   = flag.Int("pages", 3, "Number of pages to create")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("env file %s not loaded: %v", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var sb *supabase.Client
	if cfg.Supabase.URL != "" {
		if sb, err = supabase.New(supabase.Config{
			URL:        cfg.Supabase.URL,
			AnonKey:    cfg.Supabase.AnonKey,
			ServiceKey: cfg.Supabase.ServiceKey,
		}); err != nil {
			log.Fatalf("supabase client: %v", err)
		}
	}

	store, err := storage.Open(cfg, sb)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	project, err := store.CreateProject(ctx, model.Project{
		UserID:    *userID,
		Name:      "Mon premier manga",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		log.Fatalf("create project: %v", err)
	}

	for i := 1; i <= *pages; i++ {
		content, _ := json.Marshal(map[string]interface{}{
			"panels": []map[string]interface{}{{"index": 1, "dialogue": ""}},
		})
		if _, err := store.InsertPage(ctx, model.Page{
			ProjectID:  project.ID,
			PageNumber: i,
			Title:      fmt.Sprintf("Page %d", i),
			Content:    content,
			Status:     "draft",
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			log.Fatalf("insert page %d: %v", i, err)
		}
	}
	if err := store.UpdateProjectPageCount(ctx, project.ID, *pages); err != nil {
		log.Fatalf("update page count: %v", err)
	}

	if _, err := store.InsertQuota(ctx, model.NewUserQuota(*userID, now)); err != nil {
		log.Printf("quota row not created (may already exist): %v", err)
	}

	fmt.Printf("Seeded project %s with %d pages for user %s\n", project.ID, *pages, *userID)
}
