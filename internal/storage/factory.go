package storage

import (
	"fmt"

	"github.com/mangaka-ai/mangaka-server/internal/config"
	"github.com/mangaka-ai/mangaka-server/internal/supabase"
)

// Open builds the Store named by cfg.Storage.Driver. The supabase client may
// be nil for the postgres and memory drivers.
func Open(cfg *config.Config, sb *supabase.Client) (Store, error) {
	switch cfg.Storage.Driver {
	case "supabase":
		if sb == nil {
			return nil, fmt.Errorf("supabase driver requires a configured client")
		}
		return NewSupabaseStore(sb), nil
	case "postgres":
		store, err := NewPostgresStore(cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.MigrationsPath != "" {
			if err := store.Migrate(cfg.Storage.MigrationsPath); err != nil {
				store.Close()
				return nil, err
			}
		}
		return store, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
