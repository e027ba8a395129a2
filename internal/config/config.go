// Package config loads service configuration from the environment and the
// pricing plans file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Env      string `env:"APP_ENV,default=development"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	Server struct {
		Addr    string `env:"SERVER_ADDR,default=:8080"`
		OpsAddr string `env:"OPS_ADDR,default=:9090"`
	}

	CORS struct {
		AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000"`
	}

	Supabase struct {
		URL        string `env:"SUPABASE_URL"`
		AnonKey    string `env:"SUPABASE_ANON_KEY"`
		ServiceKey string `env:"SUPABASE_SERVICE_KEY"`
		JWTSecret  string `env:"SUPABASE_JWT_SECRET"`
	}

	Storage struct {
		// Driver selects the persistence backend: supabase, postgres or memory.
		Driver         string `env:"STORAGE_DRIVER,default=supabase"`
		DatabaseURL    string `env:"DATABASE_URL"`
		MigrationsPath string `env:"MIGRATIONS_PATH,default=migrations"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD,default="`
		QuotaTTL int    `env:"REDIS_QUOTA_TTL_SECONDS,default=60"`
	}

	OpenAI struct {
		APIKey     string `env:"OPENAI_API_KEY"`
		ChatModel  string `env:"OPENAI_CHAT_MODEL,default=gpt-4o-mini"`
		ImageModel string `env:"OPENAI_IMAGE_MODEL,default=dall-e-3"`
	}

	Stripe struct {
		SecretKey     string `env:"STRIPE_SECRET_KEY"`
		WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	}

	RateLimit struct {
		RequestsPerSecond int `env:"RATE_LIMIT_RPS,default=10"`
		Burst             int `env:"RATE_LIMIT_BURST,default=20"`
	}

	PlansPath string `env:"PLANS_PATH,default=config/plans.yaml"`
}

// Load reads .env (when present) and decodes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.Storage.Driver == "supabase" && cfg.Supabase.URL == "" {
		return nil, fmt.Errorf("SUPABASE_URL is required with the supabase storage driver")
	}
	if cfg.Storage.Driver == "postgres" && cfg.Storage.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required with the postgres storage driver")
	}

	return &cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "test"
}

// Plan describes one subscription plan with per-currency prices in cents.
type Plan struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	StripePriceID string           `yaml:"stripe_price_id"`
	Prices        map[string]int64 `yaml:"prices"`
	Monthly       int              `yaml:"monthly_generations"`
	Panels        int              `yaml:"panel_generations"`
}

// PlansConfig is the parsed pricing plans file.
type PlansConfig struct {
	Plans []Plan `yaml:"plans"`
}

// LoadPlans loads the pricing plans from path.
func LoadPlans(path string) (*PlansConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read plans config: %w", err)
	}

	var cfg PlansConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse plans config: %w", err)
	}

	for _, p := range cfg.Plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan without id in %s", path)
		}
		if len(p.Prices) == 0 {
			return nil, fmt.Errorf("plan %s: at least one price is required", p.ID)
		}
	}

	return &cfg, nil
}

// Plan returns the plan with the given id, or nil.
func (p *PlansConfig) Plan(id string) *Plan {
	for i := range p.Plans {
		if p.Plans[i].ID == id {
			return &p.Plans[i]
		}
	}
	return nil
}
