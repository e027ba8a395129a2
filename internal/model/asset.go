package model

import (
	"encoding/json"
	"time"
)

// AssetKind distinguishes the generated art asset families.
type AssetKind string

const (
	AssetCharacter AssetKind = "character"
	AssetDecor     AssetKind = "decor"
	AssetScene     AssetKind = "scene"
)

// Table returns the backing table for the asset kind.
func (k AssetKind) Table() string {
	switch k {
	case AssetCharacter:
		return "characters"
	case AssetDecor:
		return "decors"
	case AssetScene:
		return "scenes"
	}
	return ""
}

// Valid reports whether k is a known asset kind.
func (k AssetKind) Valid() bool {
	return k.Table() != ""
}

// Asset is one generated art asset (character, background decor or scene),
// scoped to both its project and its owning user.
type Asset struct {
	ID              string          `json:"id" db:"id"`
	ProjectID       string          `json:"project_id" db:"project_id"`
	UserID          string          `json:"user_id" db:"user_id"`
	OriginalPrompt  string          `json:"original_prompt" db:"original_prompt"`
	OptimizedPrompt string          `json:"optimized_prompt" db:"optimized_prompt"`
	ImageURL        string          `json:"image_url" db:"image_url"`
	Metadata        json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
