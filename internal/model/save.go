package model

import (
	"encoding/json"
	"time"
)

// SaveSchemaVersion is the schema version stamped on every stored document.
const SaveSchemaVersion = "2.0"

// ScriptData is the screenplay sub-document.
type ScriptData struct {
	Content   string          `json:"content"`
	Title     string          `json:"title"`
	Stats     ScriptStats     `json:"stats"`
	FileTree  json.RawMessage `json:"fileTree,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ScriptStats are the per-script counters shown in the editor.
type ScriptStats struct {
	Pages      int `json:"pages"`
	Panels     int `json:"panels"`
	Words      int `json:"words"`
	Characters int `json:"characters"`
}

// GalleryData is a generated-asset gallery sub-document (characters,
// backgrounds or scenes).
type GalleryData struct {
	Items     []json.RawMessage `json:"items"`
	Selected  []string          `json:"selected"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// AssemblyData is the page-assembly sub-document.
type AssemblyData struct {
	Pages     []json.RawMessage `json:"pages"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// SaveMetadata stamps the whole envelope.
type SaveMetadata struct {
	Version string    `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	SavedBy string    `json:"savedBy"`
}

// SaveDocument is the unified save blob aggregating every per-feature
// sub-document for one (project, user) pair. The stored shape is stable:
// construction fills every missing sub-object with typed defaults.
type SaveDocument struct {
	Script      ScriptData   `json:"script"`
	Characters  GalleryData  `json:"characters"`
	Backgrounds GalleryData  `json:"backgrounds"`
	Scenes      GalleryData  `json:"scenes"`
	Assembly    AssemblyData `json:"assembly"`
	Metadata    SaveMetadata `json:"metadata"`
}

// SaveInput carries the raw per-feature payloads of a save-all request.
// Nil members mean "the feature sent nothing" and default to empty.
type SaveInput struct {
	Script      *ScriptData   `json:"scriptData"`
	Characters  *GalleryData  `json:"charactersData"`
	Backgrounds *GalleryData  `json:"backgroundsData"`
	Scenes      *GalleryData  `json:"scenesData"`
	Assembly    *AssemblyData `json:"assemblyData"`
}

// NewSaveDocument builds the stored document from input, applying defaults
// for every missing sub-object and stamping envelope and sub-objects with now.
func NewSaveDocument(input SaveInput, userID string, now time.Time) SaveDocument {
	doc := SaveDocument{
		Script:      ScriptData{UpdatedAt: now},
		Characters:  GalleryData{Items: []json.RawMessage{}, Selected: []string{}, UpdatedAt: now},
		Backgrounds: GalleryData{Items: []json.RawMessage{}, Selected: []string{}, UpdatedAt: now},
		Scenes:      GalleryData{Items: []json.RawMessage{}, Selected: []string{}, UpdatedAt: now},
		Assembly:    AssemblyData{Pages: []json.RawMessage{}, UpdatedAt: now},
		Metadata: SaveMetadata{
			Version: SaveSchemaVersion,
			SavedAt: now,
			SavedBy: userID,
		},
	}

	if input.Script != nil {
		doc.Script = *input.Script
		doc.Script.UpdatedAt = now
	}
	if input.Characters != nil {
		doc.Characters = normalizeGallery(*input.Characters, now)
	}
	if input.Backgrounds != nil {
		doc.Backgrounds = normalizeGallery(*input.Backgrounds, now)
	}
	if input.Scenes != nil {
		doc.Scenes = normalizeGallery(*input.Scenes, now)
	}
	if input.Assembly != nil {
		doc.Assembly = *input.Assembly
		if doc.Assembly.Pages == nil {
			doc.Assembly.Pages = []json.RawMessage{}
		}
		doc.Assembly.UpdatedAt = now
	}

	return doc
}

func normalizeGallery(g GalleryData, now time.Time) GalleryData {
	if g.Items == nil {
		g.Items = []json.RawMessage{}
	}
	if g.Selected == nil {
		g.Selected = []string{}
	}
	g.UpdatedAt = now
	return g
}

// ProjectSave is the persisted row holding a SaveDocument, upserted on the
// unique (project_id, user_id) key with last-write-wins semantics.
type ProjectSave struct {
	ID        string       `json:"id" db:"id"`
	ProjectID string       `json:"project_id" db:"project_id"`
	UserID    string       `json:"user_id" db:"user_id"`
	Document  SaveDocument `json:"document" db:"document"`
	SavedAt   time.Time    `json:"saved_at" db:"saved_at"`
}
