package model

import (
	"encoding/json"
	"time"
)

// Page statuses.
const (
	PageStatusDraft     = "draft"
	PageStatusCompleted = "completed"
)

// Page is one assembled comic page. Content is an opaque editor document;
// the server never inspects it beyond round-tripping JSON.
type Page struct {
	ID         string          `json:"id" db:"id"`
	ProjectID  string          `json:"project_id" db:"project_id"`
	PageNumber int             `json:"page_number" db:"page_number"`
	Title      string          `json:"title" db:"title"`
	Content    json.RawMessage `json:"content" db:"content"`
	Status     string          `json:"status" db:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// CloneContent deep-copies the page content and metadata blobs.
func (p *Page) CloneContent() (json.RawMessage, json.RawMessage) {
	var content, metadata json.RawMessage
	if len(p.Content) > 0 {
		content = append(json.RawMessage(nil), p.Content...)
	}
	if len(p.Metadata) > 0 {
		metadata = append(json.RawMessage(nil), p.Metadata...)
	}
	return content, metadata
}

// Draft is a transient session-scoped autosave row, distinct from the
// canonical page row. Identified by the (page, user, session) triple.
type Draft struct {
	ID        string          `json:"id" db:"id"`
	PageID    string          `json:"page_id" db:"page_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	SessionID string          `json:"session_id" db:"session_id"`
	Content   json.RawMessage `json:"content,omitempty" db:"content"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
