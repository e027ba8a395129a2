// Package model defines the persisted entities of the manga studio.
package model

import "time"

// Project is a user-owned manga project. Every mutation on a project or its
// children requires the caller to be the owner.
type Project struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Name       string    `json:"name" db:"name"`
	PagesCount int       `json:"pages_count" db:"pages_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// OwnedBy reports whether userID owns the project.
func (p *Project) OwnedBy(userID string) bool {
	return p.UserID == userID
}
