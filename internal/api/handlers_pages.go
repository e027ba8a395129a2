package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/httputil"
	"github.com/mangaka-ai/mangaka-server/internal/middleware"
	"github.com/mangaka-ai/mangaka-server/internal/service"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(r.Body, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}

	project, err := s.projects.CreateProject(r.Context(), middleware.GetUserID(r.Context()), body.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]interface{}{"project": project})
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	pages, err := s.pages.ListPages(r.Context(), projectID, middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"pages": pages})
}

// handleLoadPage serves GET /api/supabase/load-page?projectId=&pageId=.
func (s *Server) handleLoadPage(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	pageID := r.URL.Query().Get("pageId")

	page, err := s.pages.LoadPage(r.Context(), projectID, pageID, middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"page": page})
}

// handleSavePage serves POST /api/supabase/save-page.
func (s *Server) handleSavePage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID string          `json:"projectId"`
		PageID    string          `json:"pageId"`
		Content   json.RawMessage `json:"content"`
		Status    string          `json:"status"`
	}
	if err := httputil.DecodeJSON(r.Body, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := s.pages.SavePage(r.Context(), service.SavePageInput{
		ProjectID: body.ProjectID,
		PageID:    body.PageID,
		Content:   body.Content,
		Status:    body.Status,
	}, middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"page": page})
}

// handleDuplicatePage serves POST /api/projects/{id}/pages/duplicate. The
// source page is named sourcePageId; pageId is accepted as a legacy alias.
func (s *Server) handleDuplicatePage(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	var body struct {
		SourcePageID string `json:"sourcePageId"`
		PageID       string `json:"pageId"`
	}
	if err := httputil.DecodeJSON(r.Body, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sourceID := body.SourcePageID
	if sourceID == "" {
		sourceID = body.PageID
	}

	page, err := s.pages.DuplicatePage(r.Context(), projectID, sourceID, middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"page":    page,
		"message": "page duplicated",
	})
}

// handleCleanupDraft serves DELETE /api/supabase/cleanup-draft. The user key
// always comes from the session, never from the request.
func (s *Server) handleCleanupDraft(w http.ResponseWriter, r *http.Request) {
	pageID := r.URL.Query().Get("pageId")
	sessionID := r.URL.Query().Get("sessionId")
	userID := middleware.GetUserID(r.Context())

	if err := s.drafts.CleanupDraft(r.Context(), pageID, userID, sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"message": "draft cleaned up"})
}

// handleCredits serves GET /api/credits.
func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	refresh := r.URL.Query().Get("refresh") == "true"
	var (
		quota interface{}
		err   error
	)
	if refresh {
		quota, err = s.quotas.Refresh(r.Context(), userID)
		if errors.IsNotFound(err) {
			quota, err = s.quotas.GetOrInitQuota(r.Context(), userID)
		}
	} else {
		quota, err = s.quotas.GetOrInitQuota(r.Context(), userID)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"quota": quota})
}
