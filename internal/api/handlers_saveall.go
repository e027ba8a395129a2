package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mangaka-ai/mangaka-server/internal/httputil"
	"github.com/mangaka-ai/mangaka-server/internal/metrics"
	"github.com/mangaka-ai/mangaka-server/internal/middleware"
	"github.com/mangaka-ai/mangaka-server/internal/model"
)

// handleSaveAll serves POST /api/projects/{id}/save-all. The whole save row
// is replaced; last write wins.
func (s *Server) handleSaveAll(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	var input model.SaveInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	saved, err := s.saves.SaveAll(r.Context(), projectID, middleware.GetUserID(r.Context()), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	metrics.SavesTotal.Inc()

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"data":    saved,
		"savedAt": saved.SavedAt,
		"message": "project saved",
	})
}

// handleLoadAll serves GET /api/projects/{id}/save-all.
func (s *Server) handleLoadAll(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	saved, err := s.saves.LoadAll(r.Context(), projectID, middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"document": saved.Document,
		"saved_at": saved.SavedAt,
	})
}
