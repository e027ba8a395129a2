package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/generation"
	"github.com/mangaka-ai/mangaka-server/internal/httputil"
	"github.com/mangaka-ai/mangaka-server/internal/metrics"
	"github.com/mangaka-ai/mangaka-server/internal/middleware"
)

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, ok := assetKind(vars["kind"])
	if !ok {
		httputil.WriteError(w, errors.Validation("unknown asset kind"))
		return
	}

	assets, err := s.assets.ListAssets(r.Context(), kind, vars["id"], middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, ok := assetKind(vars["kind"])
	if !ok {
		httputil.WriteError(w, errors.Validation("unknown asset kind"))
		return
	}

	asset, err := s.assets.GetAsset(r.Context(), kind, vars["assetId"], vars["id"], middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"asset": asset})
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, ok := assetKind(vars["kind"])
	if !ok {
		httputil.WriteError(w, errors.Validation("unknown asset kind"))
		return
	}

	if err := s.assets.DeleteAsset(r.Context(), kind, vars["assetId"], vars["id"], middleware.GetUserID(r.Context())); err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"message": "asset deleted"})
}

// handleGenerateAsset serves POST /api/projects/{id}/{kind}.
func (s *Server) handleGenerateAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, ok := assetKind(vars["kind"])
	if !ok {
		httputil.WriteError(w, errors.Validation("unknown asset kind"))
		return
	}

	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := httputil.DecodeJSON(r.Body, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}

	asset, err := s.gen.Generate(r.Context(), generation.GenerateInput{
		Kind:      kind,
		ProjectID: vars["id"],
		UserID:    middleware.GetUserID(r.Context()),
		Prompt:    body.Prompt,
	})
	if err != nil {
		if se := errors.GetServiceError(err); se != nil && se.Code == errors.CodeQuotaLimit {
			metrics.QuotaRejections.Inc()
		}
		metrics.GenerationsTotal.WithLabelValues(string(kind), "error").Inc()
		httputil.WriteError(w, err)
		return
	}
	metrics.GenerationsTotal.WithLabelValues(string(kind), "ok").Inc()

	writeSuccess(w, http.StatusCreated, map[string]interface{}{"asset": asset})
}
