// Package api exposes the public HTTP surface of the manga editor backend.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mangaka-ai/mangaka-server/internal/billing"
	"github.com/mangaka-ai/mangaka-server/internal/config"
	"github.com/mangaka-ai/mangaka-server/internal/currency"
	"github.com/mangaka-ai/mangaka-server/internal/generation"
	"github.com/mangaka-ai/mangaka-server/internal/httputil"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/middleware"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/service"
)

// assetKindPattern restricts the {kind} path segment to the three families.
const assetKindPattern = "{kind:characters|decors|scenes}"

// Server bundles the services behind the HTTP handlers.
type Server struct {
	log      *logging.Logger
	projects *service.ProjectService
	pages    *service.PageService
	saves    *service.SaveService
	drafts   *service.DraftService
	quotas   *service.QuotaService
	assets   *service.AssetService
	gen      *generation.Generator
	billing  *billing.Service
	plans    *config.PlansConfig
	currency currency.Config
}

// Deps carries the server's collaborators.
type Deps struct {
	Log      *logging.Logger
	Projects *service.ProjectService
	Pages    *service.PageService
	Saves    *service.SaveService
	Drafts   *service.DraftService
	Quotas   *service.QuotaService
	Assets   *service.AssetService
	Gen      *generation.Generator
	Billing  *billing.Service
	Plans    *config.PlansConfig
	Currency currency.Config
}

// NewServer creates a Server.
func NewServer(d Deps) *Server {
	return &Server{
		log:      d.Log,
		projects: d.Projects,
		pages:    d.Pages,
		saves:    d.Saves,
		drafts:   d.Drafts,
		quotas:   d.Quotas,
		assets:   d.Assets,
		gen:      d.Gen,
		billing:  d.Billing,
		plans:    d.Plans,
		currency: d.Currency,
	}
}

// Router assembles the /api router with the full middleware chain. The
// Stripe webhook and the pricing endpoint stay outside the auth gate.
func (s *Server) Router(auth *middleware.AuthMiddleware, cors *middleware.CORSMiddleware, limiter *middleware.RateLimiter) *mux.Router {
	root := mux.NewRouter()
	root.Use(mux.MiddlewareFunc(middleware.NewTracingMiddleware().Handler))
	root.Use(mux.MiddlewareFunc(cors.Handler))
	root.Use(middleware.LoggingMiddleware(s.log))
	root.Use(middleware.MetricsMiddleware())

	api := root.PathPrefix("/api").Subrouter()

	// Public routes.
	api.HandleFunc("/pricing", s.handlePricing).Methods(http.MethodGet)
	api.HandleFunc("/stripe/webhook", s.handleStripeWebhook).Methods(http.MethodPost)

	// Authenticated routes.
	authed := api.NewRoute().Subrouter()
	authed.Use(mux.MiddlewareFunc(auth.Handler))
	authed.Use(mux.MiddlewareFunc(limiter.Handler))

	authed.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	authed.HandleFunc("/projects", s.handleCreateProject).Methods(http.MethodPost)
	authed.HandleFunc("/projects/{id}/pages", s.handleListPages).Methods(http.MethodGet)
	authed.HandleFunc("/projects/{id}/pages/duplicate", s.handleDuplicatePage).Methods(http.MethodPost)
	authed.HandleFunc("/projects/{id}/save-all", s.handleSaveAll).Methods(http.MethodPost)
	authed.HandleFunc("/projects/{id}/save-all", s.handleLoadAll).Methods(http.MethodGet)

	authed.HandleFunc("/projects/{id}/"+assetKindPattern, s.handleListAssets).Methods(http.MethodGet)
	authed.HandleFunc("/projects/{id}/"+assetKindPattern, s.handleGenerateAsset).Methods(http.MethodPost)
	authed.HandleFunc("/projects/{id}/"+assetKindPattern+"/{assetId}", s.handleGetAsset).Methods(http.MethodGet)
	authed.HandleFunc("/projects/{id}/"+assetKindPattern+"/{assetId}", s.handleDeleteAsset).Methods(http.MethodDelete)

	authed.HandleFunc("/supabase/save-page", s.handleSavePage).Methods(http.MethodPost)
	authed.HandleFunc("/supabase/load-page", s.handleLoadPage).Methods(http.MethodGet)
	authed.HandleFunc("/supabase/cleanup-draft", s.handleCleanupDraft).Methods(http.MethodDelete)

	authed.HandleFunc("/credits", s.handleCredits).Methods(http.MethodGet)
	authed.HandleFunc("/stripe/create-payment-intent", s.handleCreatePaymentIntent).Methods(http.MethodPost)
	authed.HandleFunc("/stripe/cancel-subscription", s.handleCancelSubscription).Methods(http.MethodPost)

	return root
}

// writeSuccess writes the success envelope with extra top-level fields.
func writeSuccess(w http.ResponseWriter, status int, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	httputil.WriteJSON(w, status, body)
}

// assetKind maps the plural path segment onto the asset family.
func assetKind(segment string) (model.AssetKind, bool) {
	switch segment {
	case "characters":
		return model.AssetCharacter, true
	case "decors":
		return model.AssetDecor, true
	case "scenes":
		return model.AssetScene, true
	}
	return "", false
}
