package api

import (
	"net/http"

	"github.com/mangaka-ai/mangaka-server/internal/currency"
	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/httputil"
	"github.com/mangaka-ai/mangaka-server/internal/middleware"
)

// webhookBodyLimit bounds Stripe webhook payloads.
const webhookBodyLimit = 1 << 20

// planView is one formatted plan in the pricing response.
type planView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Display  string `json:"display"`
	Currency string `json:"currency"`
	Monthly  int    `json:"monthly_generations"`
	Panels   int    `json:"panel_generations"`
}

// handlePricing serves GET /api/pricing?currency=&locale=. With no explicit
// currency the locale hint picks between the two supported ones.
func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	cur, ok := currency.Parse(r.URL.Query().Get("currency"))
	if !ok {
		cur = currency.DefaultFor(s.currency, r.URL.Query().Get("locale"))
	}

	views := make([]planView, 0, len(s.plans.Plans))
	for _, p := range s.plans.Plans {
		amount, ok := p.Prices[string(cur)]
		if !ok {
			continue
		}
		views = append(views, planView{
			ID:       p.ID,
			Name:     p.Name,
			Amount:   amount,
			Display:  currency.FormatPrice(cur, amount),
			Currency: string(cur),
			Monthly:  p.Monthly,
			Panels:   p.Panels,
		})
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"currency": string(cur),
		"plans":    views,
	})
}

// handleCreatePaymentIntent serves POST /api/stripe/create-payment-intent.
func (s *Server) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlanID   string `json:"planId"`
		Currency string `json:"currency"`
	}
	if err := httputil.DecodeJSON(r.Body, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}

	cur, ok := currency.Parse(body.Currency)
	if !ok {
		cur = s.currency.Default
	}

	intent, err := s.billing.CreatePaymentIntent(r.Context(), middleware.GetUserID(r.Context()), body.PlanID, cur)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"payment_intent": intent})
}

// handleCancelSubscription serves POST /api/stripe/cancel-subscription.
func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := httputil.DecodeJSON(r.Body, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := s.billing.CancelSubscription(r.Context(), middleware.GetUserID(r.Context()), body.SubscriptionID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"message": "subscription canceled"})
}

// handleStripeWebhook serves POST /api/stripe/webhook. Authenticated by the
// provider signature, not by a user session.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := httputil.ReadAllStrict(r.Body, webhookBodyLimit)
	if err != nil {
		httputil.WriteError(w, errors.Validation("unreadable webhook payload"))
		return
	}

	if err := s.billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"received": true})
}
