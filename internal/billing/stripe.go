// Package billing integrates the Stripe payment provider: payment intents,
// subscription cancellation and webhook-driven subscription state.
package billing

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/tidwall/gjson"

	"github.com/mangaka-ai/mangaka-server/internal/config"
	"github.com/mangaka-ai/mangaka-server/internal/currency"
	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/service"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// Service wraps the Stripe client and mirrors subscription state into the
// local store. Reconciliation stays on the provider side; only simple status
// updates flow through here.
type Service struct {
	api           *client.API
	webhookSecret string
	store         storage.Store
	quotas        *service.QuotaService
	plans         *config.PlansConfig
	log           *logging.Logger
}

// New creates a billing Service.
func New(secretKey, webhookSecret string, store storage.Store, quotas *service.QuotaService, plans *config.PlansConfig, log *logging.Logger) *Service {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Service{
		api:           api,
		webhookSecret: webhookSecret,
		store:         store,
		quotas:        quotas,
		plans:         plans,
		log:           log,
	}
}

// PaymentIntent is the client-facing result of CreatePaymentIntent.
type PaymentIntent struct {
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// CreatePaymentIntent opens a payment intent for the plan's price in the
// requested currency. The amount always comes from the server-side plan
// table, never from the client.
func (s *Service) CreatePaymentIntent(ctx context.Context, userID, planID string, cur currency.Currency) (PaymentIntent, error) {
	if !cur.Valid() {
		return PaymentIntent{}, errors.Validation("unsupported currency")
	}
	plan := s.plans.Plan(planID)
	if plan == nil {
		return PaymentIntent{}, errors.Validation("unknown plan")
	}
	amount, ok := plan.Prices[strings.ToUpper(string(cur))]
	if !ok {
		return PaymentIntent{}, errors.Validation("plan has no price in this currency")
	}
	if amount <= 0 {
		return PaymentIntent{}, errors.Validation("plan is not purchasable")
	}

	intent, err := s.api.PaymentIntents.New(&stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(string(cur))),
		Params: stripe.Params{
			Metadata: map[string]string{
				"user_id": userID,
				"plan_id": planID,
			},
		},
	})
	if err != nil {
		return PaymentIntent{}, errors.Upstream("stripe", err)
	}

	return PaymentIntent{
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     string(cur),
	}, nil
}

// CancelSubscription cancels the user's subscription at the provider and
// marks the local mirror. Only the owner may cancel.
func (s *Service) CancelSubscription(ctx context.Context, userID, subscriptionID string) error {
	if subscriptionID == "" {
		return errors.Validation("subscription id is required")
	}

	sub, err := s.store.GetSubscriptionByProviderID(ctx, subscriptionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("subscription not found")
		}
		return errors.Upstream("database", err)
	}
	if sub.UserID != userID {
		return errors.NotFound("subscription not found")
	}

	if _, err := s.api.Subscriptions.Cancel(subscriptionID, nil); err != nil {
		return errors.Upstream("stripe", err)
	}
	if err := s.store.UpdateSubscriptionStatus(ctx, subscriptionID, "canceled", time.Time{}); err != nil {
		return errors.Upstream("database", err)
	}
	return nil
}

// HandleWebhook verifies and applies one provider event. Unknown event types
// are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return errors.Validation("invalid webhook signature")
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return s.applySubscription(ctx, event.Data.Raw)
	case "customer.subscription.deleted":
		return s.removeSubscription(ctx, event.Data.Raw)
	default:
		s.log.WithContext(ctx).WithFields(map[string]interface{}{
			"event_type": string(event.Type),
		}).Debug("ignoring webhook event")
		return nil
	}
}

func (s *Service) applySubscription(ctx context.Context, raw []byte) error {
	doc := gjson.ParseBytes(raw)
	subID := doc.Get("id").String()
	userID := doc.Get("metadata.user_id").String()
	planID := doc.Get("metadata.plan_id").String()
	status := doc.Get("status").String()
	periodEnd := time.Unix(doc.Get("current_period_end").Int(), 0).UTC()

	if subID == "" || userID == "" {
		return errors.Validation("webhook payload missing subscription or user id")
	}

	now := time.Now().UTC()
	if _, err := s.store.UpsertSubscription(ctx, model.Subscription{
		UserID:               userID,
		PlanID:               planID,
		StripeSubscriptionID: subID,
		Status:               status,
		CurrentPeriodEnd:     periodEnd,
		CreatedAt:            now,
		UpdatedAt:            now,
	}); err != nil {
		return errors.Upstream("database", err)
	}

	if status == "active" {
		if plan := s.plans.Plan(planID); plan != nil {
			if err := s.quotas.ApplyPlanLimits(ctx, userID, plan.Monthly, plan.Panels); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) removeSubscription(ctx context.Context, raw []byte) error {
	doc := gjson.ParseBytes(raw)
	subID := doc.Get("id").String()
	userID := doc.Get("metadata.user_id").String()
	if subID == "" {
		return errors.Validation("webhook payload missing subscription id")
	}

	// A delete for a subscription never mirrored locally is not an error.
	if err := s.store.UpdateSubscriptionStatus(ctx, subID, "canceled", time.Time{}); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return errors.Upstream("database", err)
	}

	// Back to the free tier at the end of the paid period.
	if userID != "" {
		if err := s.quotas.ApplyPlanLimits(ctx, userID, model.DefaultMonthlyLimit, model.DefaultPanelLimit); err != nil {
			return err
		}
	}
	return nil
}
