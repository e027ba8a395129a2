package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/mangaka-ai/mangaka-server/internal/config"
	"github.com/mangaka-ai/mangaka-server/internal/currency"
	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/service"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

const testWebhookSecret = "whsec_test"

func testPlans() *config.PlansConfig {
	return &config.PlansConfig{Plans: []config.Plan{
		{ID: "free", Name: "Free", Prices: map[string]int64{"EUR": 0, "USD": 0}, Monthly: 5, Panels: 10},
		{ID: "mangaka-junior", Name: "Mangaka Junior", Prices: map[string]int64{"EUR": 999, "USD": 1099}, Monthly: 100, Panels: 200},
	}}
}

func newTestService(t *testing.T) (*Service, *storage.MemoryStore, *service.QuotaService) {
	t.Helper()
	store := storage.NewMemoryStore()
	quotas := service.NewQuotaService(store, nil, time.Minute, logging.Nop())
	svc := New("sk_test", testWebhookSecret, store, quotas, testPlans(), logging.Nop())
	return svc, store, quotas
}

// signPayload produces a Stripe-Signature header for payload, matching the
// t=...,v1=... scheme the verifier expects.
func signPayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func subscriptionEvent(eventType, subID, userID, planID, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"api_version": "2023-10-16",
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"status": %q,
				"current_period_end": 1790000000,
				"metadata": {"user_id": %q, "plan_id": %q}
			}
		}
	}`, eventType, subID, status, userID, planID))
}

func TestWebhookSubscriptionCreated(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	payload := subscriptionEvent("customer.subscription.created", "sub_1", "u1", "mangaka-junior", "active")
	if err := svc.HandleWebhook(ctx, payload, signPayload(payload)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	sub, err := store.GetSubscriptionByProviderID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("subscription not mirrored: %v", err)
	}
	if sub.UserID != "u1" || sub.PlanID != "mangaka-junior" || sub.Status != "active" {
		t.Fatalf("unexpected mirror row: %+v", sub)
	}

	q, err := store.GetQuota(ctx, "u1")
	if err != nil {
		t.Fatalf("quota row: %v", err)
	}
	if q.MonthlyLimit != 100 || q.PanelsLimit != 200 {
		t.Fatalf("plan limits not applied: %+v", q)
	}
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	svc, store, quotas := newTestService(t)
	ctx := context.Background()

	created := subscriptionEvent("customer.subscription.created", "sub_1", "u1", "mangaka-junior", "active")
	if err := svc.HandleWebhook(ctx, created, signPayload(created)); err != nil {
		t.Fatalf("created webhook: %v", err)
	}

	deleted := subscriptionEvent("customer.subscription.deleted", "sub_1", "u1", "mangaka-junior", "canceled")
	if err := svc.HandleWebhook(ctx, deleted, signPayload(deleted)); err != nil {
		t.Fatalf("deleted webhook: %v", err)
	}

	sub, err := store.GetSubscriptionByProviderID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("subscription row: %v", err)
	}
	if sub.Status != "canceled" {
		t.Fatalf("expected canceled status, got %q", sub.Status)
	}

	q, err := quotas.Refresh(ctx, "u1")
	if err != nil {
		t.Fatalf("refresh quota: %v", err)
	}
	if q.MonthlyLimit != model.DefaultMonthlyLimit || q.PanelsLimit != model.DefaultPanelLimit {
		t.Fatalf("limits not reverted to free tier: %+v", q)
	}
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	svc, store, _ := newTestService(t)

	payload := []byte(`{"id":"evt_2","api_version":"2023-10-16","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)
	if err := svc.HandleWebhook(context.Background(), payload, signPayload(payload)); err != nil {
		t.Fatalf("unknown event must be acknowledged, got %v", err)
	}
	if _, err := store.GetSubscriptionByProviderID(context.Background(), "in_1"); err == nil {
		t.Fatal("unknown event must not create rows")
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc, _, _ := newTestService(t)

	payload := subscriptionEvent("customer.subscription.created", "sub_1", "u1", "mangaka-junior", "active")
	err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeValidation {
		t.Fatalf("expected validation error for bad signature, got %v", err)
	}
}

func TestCreatePaymentIntentValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreatePaymentIntent(ctx, "u1", "nope", currency.EUR); err == nil {
		t.Fatal("unknown plan must be rejected")
	}
	if _, err := svc.CreatePaymentIntent(ctx, "u1", "mangaka-junior", currency.Currency("GBP")); err == nil {
		t.Fatal("unsupported currency must be rejected")
	}
	if _, err := svc.CreatePaymentIntent(ctx, "u1", "free", currency.EUR); err == nil {
		t.Fatal("zero-priced plan must not open a payment intent")
	}
}

func TestCancelSubscriptionOwnershipAndValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.CancelSubscription(ctx, "u1", ""); err == nil {
		t.Fatal("empty subscription id must be rejected")
	}
	if err := svc.CancelSubscription(ctx, "u1", "sub_missing"); !errors.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}

	if _, err := store.UpsertSubscription(ctx, model.Subscription{
		UserID: "owner", StripeSubscriptionID: "sub_1", Status: "active",
	}); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	if err := svc.CancelSubscription(ctx, "intruder", "sub_1"); !errors.IsNotFound(err) {
		t.Fatalf("foreign caller must see not-found, got %v", err)
	}
}
