package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

func newQuotaService(store storage.QuotaStore) *QuotaService {
	return NewQuotaService(store, nil, time.Minute, logging.Nop())
}

func TestGetOrInitQuotaCreatesDefaults(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newQuotaService(store)

	before := time.Now().UTC()
	q, err := svc.GetOrInitQuota(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get-or-init: %v", err)
	}

	if q.MonthlyUsed != 0 || q.MonthlyLimit != model.DefaultMonthlyLimit {
		t.Fatalf("unexpected monthly quota %d/%d", q.MonthlyUsed, q.MonthlyLimit)
	}
	if q.PanelsUsed != 0 || q.PanelsLimit != model.DefaultPanelLimit {
		t.Fatalf("unexpected panel quota %d/%d", q.PanelsUsed, q.PanelsLimit)
	}
	wantReset := before.AddDate(0, 1, 0)
	if q.ResetAt.Before(wantReset.Add(-time.Minute)) || q.ResetAt.After(wantReset.Add(time.Minute)) {
		t.Fatalf("reset date not one month out: %v", q.ResetAt)
	}
}

func TestGetOrInitQuotaPreservesExistingRow(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newQuotaService(store)

	existing := model.NewUserQuota("u1", time.Now().UTC())
	existing.MonthlyUsed = 3
	if _, err := store.InsertQuota(context.Background(), existing); err != nil {
		t.Fatalf("seed quota: %v", err)
	}

	q, err := svc.GetOrInitQuota(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get-or-init: %v", err)
	}
	if q.MonthlyUsed != 3 {
		t.Fatalf("existing row must not be reinitialized, got used=%d", q.MonthlyUsed)
	}
}

func TestConsumeFailsClosedAtLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newQuotaService(store)
	ctx := context.Background()

	for i := 0; i < model.DefaultMonthlyLimit; i++ {
		if _, err := svc.Consume(ctx, "u1", QuotaMonthly, 1); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}

	_, err := svc.Consume(ctx, "u1", QuotaMonthly, 1)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeQuotaLimit {
		t.Fatalf("expected quota-exceeded, got %v", err)
	}
	if se.HTTPStatus != http.StatusPaymentRequired {
		t.Fatalf("quota exhaustion must map to 402, got %d", se.HTTPStatus)
	}

	q, err := svc.Refresh(ctx, "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if q.MonthlyUsed != model.DefaultMonthlyLimit {
		t.Fatalf("failed consume must not change usage, got %d", q.MonthlyUsed)
	}
}

func TestConsumePanelsIndependentOfMonthly(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newQuotaService(store)
	ctx := context.Background()

	q, err := svc.Consume(ctx, "u1", QuotaPanels, 4)
	if err != nil {
		t.Fatalf("consume panels: %v", err)
	}
	if q.PanelsUsed != 4 || q.MonthlyUsed != 0 {
		t.Fatalf("panel consumption must not touch monthly counter: %+v", q)
	}
}

func TestApplyPlanLimitsKeepsUsage(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newQuotaService(store)
	ctx := context.Background()

	if _, err := svc.Consume(ctx, "u1", QuotaMonthly, 2); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := svc.ApplyPlanLimits(ctx, "u1", 100, 200); err != nil {
		t.Fatalf("apply plan limits: %v", err)
	}

	q, err := svc.Refresh(ctx, "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if q.MonthlyLimit != 100 || q.PanelsLimit != 200 {
		t.Fatalf("limits not raised: %+v", q)
	}
	if q.MonthlyUsed != 2 {
		t.Fatalf("usage must survive a plan change, got %d", q.MonthlyUsed)
	}
}
