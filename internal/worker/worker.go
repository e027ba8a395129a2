// Package worker runs the background maintenance jobs: the monthly quota
// reset sweep and the stale draft janitor.
package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/metrics"
	"github.com/mangaka-ai/mangaka-server/internal/service"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// draftMaxAge is how long an orphaned autosave draft survives before the
// janitor removes it.
const draftMaxAge = 24 * time.Hour

// Worker owns the cron scheduler and its jobs.
type Worker struct {
	store  storage.Store
	quotas *service.QuotaService
	log    *logging.Logger
	now    func() time.Time

	cron *cron.Cron
}

// New creates a Worker.
func New(store storage.Store, quotas *service.QuotaService, log *logging.Logger) *Worker {
	return &Worker{
		store:  store,
		quotas: quotas,
		log:    log,
		now:    time.Now,
		cron:   cron.New(),
	}
}

// Start schedules the jobs and starts the scheduler. Both jobs run hourly;
// each sweep only touches rows that are actually due.
func (w *Worker) Start() error {
	if _, err := w.cron.AddFunc("@hourly", func() {
		if err := w.ResetDueQuotas(context.Background()); err != nil {
			w.log.WithError(err).Error("quota reset sweep failed")
		}
	}); err != nil {
		return err
	}
	if _, err := w.cron.AddFunc("@hourly", func() {
		if err := w.ReapStaleDrafts(context.Background()); err != nil {
			w.log.WithError(err).Error("draft janitor failed")
		}
	}); err != nil {
		return err
	}

	w.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

// ResetDueQuotas zeroes the usage counters on every quota row whose reset
// date has passed and pushes the next reset one month out. A failed row is
// logged and skipped so one bad row never blocks the sweep.
func (w *Worker) ResetDueQuotas(ctx context.Context) error {
	now := w.now().UTC()
	due, err := w.store.ListQuotasDueForReset(ctx, now)
	if err != nil {
		return err
	}

	for _, q := range due {
		q.MonthlyUsed = 0
		q.PanelsUsed = 0
		q.ResetAt = now.AddDate(0, 1, 0)
		q.UpdatedAt = now
		if _, err := w.store.UpdateQuota(ctx, q); err != nil {
			w.log.WithError(err).WithFields(map[string]interface{}{"user_id": q.UserID}).Error("quota reset failed")
			continue
		}
		w.quotas.Invalidate(ctx, q.UserID)
	}

	if len(due) > 0 {
		w.log.WithFields(map[string]interface{}{"count": len(due)}).Info("quota counters reset")
	}
	return nil
}

// ReapStaleDrafts deletes autosave drafts past draftMaxAge. Drafts normally
// disappear through the cleanup endpoint; this catches sessions that died
// without one.
func (w *Worker) ReapStaleDrafts(ctx context.Context) error {
	cutoff := w.now().UTC().Add(-draftMaxAge)
	n, err := w.store.DeleteDraftsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.DraftsReaped.Add(float64(n))
		w.log.WithFields(map[string]interface{}{"count": n}).Info("stale drafts removed")
	}
	return nil
}
