package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
	"github.com/mangaka-ai/mangaka-server/internal/logging"
	"github.com/mangaka-ai/mangaka-server/internal/model"
	"github.com/mangaka-ai/mangaka-server/internal/storage"
)

// Quota kinds consumed by the generation pipeline.
const (
	QuotaMonthly = "generation"
	QuotaPanels  = "panel"
)

// QuotaService tracks per-user generation credits, fronted by an optional
// redis cache. The store row stays authoritative; the cache only absorbs the
// read on every generation request.
type QuotaService struct {
	store storage.QuotaStore
	cache *redis.Client
	ttl   time.Duration
	log   *logging.Logger
	now   func() time.Time
}

// NewQuotaService creates a QuotaService. cache may be nil.
func NewQuotaService(store storage.QuotaStore, cache *redis.Client, ttl time.Duration, log *logging.Logger) *QuotaService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &QuotaService{store: store, cache: cache, ttl: ttl, log: log, now: time.Now}
}

func quotaCacheKey(userID string) string { return "quota:" + userID }

// GetOrInitQuota returns the user's quota row, creating it with the free-tier
// defaults on first access. Two concurrent first accesses race on the insert;
// the loser re-reads the winner's row.
func (s *QuotaService) GetOrInitQuota(ctx context.Context, userID string) (model.UserQuota, error) {
	if userID == "" {
		return model.UserQuota{}, errors.Validation("user id is required")
	}

	if q, ok := s.cacheGet(ctx, userID); ok {
		return q, nil
	}

	q, err := s.store.GetQuota(ctx, userID)
	switch {
	case err == nil:
		s.cacheSet(ctx, q)
		return q, nil
	case stderrors.Is(err, storage.ErrNotFound):
		created, err := s.store.InsertQuota(ctx, model.NewUserQuota(userID, s.now().UTC()))
		if err != nil {
			if stderrors.Is(err, storage.ErrConflict) {
				return s.Refresh(ctx, userID)
			}
			return model.UserQuota{}, errors.Upstream("database", err)
		}
		s.cacheSet(ctx, created)
		return created, nil
	default:
		return model.UserQuota{}, errors.Upstream("database", err)
	}
}

// Refresh refetches the quota row from the store, bypassing the cache, and
// repopulates the cache with the fresh row.
func (s *QuotaService) Refresh(ctx context.Context, userID string) (model.UserQuota, error) {
	q, err := s.store.GetQuota(ctx, userID)
	if err != nil {
		return model.UserQuota{}, mapStoreError(err, "quota not found")
	}
	s.cacheSet(ctx, q)
	return q, nil
}

// Consume spends n credits of the given kind, failing closed when the
// remaining balance is insufficient.
func (s *QuotaService) Consume(ctx context.Context, userID, kind string, n int) (model.UserQuota, error) {
	if n <= 0 {
		return model.UserQuota{}, errors.Validation("consume amount must be positive")
	}
	q, err := s.GetOrInitQuota(ctx, userID)
	if err != nil {
		return model.UserQuota{}, err
	}

	switch kind {
	case QuotaMonthly:
		if q.MonthlyRemaining() < n {
			return model.UserQuota{}, errors.QuotaExceeded(kind, q.MonthlyUsed, q.MonthlyLimit)
		}
		q.MonthlyUsed += n
	case QuotaPanels:
		if q.PanelsRemaining() < n {
			return model.UserQuota{}, errors.QuotaExceeded(kind, q.PanelsUsed, q.PanelsLimit)
		}
		q.PanelsUsed += n
	default:
		return model.UserQuota{}, errors.Validation("unknown quota kind")
	}

	q.UpdatedAt = s.now().UTC()
	updated, err := s.store.UpdateQuota(ctx, q)
	if err != nil {
		return model.UserQuota{}, errors.Upstream("database", err)
	}
	s.cacheSet(ctx, updated)
	return updated, nil
}

// ApplyPlanLimits raises the user's limits to the plan's allowances, keeping
// current usage counters intact. Used by the billing webhook.
func (s *QuotaService) ApplyPlanLimits(ctx context.Context, userID string, monthly, panels int) error {
	q, err := s.GetOrInitQuota(ctx, userID)
	if err != nil {
		return err
	}
	q.MonthlyLimit = monthly
	q.PanelsLimit = panels
	q.UpdatedAt = s.now().UTC()
	updated, err := s.store.UpdateQuota(ctx, q)
	if err != nil {
		return errors.Upstream("database", err)
	}
	s.cacheSet(ctx, updated)
	return nil
}

// Invalidate drops the cached quota row, forcing the next read through to
// the store. Wired to the realtime change feed on the quota table.
func (s *QuotaService) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil || userID == "" {
		return
	}
	if err := s.cache.Del(ctx, quotaCacheKey(userID)).Err(); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("quota cache invalidation failed")
	}
}

func (s *QuotaService) cacheGet(ctx context.Context, userID string) (model.UserQuota, bool) {
	if s.cache == nil {
		return model.UserQuota{}, false
	}
	raw, err := s.cache.Get(ctx, quotaCacheKey(userID)).Bytes()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			s.log.WithContext(ctx).WithError(err).Warn("quota cache read failed")
		}
		return model.UserQuota{}, false
	}
	var q model.UserQuota
	if err := json.Unmarshal(raw, &q); err != nil {
		return model.UserQuota{}, false
	}
	return q, true
}

func (s *QuotaService) cacheSet(ctx context.Context, q model.UserQuota) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, quotaCacheKey(q.UserID), raw, s.ttl).Err(); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("quota cache write failed")
	}
}
