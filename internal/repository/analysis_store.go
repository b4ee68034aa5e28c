package repository

import (
	"context"
	"errors"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
)

// CacheAnalysisStore persists analyses through the cache service (Redis in
// production). The key hashes the identity; the identity type itself never
// becomes a string elsewhere.
type CacheAnalysisStore struct {
	cache     cache.Service
	retention time.Duration
}

func NewCacheAnalysisStore(c cache.Service, retention time.Duration) domrepo.AnalysisStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &CacheAnalysisStore{cache: c, retention: retention}
}

func analysisKey(id models.NewsIdentity) string {
	ts := ""
	if !id.Timestamp.IsZero() {
		ts = id.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return cache.GenerateKey("analysis", cache.HashKey(id.Headline, ts))
}

func (s *CacheAnalysisStore) Get(ctx context.Context, id models.NewsIdentity) (*models.SurpriseAnalysis, error) {
	a, err := cache.GetTyped[models.SurpriseAnalysis](ctx, s.cache, analysisKey(id))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *CacheAnalysisStore) Put(ctx context.Context, id models.NewsIdentity, a models.SurpriseAnalysis) error {
	a.Cached = false
	return s.cache.Set(ctx, analysisKey(id), a, s.retention)
}
