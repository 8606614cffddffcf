package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"FinGuard/internal/domain/models"
	"FinGuard/internal/domain/repository"
	"FinGuard/pkg/cache"
)

const referenceKeyPrefix = "drift:reference"

// CacheReferenceStore keeps one ReferenceStatistics per ticker in the shared
// cache. A Save replaces the previous value wholesale.
type CacheReferenceStore struct {
	cache cache.Service
}

func NewCacheReferenceStore(c cache.Service) *CacheReferenceStore {
	return &CacheReferenceStore{cache: c}
}

var _ repository.ReferenceStore = (*CacheReferenceStore)(nil)

func (s *CacheReferenceStore) Save(ctx context.Context, ref models.ReferenceStatistics) error {
	return s.cache.Set(ctx, referenceKey(ref.Ticker), ref, 0)
}

func (s *CacheReferenceStore) Load(ctx context.Context, ticker string) (models.ReferenceStatistics, error) {
	var ref models.ReferenceStatistics
	if err := s.cache.Get(ctx, referenceKey(ticker), &ref); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return ref, fmt.Errorf("no reference for %s: %w", ticker, models.ErrInsufficientData)
		}
		return ref, err
	}
	return ref, nil
}

func referenceKey(ticker string) string {
	return cache.GenerateKey(referenceKeyPrefix, strings.ToUpper(ticker))
}
