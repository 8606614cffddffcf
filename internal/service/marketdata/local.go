package marketdata

import (
	"context"
	"fmt"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
)

// LocalSource serves bars from the local candle cache. It ignores the
// request window start and returns the newest limit rows at or before to,
// even when they are stale.
type LocalSource struct {
	store drepo.CandleStore
}

var _ drepo.SourceClient = (*LocalSource)(nil)

func NewLocalSource(store drepo.CandleStore) *LocalSource {
	return &LocalSource{store: store}
}

func (s *LocalSource) Name() models.Provenance { return models.ProvenanceLocalCache }

func (s *LocalSource) FetchDaily(ctx context.Context, ticker string, _, to time.Time, limit int) ([]models.OHLCV, error) {
	rows, err := s.store.Latest(ctx, ticker, to, limit)
	if err != nil {
		return nil, fmt.Errorf("local cache %s: %w", ticker, err)
	}
	return rows, nil
}
