package usecase

import (
	"context"
	"fmt"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	"FinGuard/pkg/util"
)

// HistoryService reads stored daily bars from the local candle cache.
type HistoryService struct {
	candles drepo.CandleStore
	suffix  string
	now     func() time.Time
}

func NewHistoryService(candles drepo.CandleStore, tickerSuffix string) *HistoryService {
	return &HistoryService{candles: candles, suffix: tickerSuffix, now: time.Now}
}

// Query returns the bars of ticker with start <= date <= end, oldest first.
// A zero end means now; a zero start means one year before end.
func (h *HistoryService) Query(ctx context.Context, ticker string, start, end time.Time) ([]models.OHLCV, error) {
	sym, err := util.NormalizeTicker(ticker, h.suffix)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrValidation)
	}
	if end.IsZero() {
		end = h.now()
	}
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}
	if start.After(end) {
		return nil, fmt.Errorf("start %s after end %s: %w",
			start.Format("2006-01-02"), end.Format("2006-01-02"), models.ErrValidation)
	}

	rows, err := h.candles.Range(ctx, sym, start, end)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", sym, err)
	}
	if rows == nil {
		rows = []models.OHLCV{}
	}
	return rows, nil
}
