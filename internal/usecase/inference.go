package usecase

import (
	"context"
	"fmt"
	"time"

	"FinGuard/internal/domain/models"
	"FinGuard/internal/domain/service"
	"FinGuard/internal/services/features"
	applogger "FinGuard/pkg/logger"
	"FinGuard/pkg/util"
)

// closeColumn is the index of the close price in FetchResult.Matrix rows.
const closeColumn = 3

// PredictionService serves a forecast for the next close and registers it
// for later validation.
type PredictionService struct {
	fetcher     MarketFetcher
	predictor   service.Predictor
	validator   *PerformanceValidator
	suffix      string
	defaultDays int
	l           *applogger.Logger
	now         func() time.Time
}

func NewPredictionService(
	fetcher MarketFetcher,
	predictor service.Predictor,
	validator *PerformanceValidator,
	tickerSuffix string,
	defaultDays int,
	l *applogger.Logger,
) *PredictionService {
	if defaultDays <= 0 {
		defaultDays = 60
	}
	return &PredictionService{
		fetcher:     fetcher,
		predictor:   predictor,
		validator:   validator,
		suffix:      tickerSuffix,
		defaultDays: defaultDays,
		l:           l,
		now:         time.Now,
	}
}

// Predict fetches the last days bars, normalizes every column to [0, 1],
// asks the model for the next normalized close and maps it back to price.
// A ledger failure still returns the prediction with Logged=false.
func (s *PredictionService) Predict(ctx context.Context, ticker string, days int) (models.PredictionResult, error) {
	var out models.PredictionResult
	sym, err := util.NormalizeTicker(ticker, s.suffix)
	if err != nil {
		return out, fmt.Errorf("%v: %w", err, models.ErrValidation)
	}
	if days == 0 {
		days = s.defaultDays
	}
	if days < 2 {
		return out, fmt.Errorf("days must be at least 2: %w", models.ErrValidation)
	}

	now := s.now()
	res, err := s.fetcher.Fetch(ctx, sym, days, now)
	if err != nil {
		return out, err
	}

	matrix := res.Matrix()
	scaler, err := features.FitMinMax(matrix)
	if err != nil {
		return out, fmt.Errorf("normalize %s: %w", sym, err)
	}
	normalized, err := s.predictor.Predict(ctx, sym, scaler.Transform(matrix))
	if err != nil {
		return out, fmt.Errorf("predict %s: %w", sym, err)
	}

	out = models.PredictionResult{
		Ticker:     sym,
		Prediction: scaler.Inverse(closeColumn, normalized),
		LastClose:  res.Rows[len(res.Rows)-1].Close,
		Provenance: res.Provenance,
		CreatedAt:  now.UTC(),
	}

	rec, err := s.validator.RegisterPrediction(ctx, PredictionInput{
		Ticker:         sym,
		PredictedAt:    now,
		PredictedValue: out.Prediction,
	})
	out.RequestID = rec.RequestID
	if err != nil {
		s.l.Warn("prediction not logged",
			applogger.String("ticker", sym),
			applogger.String("request_id", rec.RequestID),
			applogger.Error(err),
		)
		return out, nil
	}
	out.Logged = true

	s.l.Info("prediction served",
		applogger.String("ticker", sym),
		applogger.String("request_id", rec.RequestID),
		applogger.Float64("prediction", out.Prediction),
		applogger.String("provenance", string(res.Provenance)),
	)
	return out, nil
}
