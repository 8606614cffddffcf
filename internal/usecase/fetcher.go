package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	applogger "FinGuard/pkg/logger"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BackoffPolicy computes the wait after a failed attempt.
type BackoffPolicy struct {
	Base float64
	Unit time.Duration
	Max  time.Duration
}

// Backoff returns Unit * Base^attempt, capped at Max. Attempt is zero based.
func (b BackoffPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(b.Unit) * math.Pow(b.Base, float64(attempt)))
	if b.Max > 0 && (d > b.Max || d < 0) {
		return b.Max
	}
	return d
}

type FetcherConfig struct {
	MaxAttempts    int
	Backoff        BackoffPolicy
	CallTimeout    time.Duration
	LookbackFactor int
}

// CascadingFetcher tries each source in priority order and returns the
// first batch that survives validation.
type CascadingFetcher struct {
	sources []drepo.SourceClient
	cfg     FetcherConfig
	sleep   Sleeper
	now     func() time.Time
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewCascadingFetcher(
	sources []drepo.SourceClient,
	cfg FetcherConfig,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *CascadingFetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff.Base == 0 {
		cfg.Backoff = BackoffPolicy{Base: 2, Unit: time.Second, Max: 30 * time.Second}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.LookbackFactor < 1 {
		cfg.LookbackFactor = 2
	}
	return &CascadingFetcher{
		sources: sources,
		cfg:     cfg,
		sleep:   ContextSleep,
		now:     time.Now,
		metrics: metrics,
		l:       l,
	}
}

// WithSleeper replaces the backoff sleeper. Tests use it to skip real waits.
func (f *CascadingFetcher) WithSleeper(s Sleeper) *CascadingFetcher {
	f.sleep = s
	return f
}

// Fetch returns exactly days rows, oldest first, tagged with the source that
// supplied them. A zero asOf means now.
func (f *CascadingFetcher) Fetch(ctx context.Context, ticker string, days int, asOf time.Time) (models.FetchResult, error) {
	if ticker == "" || days < 1 {
		return models.FetchResult{}, fmt.Errorf("ticker and positive days required: %w", models.ErrValidation)
	}
	if asOf.IsZero() {
		asOf = f.now()
	}
	lookback := days * f.cfg.LookbackFactor
	from := asOf.AddDate(0, 0, -lookback)

	var lastErr error
	for _, src := range f.sources {
		rows, err := f.trySource(ctx, src, ticker, days, lookback, from, asOf)
		if err == nil {
			f.l.Info("market data fetched",
				applogger.String("ticker", ticker),
				applogger.String("source", string(src.Name())),
				applogger.Int("rows", len(rows)),
			)
			return models.FetchResult{
				Ticker:     ticker,
				Rows:       rows,
				Provenance: src.Name(),
				FetchedAt:  f.now(),
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.FetchResult{}, fmt.Errorf("fetch %s: %w", ticker, ctxErr)
		}
		lastErr = err
		f.l.Warn("source exhausted, falling through",
			applogger.String("ticker", ticker),
			applogger.String("source", string(src.Name())),
			applogger.Error(err),
		)
	}

	if lastErr == nil {
		lastErr = errors.New("no sources configured")
	}
	return models.FetchResult{}, fmt.Errorf("%s: %d sources exhausted (last: %v): %w",
		ticker, len(f.sources), lastErr, models.ErrDataUnavailable)
}

func (f *CascadingFetcher) trySource(
	ctx context.Context,
	src drepo.SourceClient,
	ticker string,
	days, limit int,
	from, to time.Time,
) ([]models.OHLCV, error) {
	name := string(src.Name())
	var lastErr error

	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		raw, err := src.FetchDaily(callCtx, ticker, from, to, limit)
		cancel()
		f.metrics.RecordFetchLatency(name, time.Since(start).Seconds())

		if err == nil {
			rows, verr := AcceptBatch(raw, days)
			if verr == nil {
				f.metrics.RecordFetchAttempt(name, "ok")
				return rows, nil
			}
			f.metrics.RecordFetchAttempt(name, "invalid")
			lastErr = verr
		} else {
			f.metrics.RecordFetchAttempt(name, "error")
			lastErr = err
		}

		f.l.Debug("fetch attempt failed",
			applogger.String("ticker", ticker),
			applogger.String("source", name),
			applogger.Int("attempt", attempt+1),
			applogger.Error(lastErr),
		)

		if attempt < f.cfg.MaxAttempts-1 {
			if err := f.sleep(ctx, f.cfg.Backoff.Backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// AcceptBatch orders rows by date, rejects the whole batch on any NaN or
// infinite value, drops rows failing price sanity and requires at least days
// survivors. It returns the last days rows.
func AcceptBatch(raw []models.OHLCV, days int) ([]models.OHLCV, error) {
	for _, r := range raw {
		if r.HasNaN() {
			return nil, fmt.Errorf("batch contains NaN values: %w", models.ErrValidation)
		}
	}

	rows := make([]models.OHLCV, 0, len(raw))
	for _, r := range raw {
		if r.Valid() {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	if len(rows) < days {
		return nil, fmt.Errorf("got %d valid rows, need %d: %w", len(rows), days, models.ErrValidation)
	}
	return rows[len(rows)-days:], nil
}
