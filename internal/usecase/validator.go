package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	"FinGuard/internal/services/stats"
	applogger "FinGuard/pkg/logger"
	"FinGuard/pkg/util"
)

// MarketFetcher returns a validated window of daily bars.
type MarketFetcher interface {
	Fetch(ctx context.Context, ticker string, days int, asOf time.Time) (models.FetchResult, error)
}

// PredictionLedger is the part of the Ledger the validator writes through.
type PredictionLedger interface {
	Record(ctx context.Context, rec models.PredictionRecord) error
	MarkValidated(ctx context.Context, requestID string, v models.Validation) (bool, error)
	Query(ctx context.Context, f models.PredictionFilter) ([]models.PredictionRecord, error)
}

type ValidatorConfig struct {
	// SearchDays is how many calendar days from the target date are scanned
	// for a realized close.
	SearchDays   int
	WindowN      int
	HistoryLimit int
	Location     *time.Location
}

// PredictionInput is a forecast to register. Zero RequestID and PredictedAt
// are filled in.
type PredictionInput struct {
	RequestID      string
	Ticker         string
	PredictedAt    time.Time
	PredictedValue float64
}

// PerformanceValidator reconciles predictions with realized closes and
// tracks accuracy over time.
type PerformanceValidator struct {
	ledger  PredictionLedger
	fetcher MarketFetcher
	journal drepo.Journal
	metrics drepo.Metrics
	cfg     ValidatorConfig
	l       *applogger.Logger
	now     func() time.Time

	// snapshots is keyed by ticker; "" holds the all-ticker series.
	mu        sync.RWMutex
	snapshots map[string][]models.PerformanceSnapshot
}

// NewPerformanceValidator builds a validator. journal may be nil.
func NewPerformanceValidator(
	ledger PredictionLedger,
	fetcher MarketFetcher,
	journal drepo.Journal,
	metrics drepo.Metrics,
	cfg ValidatorConfig,
	l *applogger.Logger,
) *PerformanceValidator {
	if cfg.SearchDays <= 0 {
		cfg.SearchDays = 5
	}
	if cfg.WindowN <= 0 {
		cfg.WindowN = 7
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 365
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PerformanceValidator{
		ledger:  ledger,
		fetcher: fetcher,
		journal: journal,
		metrics: metrics,
		cfg:     cfg,
		l:         l,
		now:       time.Now,
		snapshots: make(map[string][]models.PerformanceSnapshot),
	}
}

func (v *PerformanceValidator) RegisterPrediction(ctx context.Context, in PredictionInput) (models.PredictionRecord, error) {
	if in.Ticker == "" {
		return models.PredictionRecord{}, fmt.Errorf("ticker required: %w", models.ErrValidation)
	}
	if math.IsNaN(in.PredictedValue) || math.IsInf(in.PredictedValue, 0) || in.PredictedValue <= 0 {
		return models.PredictionRecord{}, fmt.Errorf("predicted value %v: %w", in.PredictedValue, models.ErrValidation)
	}
	rec := models.PredictionRecord{
		RequestID:      in.RequestID,
		Ticker:         in.Ticker,
		PredictedAt:    in.PredictedAt,
		PredictedValue: in.PredictedValue,
	}
	if rec.RequestID == "" {
		rec.RequestID = uuid.NewString()
	}
	if rec.PredictedAt.IsZero() {
		rec.PredictedAt = v.now()
	}
	rec.PredictedAt = rec.PredictedAt.UTC()

	if err := v.ledger.Record(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Validate matches unvalidated predictions from the last daysBack days with
// realized closes. One fetch is made per ticker; a failing ticker leaves its
// records pending.
func (v *PerformanceValidator) Validate(ctx context.Context, daysBack int) (models.ValidationSummary, error) {
	var summary models.ValidationSummary
	if daysBack < 1 {
		return summary, fmt.Errorf("days_back must be positive: %w", models.ErrValidation)
	}

	now := v.now()
	unvalidated := false
	recs, err := v.ledger.Query(ctx, models.PredictionFilter{
		Validated: &unvalidated,
		Since:     now.AddDate(0, 0, -daysBack),
	})
	if err != nil {
		return summary, fmt.Errorf("load unvalidated predictions: %w", err)
	}
	summary.Examined = len(recs)

	today := util.DateOf(now, v.cfg.Location)
	due := make(map[string][]models.PredictionRecord)
	earliest := make(map[string]time.Time)
	for _, r := range recs {
		target := v.targetDate(r)
		if target.After(today) {
			summary.SkippedFuture++
			continue
		}
		due[r.Ticker] = append(due[r.Ticker], r)
		if e, ok := earliest[r.Ticker]; !ok || target.Before(e) {
			earliest[r.Ticker] = target
		}
	}

	tickers := make([]string, 0, len(due))
	for t := range due {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var fetchFailures int
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			summary.Pending = summary.Examined - summary.Validated - summary.SkippedFuture
			summary.FinishedAt = v.now().UTC()
			return summary, err
		}

		days := int(today.Sub(earliest[ticker])/(24*time.Hour)) + 1
		res, err := v.fetcher.Fetch(ctx, ticker, days, now)
		if err != nil {
			fetchFailures++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", ticker, err))
			v.l.Warn("realized prices unavailable",
				applogger.String("ticker", ticker),
				applogger.Int("records", len(due[ticker])),
				applogger.Error(err),
			)
			continue
		}

		closes := make(map[time.Time]float64, len(res.Rows))
		for _, row := range res.Rows {
			closes[util.DateOf(row.Date, v.cfg.Location)] = row.Close
		}
		for _, r := range due[ticker] {
			v.validateOne(ctx, r, closes, today, &summary)
		}
	}

	summary.Pending = summary.Examined - summary.Validated - summary.SkippedFuture
	summary.FinishedAt = v.now().UTC()

	v.l.Info("validation pass complete",
		applogger.Int("examined", summary.Examined),
		applogger.Int("validated", summary.Validated),
		applogger.Int("skipped_future", summary.SkippedFuture),
		applogger.Int("not_found", summary.NotFound),
		applogger.Int("pending", summary.Pending),
	)

	if len(tickers) > 0 && fetchFailures == len(tickers) {
		return summary, fmt.Errorf("realized prices unavailable for all %d tickers: %w",
			len(tickers), models.ErrDataUnavailable)
	}
	return summary, nil
}

func (v *PerformanceValidator) targetDate(r models.PredictionRecord) time.Time {
	return util.DateOf(r.PredictedAt, v.cfg.Location).AddDate(0, 0, 1)
}

func (v *PerformanceValidator) validateOne(
	ctx context.Context,
	r models.PredictionRecord,
	closes map[time.Time]float64,
	today time.Time,
	summary *models.ValidationSummary,
) {
	target := v.targetDate(r)
	actual, found := 0.0, false
	for off := 0; off < v.cfg.SearchDays; off++ {
		d := target.AddDate(0, 0, off)
		if d.After(today) {
			break
		}
		if c, ok := closes[d]; ok && c > 0 {
			actual, found = c, true
			break
		}
	}
	if !found {
		summary.NotFound++
		return
	}

	errAbs := math.Abs(r.PredictedValue - actual)
	outcome := models.Validation{
		ActualValue: actual,
		Error:       errAbs,
		ErrorPct:    errAbs / actual * 100,
		ValidatedAt: v.now().UTC(),
	}
	updated, err := v.ledger.MarkValidated(ctx, r.RequestID, outcome)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", r.RequestID, err))
		v.l.Warn("mark validated failed", applogger.String("request_id", r.RequestID), applogger.Error(err))
		return
	}
	if updated {
		summary.Validated++
	}
}

// Metrics computes a snapshot over the windowN most recent validated records
// of ticker, or of every ticker when empty, and appends it to the history.
func (v *PerformanceValidator) Metrics(ctx context.Context, ticker string, windowN int) (models.PerformanceSnapshot, error) {
	if windowN <= 0 {
		windowN = v.cfg.WindowN
	}
	validated := true
	recs, err := v.ledger.Query(ctx, models.PredictionFilter{Ticker: ticker, Validated: &validated})
	if err != nil {
		return models.PerformanceSnapshot{}, err
	}

	var errs, pcts []float64
	for _, r := range recs {
		if r.Error == nil || r.ErrorPct == nil {
			continue
		}
		errs = append(errs, *r.Error)
		pcts = append(pcts, *r.ErrorPct)
	}
	total := len(errs)
	if total == 0 {
		return models.PerformanceSnapshot{}, fmt.Errorf("no validated predictions: %w", models.ErrInsufficientData)
	}
	// records are newest first
	if len(errs) > windowN {
		errs, pcts = errs[:windowN], pcts[:windowN]
	}

	snap := models.PerformanceSnapshot{
		Timestamp:      v.now().UTC(),
		Ticker:         ticker,
		WindowN:        len(errs),
		TotalValidated: total,
		MinErrorPct:    math.Inf(1),
		MaxErrorPct:    math.Inf(-1),
	}
	snap.MAE, snap.MAPE, snap.RMSE = stats.ErrorMetrics(errs, pcts)
	for _, p := range pcts {
		snap.MinErrorPct = math.Min(snap.MinErrorPct, p)
		snap.MaxErrorPct = math.Max(snap.MaxErrorPct, p)
	}

	v.mu.Lock()
	v.appendSnapshot(snap)
	v.mu.Unlock()

	v.metrics.SetMAPE(ticker, snap.MAPE)
	if v.journal != nil {
		if err := v.journal.Append(ctx, drepo.KindSnapshot, ticker, snap.Timestamp, snap); err != nil {
			v.l.Warn("journal snapshot", applogger.Error(err))
		}
	}
	return snap, nil
}

func (v *PerformanceValidator) appendSnapshot(snap models.PerformanceSnapshot) {
	series := append(v.snapshots[snap.Ticker], snap)
	if over := len(series) - v.cfg.HistoryLimit; over > 0 {
		series = append(series[:0:0], series[over:]...)
	}
	v.snapshots[snap.Ticker] = series
}

// Trend fits a line through the MAPE of the last n snapshots of ticker.
// Snapshots of other tickers never enter the fit.
func (v *PerformanceValidator) Trend(ticker string, n int) models.TrendReport {
	recent := v.Snapshots(ticker, n)
	if len(recent) < 2 {
		return models.TrendReport{Trend: models.TrendInsufficientData, Snapshots: len(recent)}
	}
	// Snapshots is newest first; the fit runs oldest to newest
	mapes := make([]float64, len(recent))
	for i, s := range recent {
		mapes[len(recent)-1-i] = s.MAPE
	}
	slope := stats.Slope(mapes)
	out := models.TrendReport{
		Trend:       models.TrendStable,
		Slope:       slope,
		Snapshots:   len(recent),
		CurrentMAPE: recent[0].MAPE,
		Since:       recent[len(recent)-1].Timestamp,
	}
	switch {
	case slope < -0.1:
		out.Trend = models.TrendImproving
	case slope > 0.1:
		out.Trend = models.TrendDegrading
	}
	return out
}

// Snapshots returns up to n snapshots of ticker, newest first. n <= 0
// returns all.
func (v *PerformanceValidator) Snapshots(ticker string, n int) []models.PerformanceSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	series := v.snapshots[ticker]
	if n <= 0 || n > len(series) {
		n = len(series)
	}
	out := make([]models.PerformanceSnapshot, 0, n)
	for i := len(series) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, series[i])
	}
	return out
}

// Latest returns the newest snapshot of ticker.
func (v *PerformanceValidator) Latest(ticker string) (models.PerformanceSnapshot, error) {
	s := v.Snapshots(ticker, 1)
	if len(s) == 0 {
		return models.PerformanceSnapshot{}, fmt.Errorf("no performance snapshots yet: %w", models.ErrInsufficientData)
	}
	return s[0], nil
}

// Restore seeds the snapshot history from the journal.
func (v *PerformanceValidator) Restore(ctx context.Context) error {
	if v.journal == nil {
		return nil
	}
	snaps, err := drepo.DecodeRecent[models.PerformanceSnapshot](ctx, v.journal, drepo.KindSnapshot, v.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	v.mu.Lock()
	v.snapshots = make(map[string][]models.PerformanceSnapshot)
	for _, snap := range snaps {
		v.appendSnapshot(snap)
	}
	v.mu.Unlock()
	return nil
}
