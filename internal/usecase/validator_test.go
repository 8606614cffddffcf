package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"FinGuard/internal/domain/models"
	applogger "FinGuard/pkg/logger"
	"FinGuard/pkg/metrics"
)

type fakeFetcher struct {
	rows  map[string][]models.OHLCV
	prov  models.Provenance
	calls map[string]int
}

func (f *fakeFetcher) Fetch(_ context.Context, ticker string, _ int, _ time.Time) (models.FetchResult, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[ticker]++
	rows, ok := f.rows[ticker]
	if !ok {
		return models.FetchResult{}, models.ErrDataUnavailable
	}
	prov := f.prov
	if prov == "" {
		prov = models.ProvenanceLocalCache
	}
	return models.FetchResult{Ticker: ticker, Rows: rows, Provenance: prov}, nil
}

func closeOn(date string, c float64) models.OHLCV {
	d, _ := time.Parse("2006-01-02", date)
	return models.OHLCV{Date: d, Open: c, High: c, Low: c, Close: c, Volume: 1}
}

func at(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func newTestValidator(ledger PredictionLedger, f MarketFetcher, now time.Time) *PerformanceValidator {
	v := NewPerformanceValidator(ledger, f, nil, metrics.Noop{}, ValidatorConfig{}, applogger.NewNop())
	v.now = func() time.Time { return now }
	return v
}

func TestValidateMatchesNextAvailableClose(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	for _, r := range []models.PredictionRecord{
		rec("weekend", "AAPL", at("2024-01-05T10:00:00Z"), 100),
		rec("future", "AAPL", at("2024-01-10T09:00:00Z"), 100),
		rec("missing", "AAPL", at("2024-01-01T10:00:00Z"), 100),
		rec("nofeed", "MSFT", at("2024-01-02T10:00:00Z"), 300),
	} {
		_ = store.Record(ctx, r)
	}
	fetcher := &fakeFetcher{rows: map[string][]models.OHLCV{
		"AAPL": {closeOn("2024-01-08", 102), closeOn("2024-01-09", 104)},
	}}
	v := newTestValidator(store, fetcher, at("2024-01-10T15:00:00Z"))

	sum, err := v.Validate(ctx, 30)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sum.Examined != 4 || sum.Validated != 1 || sum.SkippedFuture != 1 || sum.NotFound != 1 || sum.Pending != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Errors) != 1 {
		t.Fatalf("errors = %v", sum.Errors)
	}
	if fetcher.calls["AAPL"] != 1 {
		t.Fatalf("expected one fetch per ticker, got %d", fetcher.calls["AAPL"])
	}

	r, _ := store.get("weekend")
	if !r.Validated || *r.ActualValue != 102 || *r.Error != 2 {
		t.Fatalf("weekend record = %+v", r)
	}
	if math.Abs(*r.ErrorPct-2.0/102*100) > 1e-12 {
		t.Fatalf("error pct = %v", *r.ErrorPct)
	}
	if f, _ := store.get("future"); f.Validated {
		t.Fatalf("future record must not be validated")
	}
}

func TestValidateAllFetchesFail(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	_ = store.Record(ctx, rec("a", "MSFT", at("2024-01-02T10:00:00Z"), 300))
	v := newTestValidator(store, &fakeFetcher{}, at("2024-01-10T15:00:00Z"))

	sum, err := v.Validate(ctx, 30)
	if !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if sum.Pending != 1 || sum.Validated != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	_ = store.Record(ctx, rec("a", "AAPL", at("2024-01-08T10:00:00Z"), 100))
	fetcher := &fakeFetcher{rows: map[string][]models.OHLCV{"AAPL": {closeOn("2024-01-09", 101)}}}
	v := newTestValidator(store, fetcher, at("2024-01-10T15:00:00Z"))

	first, _ := v.Validate(ctx, 7)
	second, err := v.Validate(ctx, 7)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if first.Validated != 1 || second.Examined != 0 || second.Validated != 0 {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
}

func TestValidateHonorsMarketLocation(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	// 01:00 UTC on the 9th is still the 8th in New York
	_ = store.Record(ctx, rec("a", "AAPL", at("2024-01-09T01:00:00Z"), 100))
	fetcher := &fakeFetcher{rows: map[string][]models.OHLCV{
		"AAPL": {
			{Date: at("2024-01-09T14:30:00Z"), Open: 110, High: 110, Low: 110, Close: 110},
			{Date: at("2024-01-10T14:30:00Z"), Open: 120, High: 120, Low: 120, Close: 120},
		},
	}}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	v := NewPerformanceValidator(store, fetcher, nil, metrics.Noop{}, ValidatorConfig{Location: loc}, applogger.NewNop())
	v.now = func() time.Time { return at("2024-01-10T20:00:00Z") }

	if _, err := v.Validate(ctx, 7); err != nil {
		t.Fatalf("validate: %v", err)
	}
	r, _ := store.get("a")
	if !r.Validated || *r.ActualValue != 110 {
		t.Fatalf("record = %+v", r)
	}
}

func TestMetricsUsesMostRecentWindow(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	// an old, large error that must fall outside the window
	_ = store.Record(ctx, rec("old", "AAPL", day0, 100))
	_, _ = store.MarkValidated(ctx, "old", models.Validation{ActualValue: 200, Error: 100, ErrorPct: 50})
	for i := 1; i <= 7; i++ {
		id := string(rune('a' + i))
		_ = store.Record(ctx, rec(id, "AAPL", day0.AddDate(0, 0, i), 100))
		_, _ = store.MarkValidated(ctx, id, models.Validation{ActualValue: 100, Error: float64(i), ErrorPct: float64(i)})
	}
	v := newTestValidator(store, &fakeFetcher{}, day0.AddDate(0, 0, 10))

	snap, err := v.Metrics(ctx, "AAPL", 7)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if snap.WindowN != 7 || snap.TotalValidated != 8 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.MAE != 4 || snap.MAPE != 4 {
		t.Fatalf("mae=%v mape=%v, want 4", snap.MAE, snap.MAPE)
	}
	if math.Abs(snap.RMSE-math.Sqrt(20)) > 1e-12 {
		t.Fatalf("rmse = %v, want sqrt(20)", snap.RMSE)
	}
	if snap.MinErrorPct != 1 || snap.MaxErrorPct != 7 {
		t.Fatalf("min/max = %v/%v", snap.MinErrorPct, snap.MaxErrorPct)
	}
	if latest, err := v.Latest("AAPL"); err != nil || latest.MAE != 4 {
		t.Fatalf("latest = %+v err=%v", latest, err)
	}
}

func TestMetricsWithoutValidatedRecords(t *testing.T) {
	v := newTestValidator(newMemStore(), &fakeFetcher{}, day0)
	if _, err := v.Metrics(context.Background(), "", 7); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrend(t *testing.T) {
	v := newTestValidator(newMemStore(), &fakeFetcher{}, day0)
	if got := v.Trend("", 7).Trend; got != models.TrendInsufficientData {
		t.Fatalf("trend = %s", got)
	}

	cases := []struct {
		name  string
		mapes []float64
		want  models.Trend
	}{
		{"improving", []float64{5, 4, 3}, models.TrendImproving},
		{"degrading", []float64{1, 2, 3, 4}, models.TrendDegrading},
		{"stable", []float64{2, 2.05, 2}, models.TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v.snapshots = map[string][]models.PerformanceSnapshot{}
			for i, m := range tc.mapes {
				v.appendSnapshot(models.PerformanceSnapshot{Timestamp: day0.AddDate(0, 0, i), MAPE: m})
			}
			tr := v.Trend("", 7)
			if tr.Trend != tc.want {
				t.Fatalf("trend = %s (slope %v), want %s", tr.Trend, tr.Slope, tc.want)
			}
			if tr.CurrentMAPE != tc.mapes[len(tc.mapes)-1] {
				t.Fatalf("current mape = %v", tr.CurrentMAPE)
			}
		})
	}
}

func TestTrendKeepsTickersApart(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		a := fmt.Sprintf("aapl-%d", i)
		m := fmt.Sprintf("msft-%d", i)
		_ = store.Record(ctx, rec(a, "AAPL", day0.AddDate(0, 0, i), 100))
		_, _ = store.MarkValidated(ctx, a, models.Validation{ActualValue: 100, Error: 1, ErrorPct: 1})
		_ = store.Record(ctx, rec(m, "MSFT", day0.AddDate(0, 0, i), 100))
		_, _ = store.MarkValidated(ctx, m, models.Validation{ActualValue: 100, Error: 10, ErrorPct: 10})
	}
	v := newTestValidator(store, &fakeFetcher{}, day0.AddDate(0, 0, 10))

	// accuracy never changes; only the order of the requests varies
	for _, ticker := range []string{"", "AAPL", "", "MSFT", ""} {
		if _, err := v.Metrics(ctx, ticker, 8); err != nil {
			t.Fatalf("metrics %q: %v", ticker, err)
		}
	}

	all := v.Trend("", 7)
	if all.Trend != models.TrendStable || all.Snapshots != 3 || all.CurrentMAPE != 5.5 {
		t.Fatalf("aggregate trend = %+v", all)
	}
	if got := v.Trend("MSFT", 7); got.Trend != models.TrendInsufficientData || got.CurrentMAPE != 0 {
		t.Fatalf("msft trend = %+v", got)
	}
	if latest, err := v.Latest("AAPL"); err != nil || latest.MAPE != 1 {
		t.Fatalf("aapl latest = %+v err=%v", latest, err)
	}
}

func TestRegisterPredictionAssignsID(t *testing.T) {
	store := newMemStore()
	v := newTestValidator(store, &fakeFetcher{}, day0)

	r, err := v.RegisterPrediction(context.Background(), PredictionInput{Ticker: "AAPL", PredictedValue: 123})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.RequestID == "" || !r.PredictedAt.Equal(day0) {
		t.Fatalf("record = %+v", r)
	}
	if _, ok := store.get(r.RequestID); !ok {
		t.Fatalf("record not persisted")
	}

	if _, err := v.RegisterPrediction(context.Background(), PredictionInput{Ticker: "AAPL", PredictedValue: math.NaN()}); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
