package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	"FinGuard/internal/service/marketdata"
	applogger "FinGuard/pkg/logger"
	"FinGuard/pkg/metrics"
)

type fakeSource struct {
	name  models.Provenance
	mu    sync.Mutex
	calls int
	fn    func(call int) ([]models.OHLCV, error)
}

func (s *fakeSource) Name() models.Provenance { return s.name }

func (s *fakeSource) FetchDaily(ctx context.Context, _ string, _, _ time.Time, _ int) ([]models.OHLCV, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fn(call)
}

func bars(n int, start time.Time, price float64) []models.OHLCV {
	out := make([]models.OHLCV, n)
	for i := range out {
		p := price + float64(i)
		out[i] = models.OHLCV{
			Date:   start.AddDate(0, 0, i),
			Open:   p,
			High:   p + 1,
			Low:    p - 1,
			Close:  p + 0.5,
			Volume: 1000,
		}
	}
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestFetcher(sources ...*fakeSource) (*CascadingFetcher, *sleepRecorder) {
	rec := &sleepRecorder{}
	srcs := make([]drepo.SourceClient, 0, len(sources))
	for _, s := range sources {
		srcs = append(srcs, s)
	}
	f := NewCascadingFetcher(srcs, FetcherConfig{
		MaxAttempts:    3,
		Backoff:        BackoffPolicy{Base: 2, Unit: time.Second, Max: 30 * time.Second},
		CallTimeout:    time.Second,
		LookbackFactor: 2,
	}, metrics.Noop{}, applogger.NewNop()).WithSleeper(rec.sleep)
	return f, rec
}

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestBackoffPolicy(t *testing.T) {
	b := BackoffPolicy{Base: 2, Unit: time.Second, Max: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for attempt, w := range want {
		if got := b.Backoff(attempt); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestFetchFallsThroughToFirstCompleteSource(t *testing.T) {
	a := &fakeSource{name: models.ProvenancePrimaryAPI, fn: func(int) ([]models.OHLCV, error) {
		return nil, errors.New("503")
	}}
	b := &fakeSource{name: models.ProvenanceSecondaryLibrary, fn: func(int) ([]models.OHLCV, error) {
		return bars(45, day0, 100), nil
	}}
	c := &fakeSource{name: models.ProvenanceLocalCache, fn: func(int) ([]models.OHLCV, error) {
		return bars(60, day0, 100), nil
	}}
	f, rec := newTestFetcher(a, b, c)

	res, err := f.Fetch(context.Background(), "AAPL", 60, day0.AddDate(0, 0, 90))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Provenance != models.ProvenanceLocalCache {
		t.Fatalf("provenance = %s, want local_cache", res.Provenance)
	}
	if len(res.Rows) != 60 {
		t.Fatalf("rows = %d, want 60", len(res.Rows))
	}
	if a.calls != 3 || b.calls != 3 || c.calls != 1 {
		t.Fatalf("calls a=%d b=%d c=%d", a.calls, b.calls, c.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}
	if len(rec.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", rec.sleeps, want)
	}
	for i := range want {
		if rec.sleeps[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", rec.sleeps, want)
		}
	}
}

func TestFetchReturnsLastRowsOldestFirst(t *testing.T) {
	rows := bars(10, day0, 50)
	// reverse to make sure the fetcher orders by date
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	a := &fakeSource{name: models.ProvenancePrimaryAPI, fn: func(int) ([]models.OHLCV, error) { return rows, nil }}
	f, _ := newTestFetcher(a)

	res, err := f.Fetch(context.Background(), "MSFT", 4, time.Time{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Rows) != 4 {
		t.Fatalf("rows = %d", len(res.Rows))
	}
	if !res.Rows[0].Date.Equal(day0.AddDate(0, 0, 6)) || !res.Rows[3].Date.Equal(day0.AddDate(0, 0, 9)) {
		t.Fatalf("unexpected window %v .. %v", res.Rows[0].Date, res.Rows[3].Date)
	}
}

func TestFetchRejectsBatchWithNaN(t *testing.T) {
	withNaN := bars(5, day0, 10)
	withNaN[2].Close = math.NaN()
	a := &fakeSource{name: models.ProvenancePrimaryAPI, fn: func(int) ([]models.OHLCV, error) { return withNaN, nil }}
	b := &fakeSource{name: models.ProvenanceStaticFallback, fn: func(int) ([]models.OHLCV, error) { return bars(5, day0, 10), nil }}
	f, _ := newTestFetcher(a, b)

	res, err := f.Fetch(context.Background(), "X", 5, time.Time{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Provenance != models.ProvenanceStaticFallback {
		t.Fatalf("provenance = %s", res.Provenance)
	}
}

func TestFetchDropsInvalidRows(t *testing.T) {
	rows := bars(6, day0, 10)
	rows[1].Low = rows[1].High + 1 // high < low
	rows[4].Open = 0
	a := &fakeSource{name: models.ProvenancePrimaryAPI, fn: func(int) ([]models.OHLCV, error) { return rows, nil }}
	f, _ := newTestFetcher(a)

	res, err := f.Fetch(context.Background(), "X", 4, time.Time{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, r := range res.Rows {
		if !r.Valid() {
			t.Fatalf("invalid row leaked: %+v", r)
		}
	}

	if _, err := f.Fetch(context.Background(), "X", 5, time.Time{}); !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable with only 4 valid rows, got %v", err)
	}
}

func TestFetchAllSourcesFail(t *testing.T) {
	fail := func(int) ([]models.OHLCV, error) { return nil, errors.New("down") }
	f, _ := newTestFetcher(
		&fakeSource{name: models.ProvenancePrimaryAPI, fn: fail},
		&fakeSource{name: models.ProvenanceSecondaryLibrary, fn: fail},
	)
	_, err := f.Fetch(context.Background(), "X", 5, time.Time{})
	if !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestFetchStopsOnCancellation(t *testing.T) {
	a := &fakeSource{name: models.ProvenancePrimaryAPI, fn: func(int) ([]models.OHLCV, error) {
		return nil, errors.New("down")
	}}
	b := &fakeSource{name: models.ProvenanceLocalCache, fn: func(int) ([]models.OHLCV, error) {
		return bars(5, day0, 10), nil
	}}
	f, _ := newTestFetcher(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	f.WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})

	_, err := f.Fetch(ctx, "X", 5, time.Time{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if b.calls != 0 {
		t.Fatalf("later sources must not be tried after cancellation")
	}
}

func TestFetchValidatesInput(t *testing.T) {
	f, _ := newTestFetcher()
	if _, err := f.Fetch(context.Background(), "", 5, time.Time{}); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFetchStaticSkipsInvalidTailRow(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Volume\n")
	for d := 1; d <= 10; d++ {
		low := 9.0
		if d == 8 {
			low = 20 // high below low
		}
		fmt.Fprintf(&b, "2024-01-%02d,10,11,%v,%d,100\n", d, low, d)
	}
	if err := os.WriteFile(filepath.Join(dir, "AAPL.csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewCascadingFetcher([]drepo.SourceClient{marketdata.NewStaticSource(dir)}, FetcherConfig{
		MaxAttempts:    1,
		CallTimeout:    time.Second,
		LookbackFactor: 2,
	}, metrics.Noop{}, applogger.NewNop())

	res, err := f.Fetch(context.Background(), "AAPL", 5, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := []float64{5, 6, 7, 9, 10}
	if len(res.Rows) != len(want) {
		t.Fatalf("rows = %+v", res.Rows)
	}
	for i, w := range want {
		if res.Rows[i].Close != w {
			t.Fatalf("row %d close = %v, want %v", i, res.Rows[i].Close, w)
		}
	}
	if res.Provenance != models.ProvenanceStaticFallback {
		t.Fatalf("provenance = %s", res.Provenance)
	}
}
