package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	models "FinGuard/internal/domain/models"
	"FinGuard/internal/repository"
	"FinGuard/internal/service/ratelimit"
	"FinGuard/internal/usecase"
	"FinGuard/pkg/cache"
	xhttp "FinGuard/pkg/http"
	xlogger "FinGuard/pkg/logger"
	"FinGuard/pkg/metrics"
	"FinGuard/pkg/sqlite"
)

type stubFetcher struct {
	res models.FetchResult
	err error
}

func (s stubFetcher) Fetch(_ context.Context, ticker string, days int, _ time.Time) (models.FetchResult, error) {
	if s.err != nil {
		return models.FetchResult{}, s.err
	}
	out := s.res
	out.Ticker = ticker
	return out, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	e      *echo.Echo
	ledger *usecase.Ledger
	locks  *cache.MemoryCache
	alerts *usecase.AlertDispatcher
}

func newFixture(t *testing.T, fetcher usecase.MarketFetcher, limiter *ratelimit.Limiter, checks ...HealthCheck) *fixture {
	t.Helper()
	nop := xlogger.NewNop()
	ctx := context.Background()

	client, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ledger := usecase.NewLedger(nil, repository.NewSQLitePredictionStore(client), usecase.LedgerConfig{}, metrics.Noop{}, nop)
	if err := ledger.Init(ctx); err != nil {
		t.Fatalf("init ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	validator := usecase.NewPerformanceValidator(ledger, fetcher, nil, metrics.Noop{}, usecase.ValidatorConfig{}, nop)
	drift := usecase.NewDriftDetector(usecase.DriftConfig{}, repository.NewCacheReferenceStore(mc), nil, metrics.Noop{}, nop)
	alerts := usecase.NewAlertDispatcher(usecase.AlertConfig{}, nil, nil, metrics.Noop{}, nop)
	jobs := usecase.NewMonitoringJobs(usecase.JobsConfig{}, mc, fetcher, nil, ledger, validator, drift, alerts, nil, metrics.Noop{}, nop)

	e := echo.New()
	for _, h := range []xhttp.Handler{
		NewMarketHandler(nop, fetcher, nil, nil, limiter, ""),
		NewPredictionsHandler(nop, ledger, validator, ""),
		NewMonitoringHandler(nop, jobs, validator, drift, alerts, ledger, nil, checks, ""),
	} {
		h.RegisterRoutes(e)
	}
	return &fixture{e: e, ledger: ledger, locks: mc, alerts: alerts}
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, target, err, rec.Body.String())
	}
	if env.Status != rec.Code {
		t.Fatalf("body status %d differs from HTTP status %d", env.Status, rec.Code)
	}
	return rec.Code, env
}

func TestToAppError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrValidation, http.StatusBadRequest},
		{models.ErrPredictionNotFound, http.StatusNotFound},
		{models.ErrJobInProgress, http.StatusConflict},
		{models.ErrInsufficientData, http.StatusUnprocessableEntity},
		{models.ErrDataUnavailable, http.StatusServiceUnavailable},
		{models.ErrPersistence, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{xhttp.TooManyRequestsError("slow down"), http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		if got := toAppError(tc.err).Status; got != tc.want {
			t.Errorf("%v: status %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestFetch(t *testing.T) {
	rows := []models.OHLCV{{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 1, Close: 2, Volume: 10}}
	f := newFixture(t, stubFetcher{res: models.FetchResult{Rows: rows, Provenance: models.ProvenancePrimaryAPI}}, nil)

	code, env := f.do(t, http.MethodGet, "/api/fetch?ticker=aapl&days=1", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var res models.FetchResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if res.Ticker != "AAPL" || len(res.Rows) != 1 || res.Provenance != models.ProvenancePrimaryAPI {
		t.Fatalf("result = %+v", res)
	}

	if code, _ := f.do(t, http.MethodGet, "/api/fetch", ""); code != http.StatusBadRequest {
		t.Fatalf("missing ticker: status = %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/fetch?ticker=AAPL&as_of=yesterday", ""); code != http.StatusBadRequest {
		t.Fatalf("bad as_of: status = %d", code)
	}
}

func TestFetchUnavailable(t *testing.T) {
	f := newFixture(t, stubFetcher{err: models.ErrDataUnavailable}, nil)
	if code, _ := f.do(t, http.MethodGet, "/api/fetch?ticker=AAPL", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
}

func TestPredictRateLimited(t *testing.T) {
	f := newFixture(t, stubFetcher{}, ratelimit.New(0.001, 1))

	// the first call passes the limiter and fails validation
	if code, _ := f.do(t, http.MethodPost, "/api/predict", `{}`); code != http.StatusBadRequest {
		t.Fatalf("first call: status = %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/predict", `{}`); code != http.StatusTooManyRequests {
		t.Fatalf("second call: status = %d", code)
	}
}

func TestRecordListAndStats(t *testing.T) {
	f := newFixture(t, stubFetcher{}, nil)

	code, env := f.do(t, http.MethodPost, "/api/predictions",
		`{"request_id":"r-1","ticker":"aapl","predicted_at":"2024-01-08T10:00:00Z","predicted_value":101.5}`)
	if code != http.StatusCreated {
		t.Fatalf("record: status = %d (%s)", code, env.Data)
	}
	var rec models.PredictionRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.RequestID != "r-1" || rec.Ticker != "AAPL" {
		t.Fatalf("record = %+v", rec)
	}

	if code, _ := f.do(t, http.MethodPost, "/api/predictions", `{"ticker":"AAPL","predicted_value":-1}`); code != http.StatusBadRequest {
		t.Fatalf("negative value: status = %d", code)
	}

	code, env = f.do(t, http.MethodGet, "/api/predictions?ticker=AAPL&validated=false", "")
	if code != http.StatusOK {
		t.Fatalf("list: status = %d", code)
	}
	var list struct {
		Rows  []models.PredictionRecord `json:"rows"`
		Total int64                     `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Rows[0].PredictedValue != 101.5 {
		t.Fatalf("list = %+v", list)
	}

	code, env = f.do(t, http.MethodGet, "/api/predictions/stats", "")
	if code != http.StatusOK {
		t.Fatalf("stats: status = %d", code)
	}
	var stats models.PredictionStats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPerformanceWithoutValidatedRecords(t *testing.T) {
	f := newFixture(t, stubFetcher{}, nil)
	if code, _ := f.do(t, http.MethodGet, "/api/performance", ""); code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", code)
	}
}

func TestValidationJobConflict(t *testing.T) {
	f := newFixture(t, stubFetcher{}, nil)
	ok, err := f.locks.TryLock(context.Background(), "job:validation", time.Minute)
	if err != nil || !ok {
		t.Fatalf("take lease: ok=%v err=%v", ok, err)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/jobs/validation?days_back=3", ""); code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/jobs/validation?days_back=abc", ""); code != http.StatusBadRequest {
		t.Fatalf("bad days_back: status = %d", code)
	}
}

func TestHealthReportsBackends(t *testing.T) {
	f := newFixture(t, stubFetcher{}, nil,
		HealthCheck{Name: "sqlite", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)
	code, env := f.do(t, http.MethodGet, "/api/health", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var h HealthStatus
	if err := json.Unmarshal(env.Data, &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "degraded" || h.LedgerDegraded || h.Backends["sqlite"] != "ok" || h.Backends["redis"] != "connection refused" {
		t.Fatalf("health = %+v", h)
	}
}

func TestAlertAndDriftViews(t *testing.T) {
	f := newFixture(t, stubFetcher{}, nil)
	f.alerts.Send(context.Background(), "drift", "mean shifted", models.AlertWarning, nil)

	code, env := f.do(t, http.MethodGet, "/api/alerts?hours=1", "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), "mean shifted") {
		t.Fatalf("alerts: status=%d data=%s", code, env.Data)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/alerts?hours=1000", ""); code != http.StatusBadRequest {
		t.Fatalf("hours=1000: status = %d", code)
	}

	code, env = f.do(t, http.MethodGet, "/api/alerts/summary", "")
	var sum models.AlertSummary
	if err := json.Unmarshal(env.Data, &sum); err != nil || code != http.StatusOK || sum.Total != 1 {
		t.Fatalf("summary: status=%d sum=%+v err=%v", code, sum, err)
	}

	code, env = f.do(t, http.MethodGet, "/api/drift/summary?n=5", "")
	var ds models.DriftSummary
	if err := json.Unmarshal(env.Data, &ds); err != nil || code != http.StatusOK || ds.TotalChecks != 0 {
		t.Fatalf("drift summary: status=%d sum=%+v err=%v", code, ds, err)
	}

	if code, _ := f.do(t, http.MethodGet, "/api/drift/reference?ticker=AAPL", ""); code != http.StatusUnprocessableEntity {
		t.Fatalf("missing reference: status = %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/drift/reference", ""); code != http.StatusBadRequest {
		t.Fatalf("no ticker: status = %d", code)
	}
}

func TestPredictionDistribution(t *testing.T) {
	f := newFixture(t, stubFetcher{}, nil)

	if code, _ := f.do(t, http.MethodGet, "/api/drift/distribution?ticker=AAPL", ""); code != http.StatusUnprocessableEntity {
		t.Fatalf("empty ledger: status = %d", code)
	}

	for i, v := range []float64{10, 11, 12, 13, 14, 100} {
		body := fmt.Sprintf(`{"request_id":"d-%d","ticker":"AAPL","predicted_at":"2024-01-%02dT10:00:00Z","predicted_value":%g}`, i, i+1, v)
		if code, env := f.do(t, http.MethodPost, "/api/predictions", body); code != http.StatusCreated {
			t.Fatalf("record %d: status = %d (%s)", i, code, env.Data)
		}
	}

	code, env := f.do(t, http.MethodGet, "/api/drift/distribution?ticker=AAPL&limit=50", "")
	var out models.DistributionReport
	if err := json.Unmarshal(env.Data, &out); err != nil || code != http.StatusOK {
		t.Fatalf("distribution: status=%d err=%v", code, err)
	}
	if out.OutlierCount != 1 || out.Outliers[0] != 100 {
		t.Fatalf("outliers = %+v", out)
	}
}
