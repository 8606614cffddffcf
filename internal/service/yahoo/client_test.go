package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const chartBody = `{"chart":{"result":[{"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"open":[187.1,184.2,null],"high":[188.4,185.8,183.0],
"low":[183.8,183.4,180.8],"close":[185.6,184.2,181.9],"volume":[82488700,58414500,71983600]}]}}],"error":null}}`

func TestFetchDailyParsesChart(t *testing.T) {
	var gotPath, gotInterval, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, nil)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	rows, err := c.FetchDaily(context.Background(), "AAPL", to.AddDate(0, 0, -10), to, 3)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/v8/finance/chart/AAPL" || gotInterval != "1d" || gotUA == "" {
		t.Fatalf("request path=%q interval=%q ua=%q", gotPath, gotInterval, gotUA)
	}
	// the third bar has a null open and is dropped
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Close != 185.6 || rows[1].Date.Format("2006-01-02") != "2024-01-03" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestFetchDailyReportsChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "", time.Second, nil).FetchDaily(context.Background(), "NOPE", time.Time{}, time.Now(), 5); err == nil {
		t.Fatalf("expected chart error")
	}
}

func TestFetchDailyReportsHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "", time.Second, nil).FetchDaily(context.Background(), "AAPL", time.Time{}, time.Now(), 5); err == nil {
		t.Fatalf("expected status error")
	}
}
