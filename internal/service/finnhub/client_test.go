package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FinGuard/internal/service/ratelimit"
)

func TestFetchDailyParsesCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/stock/candle" || q.Get("symbol") != "MSFT" || q.Get("resolution") != "D" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("X-Finnhub-Token") != "key" {
			t.Errorf("token header missing")
		}
		_, _ = w.Write([]byte(`{"s":"ok","t":[1704153600,1704240000],"o":[370,368],"h":[372,371],"l":[366,365],"c":[370.9,367.8],"v":[25e6,23e6]}`))
	}))
	defer srv.Close()

	c := New("key", srv.URL, time.Second, ratelimit.New(100, 5))
	rows, err := c.FetchDaily(context.Background(), "MSFT", time.Unix(1704000000, 0), time.Unix(1704300000, 0), 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 || rows[1].Close != 367.8 || rows[0].Date.Format("2006-01-02") != "2024-01-02" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestFetchDailyNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"s":"no_data"}`))
	}))
	defer srv.Close()

	if _, err := New("key", srv.URL, time.Second, nil).FetchDaily(context.Background(), "MSFT", time.Time{}, time.Now(), 2); err == nil {
		t.Fatalf("expected error for no_data")
	}
	if _, err := New("", srv.URL, time.Second, nil).FetchDaily(context.Background(), "MSFT", time.Time{}, time.Now(), 2); err == nil {
		t.Fatalf("expected error without api key")
	}
}
