package predictor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPredictPostsWindow(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"prediction": 0.75}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, 1)
	v, err := c.Predict(context.Background(), "AAPL", [][]float64{{0, 1}, {1, 0}})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if v != 0.75 {
		t.Fatalf("prediction = %v", v)
	}
	if got.Ticker != "AAPL" || len(got.Window) != 2 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestPredictRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"prediction": 0.5}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 3)
	if _, err := c.Predict(context.Background(), "AAPL", [][]float64{{0}}); err != nil {
		t.Fatalf("predict: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestPredictRejectsMissingValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second, 1).Predict(context.Background(), "AAPL", [][]float64{{0}}); err == nil {
		t.Fatalf("expected error for empty response")
	}
	if _, err := NewClient("", time.Second, 1).Predict(context.Background(), "AAPL", nil); err == nil {
		t.Fatalf("expected error without url")
	}
}

func TestPredictDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad window", http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second, 3).Predict(context.Background(), "AAPL", [][]float64{{0}}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
