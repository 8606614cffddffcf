package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"FinGuard/internal/domain/models"
	pkgkafka "FinGuard/pkg/kafka"
	applogger "FinGuard/pkg/logger"
)

func TestPredictionIngestRecords(t *testing.T) {
	store := newMemStore()
	h := NewPredictionIngestHandler("predictions", newTestValidator(store, &fakeFetcher{}, day0), "", applogger.NewNop())
	ctx := context.Background()

	msg := []byte(`{"request_id":"ext-1","ticker":"msft","predicted_at":"2024-01-02T10:00:00Z","predicted_value":371.5}`)
	if err := h.Handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// redelivery is an idempotent upsert
	if err := h.Handle(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	r, ok := store.get("ext-1")
	if !ok || r.Ticker != "MSFT" || r.PredictedValue != 371.5 || r.PredictedAt.Format("2006-01-02") != "2024-01-02" {
		t.Fatalf("record = %+v", r)
	}

	if err := h.Handle(ctx, []byte(`{"ticker":"AAPL","predicted_value":100}`)); err != nil {
		t.Fatalf("handle without id: %v", err)
	}
}

func TestPredictionIngestHookClassifies(t *testing.T) {
	h := NewPredictionIngestHandler("predictions", newTestValidator(newMemStore(), &fakeFetcher{}, day0), "", applogger.NewNop())
	hook := h.Hook()

	cases := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{"ticker":`, "ERR_DECODE"},
		{"no value", `{"ticker":"AAPL"}`, "ERR_VALIDATION"},
		{"negative", `{"ticker":"AAPL","predicted_value":-1}`, "ERR_VALIDATION"},
		{"bad time", `{"ticker":"AAPL","predicted_value":1,"predicted_at":"yesterday"}`, "ERR_VALIDATION"},
		{"valid", `{"ticker":"AAPL","predicted_value":1}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := hook.BeforeHandle(context.Background(), "predictions", kafka.Message{}, []byte(tc.body))
			if tc.code == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var herr *pkgkafka.HookError
			if !errors.As(err, &herr) || herr.Code != tc.code {
				t.Fatalf("err = %v, want code %s", err, tc.code)
			}
		})
	}
}

func TestPredictionIngestPersistenceErrorIsRetryable(t *testing.T) {
	store := newMemStore()
	store.setDown(true)
	h := NewPredictionIngestHandler("predictions", newTestValidator(store, &fakeFetcher{}, day0), "", applogger.NewNop())

	err := h.Handle(context.Background(), []byte(`{"ticker":"AAPL","predicted_value":1}`))
	if err == nil {
		t.Fatalf("expected store failure")
	}
	var herr *pkgkafka.HookError
	if errors.As(err, &herr) || errors.Is(err, models.ErrValidation) {
		t.Fatalf("store failures must not be classified as invalid input: %v", err)
	}
}
