package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/segmentio/kafka-go"

	"FinGuard/internal/domain/models"
	pkgkafka "FinGuard/pkg/kafka"
	applogger "FinGuard/pkg/logger"
	"FinGuard/pkg/util"
)

// incoming message schema: {request_id?, ticker, predicted_at?, predicted_value}
type predictionMessage struct {
	RequestID      string   `json:"request_id"`
	Ticker         string   `json:"ticker"`
	PredictedAt    string   `json:"predicted_at"`
	PredictedValue *float64 `json:"predicted_value"`
}

// PredictionIngestHandler registers predictions served by other processes
// and published to Kafka.
type PredictionIngestHandler struct {
	topic     string
	validator *PerformanceValidator
	suffix    string
	l         *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*PredictionIngestHandler)(nil)

func NewPredictionIngestHandler(topic string, validator *PerformanceValidator, tickerSuffix string, l *applogger.Logger) *PredictionIngestHandler {
	return &PredictionIngestHandler{topic: topic, validator: validator, suffix: tickerSuffix, l: l}
}

func (h *PredictionIngestHandler) Topic() string { return h.topic }

func (h *PredictionIngestHandler) Handle(ctx context.Context, b []byte) error {
	in, err := h.decode(b)
	if err != nil {
		return err
	}
	rec, err := h.validator.RegisterPrediction(ctx, in)
	if err != nil {
		return fmt.Errorf("register %s: %w", rec.RequestID, err)
	}
	h.l.Debug("prediction ingested",
		applogger.String("request_id", rec.RequestID),
		applogger.String("ticker", rec.Ticker),
	)
	return nil
}

// Hook rejects undecodable or invalid messages before the handler runs, so
// they go to the DLQ without retries.
func (h *PredictionIngestHandler) Hook() pkgkafka.HookFuncs {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			if _, err := h.decode(data); err != nil {
				code := "ERR_DECODE"
				if errors.Is(err, models.ErrValidation) {
					code = "ERR_VALIDATION"
				}
				return ctx, km, data, &pkgkafka.HookError{Code: code, Err: err}
			}
			return ctx, km, data, nil
		},
	}
}

func (h *PredictionIngestHandler) decode(b []byte) (PredictionInput, error) {
	var m predictionMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return PredictionInput{}, fmt.Errorf("decode prediction: %w", err)
	}
	ticker, err := util.NormalizeTicker(m.Ticker, h.suffix)
	if err != nil {
		return PredictionInput{}, fmt.Errorf("%v: %w", err, models.ErrValidation)
	}
	if m.PredictedValue == nil {
		return PredictionInput{}, fmt.Errorf("predicted_value missing: %w", models.ErrValidation)
	}
	if v := *m.PredictedValue; math.IsNaN(v) || v <= 0 {
		return PredictionInput{}, fmt.Errorf("predicted_value %v: %w", v, models.ErrValidation)
	}
	in := PredictionInput{RequestID: m.RequestID, Ticker: ticker, PredictedValue: *m.PredictedValue}
	if m.PredictedAt != "" {
		at, ok := util.ParseTime(m.PredictedAt)
		if !ok {
			return PredictionInput{}, fmt.Errorf("predicted_at %q: %w", m.PredictedAt, models.ErrValidation)
		}
		in.PredictedAt = at
	}
	return in, nil
}
