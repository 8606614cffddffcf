package models

import "time"

// PredictionRecord is one served forecast and, once known, its realized outcome.
type PredictionRecord struct {
	RequestID      string     `json:"request_id"`
	Ticker         string     `json:"ticker"`
	PredictedAt    time.Time  `json:"predicted_at"`
	PredictedValue float64    `json:"predicted_value"`
	Validated      bool       `json:"validated"`
	ActualValue    *float64   `json:"actual_value,omitempty"`
	Error          *float64   `json:"error,omitempty"`
	ErrorPct       *float64   `json:"error_pct,omitempty"`
	ValidatedAt    *time.Time `json:"validated_at,omitempty"`
}

// Validation carries the outcome written by MarkValidated.
type Validation struct {
	ActualValue float64
	Error       float64
	ErrorPct    float64
	ValidatedAt time.Time
}

// PredictionFilter narrows a ledger query. Nil fields are not applied.
type PredictionFilter struct {
	Ticker    string
	Validated *bool
	Since     time.Time
	Limit     int
}

// PredictionStats aggregates the ledger for one ticker or all of them.
type PredictionStats struct {
	Ticker            string  `json:"ticker,omitempty"`
	Total             int     `json:"total"`
	Validated         int     `json:"validated"`
	Pending           int     `json:"pending"`
	MAE               float64 `json:"mae"`
	MAPE              float64 `json:"mape"`
	RMSE              float64 `json:"rmse"`
	MinErrorPct       float64 `json:"min_error_pct"`
	MaxErrorPct       float64 `json:"max_error_pct"`
	AvgPredictedValue float64 `json:"avg_predicted_value"`
	AvgActualValue    float64 `json:"avg_actual_value"`
}

// PredictionResult is what the inference path returns to callers.
type PredictionResult struct {
	RequestID  string     `json:"request_id"`
	Ticker     string     `json:"ticker"`
	Prediction float64    `json:"prediction"`
	LastClose  float64    `json:"last_close"`
	Provenance Provenance `json:"provenance"`
	Logged     bool       `json:"logged"`
	CreatedAt  time.Time  `json:"created_at"`
}
