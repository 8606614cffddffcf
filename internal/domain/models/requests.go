package models

// Request models for the HTTP API. Bound and validated by pkg/http.

type FetchRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required,max=16"`
	Days   int    `query:"days" json:"days" default:"60" validate:"gte=1,lte=1000"`
	AsOf   string `query:"as_of" json:"as_of"`
}

type PredictRequest struct {
	Ticker string `json:"ticker" validate:"required,max=16"`
	Days   int    `json:"days" default:"60" validate:"gte=2,lte=1000"`
}

type RecordPredictionRequest struct {
	RequestID      string  `json:"request_id" validate:"omitempty,max=64"`
	Ticker         string  `json:"ticker" validate:"required,max=16"`
	PredictedAt    string  `json:"predicted_at"`
	PredictedValue float64 `json:"predicted_value" validate:"gt=0"`
}

type ListPredictionsRequest struct {
	Ticker    string `query:"ticker"`
	Validated string `query:"validated" validate:"omitempty,oneof=true false"`
	Limit     int    `query:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type TickerRequest struct {
	Ticker string `query:"ticker" json:"ticker"`
}

type HistoryRequest struct {
	Ticker string `query:"ticker" validate:"required,max=16"`
	Start  string `query:"start"`
	End    string `query:"end"`
}

type ValidationJobRequest struct {
	DaysBack int `query:"days_back" json:"days_back" default:"7" validate:"gte=1,lte=365"`
}

type PerformanceRequest struct {
	Ticker  string `query:"ticker"`
	WindowN int    `query:"window_n" default:"7" validate:"gte=1,lte=1000"`
	Days    int    `query:"days" default:"30" validate:"gte=1,lte=365"`
}

type LimitRequest struct {
	Limit int `query:"limit" default:"20" validate:"gte=1,lte=100"`
}

type AlertsRequest struct {
	Hours int `query:"hours" default:"24" validate:"gte=1,lte=720"`
}

type DriftSummaryRequest struct {
	N int `query:"n" default:"10" validate:"gte=1,lte=1000"`
}

type DistributionRequest struct {
	Ticker string `query:"ticker"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=5000"`
}
