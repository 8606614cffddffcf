package models

import "time"

type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertLevel is the dispatcher severity scale.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendStable           Trend = "stable"
	TrendDegrading        Trend = "degrading"
	TrendInsufficientData Trend = "insufficient_data"
)

// WindowStats are descriptive statistics of one window of observations.
type WindowStats struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	IQR    float64 `json:"iqr"`
}

// ReferenceStatistics is the baseline a ticker is compared against.
type ReferenceStatistics struct {
	Ticker      string    `json:"ticker"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	UpdatedAt   time.Time `json:"updated_at"`
	WindowStats
}

type DriftComparison struct {
	MeanDiffPct float64  `json:"mean_diff_pct"`
	StdDiffPct  float64  `json:"std_diff_pct"`
	KSStatistic *float64 `json:"ks_statistic,omitempty"`
	KSPValue    *float64 `json:"ks_p_value,omitempty"`
}

type DriftReport struct {
	Timestamp        time.Time       `json:"timestamp"`
	Ticker           string          `json:"ticker"`
	WindowEnd        time.Time       `json:"window_end"`
	CurrentWindow    WindowStats     `json:"current_window"`
	ReferenceWindow  WindowStats     `json:"reference_window"`
	Comparisons      DriftComparison `json:"comparisons"`
	DriftDetected    bool            `json:"drift_detected"`
	Severity         Severity        `json:"severity"`
	Alerts           []string        `json:"alerts"`
	InsufficientData bool            `json:"insufficient_data"`
	Reason           string          `json:"reason,omitempty"`
}

type DriftSummary struct {
	TotalChecks        int          `json:"total_checks"`
	DriftDetectedCount int          `json:"drift_detected_count"`
	DriftRate          float64      `json:"drift_rate"`
	LastCheck          *DriftReport `json:"last_check,omitempty"`
}

// DistributionReport describes a batch of predictions and its IQR outliers.
type DistributionReport struct {
	Stats        WindowStats `json:"stats"`
	LowerFence   float64     `json:"lower_fence"`
	UpperFence   float64     `json:"upper_fence"`
	Outliers     []float64   `json:"outliers"`
	OutlierCount int         `json:"outlier_count"`
	OutlierPct   float64     `json:"outlier_pct"`
}

type PerformanceSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	Ticker         string    `json:"ticker,omitempty"`
	WindowN        int       `json:"window_n"`
	MAE            float64   `json:"mae"`
	MAPE           float64   `json:"mape"`
	RMSE           float64   `json:"rmse"`
	MinErrorPct    float64   `json:"min_error_pct"`
	MaxErrorPct    float64   `json:"max_error_pct"`
	TotalValidated int       `json:"total_validated"`
}

type TrendReport struct {
	Trend       Trend     `json:"trend"`
	Slope       float64   `json:"slope"`
	Snapshots   int       `json:"snapshots"`
	CurrentMAPE float64   `json:"current_mape"`
	Since       time.Time `json:"since"`
}

type ValidationSummary struct {
	Examined      int       `json:"examined"`
	Validated     int       `json:"validated"`
	SkippedFuture int       `json:"skipped_future"`
	NotFound      int       `json:"not_found"`
	Pending       int       `json:"pending"`
	Errors        []string  `json:"errors,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

type AlertRecord struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Severity  AlertLevel             `json:"severity"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type AlertSummary struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"by_type"`
	BySeverity map[string]int `json:"by_severity"`
	LastAlert  *AlertRecord   `json:"last_alert,omitempty"`
}

// RunSummary is the outcome of one full monitoring pass.
type RunSummary struct {
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	Validation  *ValidationSummary   `json:"validation,omitempty"`
	Performance *PerformanceSnapshot `json:"performance,omitempty"`
	Trend       *TrendReport         `json:"trend,omitempty"`
	Drift       []DriftReport        `json:"drift,omitempty"`
	Alerts      int                  `json:"alerts"`
	Errors      []string             `json:"errors,omitempty"`
}
