package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchAttempts  *prometheus.CounterVec
	fetchLatency   *prometheus.HistogramVec
	ledgerOps      *prometheus.CounterVec
	ledgerDegraded prometheus.Gauge
	driftChecks    *prometheus.CounterVec
	mape           *prometheus.GaugeVec
	alerts         *prometheus.CounterVec
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
}

// New registers the collectors on the default registry. Call once per process.
func New() *Recorder {
	return &Recorder{
		fetchAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finguard_fetch_attempts_total",
				Help: "Market data fetch attempts by source and result",
			},
			[]string{"source", "result"},
		),
		fetchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finguard_fetch_duration_seconds",
				Help:    "Duration of single source calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		ledgerOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finguard_ledger_operations_total",
				Help: "Ledger operations by backend, operation and result",
			},
			[]string{"backend", "op", "result"},
		),
		ledgerDegraded: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "finguard_ledger_degraded",
				Help: "1 while the ledger is serving from the embedded backend",
			},
		),
		driftChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finguard_drift_checks_total",
				Help: "Drift checks by ticker and severity",
			},
			[]string{"ticker", "severity"},
		),
		mape: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finguard_prediction_mape",
				Help: "Latest MAPE of validated predictions",
			},
			[]string{"ticker"},
		),
		alerts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finguard_alerts_total",
				Help: "Alerts sent by type and severity",
			},
			[]string{"type", "severity"},
		),
		jobRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finguard_job_runs_total",
				Help: "Monitoring job runs by result",
			},
			[]string{"job", "result"},
		),
		jobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finguard_job_duration_seconds",
				Help:    "Monitoring job duration",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
			},
			[]string{"job"},
		),
	}
}

func (r *Recorder) RecordFetchAttempt(source, result string) {
	r.fetchAttempts.WithLabelValues(source, result).Inc()
}

func (r *Recorder) RecordFetchLatency(source string, seconds float64) {
	r.fetchLatency.WithLabelValues(source).Observe(seconds)
}

func (r *Recorder) RecordLedgerOp(backend, op, result string) {
	r.ledgerOps.WithLabelValues(backend, op, result).Inc()
}

func (r *Recorder) SetLedgerDegraded(degraded bool) {
	if degraded {
		r.ledgerDegraded.Set(1)
		return
	}
	r.ledgerDegraded.Set(0)
}

func (r *Recorder) RecordDriftCheck(ticker, severity string) {
	r.driftChecks.WithLabelValues(ticker, severity).Inc()
}

func (r *Recorder) SetMAPE(ticker string, mape float64) {
	if ticker == "" {
		ticker = "all"
	}
	r.mape.WithLabelValues(ticker).Set(mape)
}

func (r *Recorder) RecordAlert(alertType, severity string) {
	r.alerts.WithLabelValues(alertType, severity).Inc()
}

func (r *Recorder) RecordJobRun(job, result string, seconds float64) {
	r.jobRuns.WithLabelValues(job, result).Inc()
	r.jobDuration.WithLabelValues(job).Observe(seconds)
}

// Noop discards everything. Used by tests and one-shot tools.
type Noop struct{}

func (Noop) RecordFetchAttempt(string, string) {}
func (Noop) RecordFetchLatency(string, float64) {}
func (Noop) RecordLedgerOp(string, string, string) {}
func (Noop) SetLedgerDegraded(bool) {}
func (Noop) RecordDriftCheck(string, string) {}
func (Noop) SetMAPE(string, float64) {}
func (Noop) RecordAlert(string, string) {}
func (Noop) RecordJobRun(string, string, float64) {}
