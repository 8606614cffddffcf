package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	"FinGuard/internal/services/stats"
	applogger "FinGuard/pkg/logger"
)

// maxDiffPct caps percentage differences against a zero baseline so reports
// stay JSON encodable.
const maxDiffPct = 1e6

type DriftConfig struct {
	CurrentWindow   int
	ReferenceWindow int
	MeanThreshold   float64
	StdThreshold    float64
	KSAlpha         float64
	KSMinCurrent    int
	KSMinReference  int
	CorroborateMean float64
	CorroborateStd  float64
	HighMean        float64
	HighStd         float64
	MinCurrent      int
	MinReference    int
	HistoryLimit    int
}

func (c *DriftConfig) withDefaults() {
	setInt := func(p *int, v int) {
		if *p <= 0 {
			*p = v
		}
	}
	setFloat := func(p *float64, v float64) {
		if *p <= 0 {
			*p = v
		}
	}
	setInt(&c.CurrentWindow, 7)
	setInt(&c.ReferenceWindow, 30)
	setInt(&c.KSMinCurrent, 5)
	setInt(&c.KSMinReference, 20)
	setInt(&c.MinCurrent, 3)
	setInt(&c.MinReference, 10)
	setInt(&c.HistoryLimit, 100)
	setFloat(&c.MeanThreshold, 5)
	setFloat(&c.StdThreshold, 50)
	setFloat(&c.KSAlpha, 0.05)
	setFloat(&c.CorroborateMean, 3)
	setFloat(&c.CorroborateStd, 30)
	setFloat(&c.HighMean, 10)
	setFloat(&c.HighStd, 100)
}

// DriftDetector compares the most recent observations of a series with the
// window just before them.
type DriftDetector struct {
	cfg     DriftConfig
	refs    drepo.ReferenceStore
	journal drepo.Journal
	metrics drepo.Metrics
	l       *applogger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	history []models.DriftReport
}

// NewDriftDetector builds a detector. journal may be nil.
func NewDriftDetector(
	cfg DriftConfig,
	refs drepo.ReferenceStore,
	journal drepo.Journal,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *DriftDetector {
	cfg.withDefaults()
	return &DriftDetector{
		cfg:     cfg,
		refs:    refs,
		journal: journal,
		metrics: metrics,
		l:       l,
		now:     time.Now,
	}
}

// Windows returns how many trailing observations a check needs.
func (d *DriftDetector) Windows() (current, reference int) {
	return d.cfg.CurrentWindow, d.cfg.ReferenceWindow
}

// split sorts series by date and cuts the current and reference windows.
func (d *DriftDetector) split(series []models.PricePoint) (cur, ref []models.PricePoint) {
	sorted := append([]models.PricePoint(nil), series...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	nCur := min(d.cfg.CurrentWindow, len(sorted))
	cur = sorted[len(sorted)-nCur:]
	rest := sorted[:len(sorted)-nCur]
	nRef := min(d.cfg.ReferenceWindow, len(rest))
	ref = rest[len(rest)-nRef:]
	return cur, ref
}

// SetReference computes statistics of the reference window of series and
// replaces the stored baseline for ticker.
func (d *DriftDetector) SetReference(ctx context.Context, ticker string, series []models.PricePoint) (models.ReferenceStatistics, error) {
	_, ref := d.split(series)
	if len(ref) < d.cfg.MinReference {
		return models.ReferenceStatistics{}, fmt.Errorf("reference window for %s has %d observations, need %d: %w",
			ticker, len(ref), d.cfg.MinReference, models.ErrInsufficientData)
	}
	out := models.ReferenceStatistics{
		Ticker:      ticker,
		WindowStart: ref[0].Date,
		WindowEnd:   ref[len(ref)-1].Date,
		UpdatedAt:   d.now().UTC(),
		WindowStats: stats.Describe(values(ref)),
	}
	if err := d.refs.Save(ctx, out); err != nil {
		return out, fmt.Errorf("save reference %s: %w", ticker, err)
	}
	return out, nil
}

func (d *DriftDetector) Reference(ctx context.Context, ticker string) (models.ReferenceStatistics, error) {
	return d.refs.Load(ctx, ticker)
}

// Check compares the current window with the reference window of series,
// records the report and returns it.
func (d *DriftDetector) Check(ctx context.Context, ticker string, series []models.PricePoint) models.DriftReport {
	report := d.evaluate(ticker, series)
	d.append(ctx, report)
	return report
}

func (d *DriftDetector) evaluate(ticker string, series []models.PricePoint) models.DriftReport {
	cur, ref := d.split(series)
	report := models.DriftReport{
		Timestamp:       d.now().UTC(),
		Ticker:          ticker,
		CurrentWindow:   stats.Describe(values(cur)),
		ReferenceWindow: stats.Describe(values(ref)),
		Severity:        models.SeverityNone,
		Alerts:          []string{},
	}
	if len(cur) > 0 {
		report.WindowEnd = cur[len(cur)-1].Date
	}

	if len(cur) < d.cfg.MinCurrent || len(ref) < d.cfg.MinReference {
		report.InsufficientData = true
		report.Reason = fmt.Errorf("current=%d reference=%d, need %d and %d: %w",
			len(cur), len(ref), d.cfg.MinCurrent, d.cfg.MinReference, models.ErrInsufficientData).Error()
		return report
	}

	c, r := report.CurrentWindow, report.ReferenceWindow
	meanDiff := math.Min(stats.PctDiff(c.Mean, r.Mean), maxDiffPct)
	stdDiff := math.Min(stats.PctDiff(c.Std, r.Std), maxDiffPct)
	report.Comparisons = models.DriftComparison{MeanDiffPct: meanDiff, StdDiffPct: stdDiff}

	if meanDiff > d.cfg.MeanThreshold {
		report.DriftDetected = true
		report.Alerts = append(report.Alerts, fmt.Sprintf("mean changed %.2f%%", meanDiff))
	}
	if stdDiff > d.cfg.StdThreshold {
		report.DriftDetected = true
		report.Alerts = append(report.Alerts, fmt.Sprintf("std changed %.2f%%", stdDiff))
	}

	if len(cur) >= d.cfg.KSMinCurrent && len(ref) >= d.cfg.KSMinReference {
		ks, p := stats.KSTest(values(cur), values(ref))
		report.Comparisons.KSStatistic = &ks
		report.Comparisons.KSPValue = &p
		// a shape change alone on a handful of samples is noise
		corroborated := meanDiff > d.cfg.CorroborateMean || stdDiff > d.cfg.CorroborateStd
		if p < d.cfg.KSAlpha && corroborated {
			report.DriftDetected = true
			report.Alerts = append(report.Alerts, fmt.Sprintf("KS test: p-value=%.4f < %.2f", p, d.cfg.KSAlpha))
		}
	}

	switch {
	case !report.DriftDetected:
	case meanDiff > d.cfg.HighMean || stdDiff > d.cfg.HighStd:
		report.Severity = models.SeverityHigh
	default:
		report.Severity = models.SeverityMedium
	}
	return report
}

func (d *DriftDetector) append(ctx context.Context, report models.DriftReport) {
	d.mu.Lock()
	d.history = append(d.history, report)
	if over := len(d.history) - d.cfg.HistoryLimit; over > 0 {
		d.history = append(d.history[:0:0], d.history[over:]...)
	}
	d.mu.Unlock()

	label := string(report.Severity)
	if report.InsufficientData {
		label = "insufficient_data"
	}
	d.metrics.RecordDriftCheck(report.Ticker, label)

	if report.DriftDetected {
		d.l.Warn("drift detected",
			applogger.String("ticker", report.Ticker),
			applogger.String("severity", string(report.Severity)),
			applogger.Strings("alerts", report.Alerts),
		)
	} else {
		d.l.Info("drift check complete",
			applogger.String("ticker", report.Ticker),
			applogger.Bool("insufficient_data", report.InsufficientData),
			applogger.Float64("mean_diff_pct", report.Comparisons.MeanDiffPct),
		)
	}

	if d.journal == nil {
		return
	}
	if err := d.journal.Append(ctx, drepo.KindDriftReport, report.Ticker, report.Timestamp, report); err != nil {
		d.l.Warn("journal drift report", applogger.String("ticker", report.Ticker), applogger.Error(err))
	}
}

// Restore seeds the in-memory history from the journal.
func (d *DriftDetector) Restore(ctx context.Context) error {
	if d.journal == nil {
		return nil
	}
	reports, err := drepo.DecodeRecent[models.DriftReport](ctx, d.journal, drepo.KindDriftReport, d.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	// journal returns newest first
	for i, j := 0, len(reports)-1; i < j; i, j = i+1, j-1 {
		reports[i], reports[j] = reports[j], reports[i]
	}
	d.mu.Lock()
	d.history = reports
	d.mu.Unlock()
	return nil
}

// History returns up to limit reports, newest first. An empty ticker matches
// every ticker.
func (d *DriftDetector) History(ticker string, limit int) []models.DriftReport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []models.DriftReport
	for i := len(d.history) - 1; i >= 0; i-- {
		if ticker != "" && d.history[i].Ticker != ticker {
			continue
		}
		out = append(out, d.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Latest returns the newest report for ticker.
func (d *DriftDetector) Latest(ticker string) (models.DriftReport, bool) {
	h := d.History(ticker, 1)
	if len(h) == 0 {
		return models.DriftReport{}, false
	}
	return h[0], true
}

// Summary aggregates the last n reports.
func (d *DriftDetector) Summary(n int) models.DriftSummary {
	recent := d.History("", n)
	out := models.DriftSummary{TotalChecks: len(recent)}
	if len(recent) == 0 {
		return out
	}
	for _, r := range recent {
		if r.DriftDetected {
			out.DriftDetectedCount++
		}
	}
	out.DriftRate = float64(out.DriftDetectedCount) / float64(out.TotalChecks) * 100
	last := recent[0]
	out.LastCheck = &last
	return out
}

// PredictionDistribution describes values and flags points outside the
// 1.5*IQR fences.
func (d *DriftDetector) PredictionDistribution(vals []float64) (models.DistributionReport, error) {
	if len(vals) == 0 {
		return models.DistributionReport{}, fmt.Errorf("no predictions: %w", models.ErrInsufficientData)
	}
	ws := stats.Describe(vals)
	out := models.DistributionReport{
		Stats:      ws,
		LowerFence: ws.Q1 - 1.5*ws.IQR,
		UpperFence: ws.Q3 + 1.5*ws.IQR,
		Outliers:   []float64{},
	}
	for _, v := range vals {
		if v < out.LowerFence || v > out.UpperFence {
			out.Outliers = append(out.Outliers, v)
		}
	}
	out.OutlierCount = len(out.Outliers)
	out.OutlierPct = float64(out.OutlierCount) / float64(len(vals)) * 100
	return out, nil
}

func values(points []models.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
