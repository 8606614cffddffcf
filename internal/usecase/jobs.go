package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	applogger "FinGuard/pkg/logger"
)

// Lease-protected job names. The lease key is "job:" + name.
const (
	JobValidation   = "validation"
	JobDriftCheck   = "drift_check"
	JobCacheRefresh = "cache_refresh"
	JobRetention    = "retention"
)

// Trimmer deletes validated predictions older than a cutoff.
type Trimmer interface {
	Trim(ctx context.Context, before time.Time) (int64, error)
}

type JobsConfig struct {
	Tickers       []string
	DaysBack      int
	WindowN       int
	TrendDays     int
	CacheDays     int
	RetentionDays int
	LeaseTTL      time.Duration
	SummaryLimit  int
}

// ValidationRun is the outcome of RunValidation.
type ValidationRun struct {
	Summary     models.ValidationSummary    `json:"summary"`
	Performance *models.PerformanceSnapshot `json:"performance,omitempty"`
	Trend       *models.TrendReport         `json:"trend,omitempty"`
	Alerts      int                         `json:"alerts"`
}

// DriftRun is the outcome of RunDriftCheck.
type DriftRun struct {
	Reports []models.DriftReport `json:"reports"`
	Reused  int                  `json:"reused"`
	Alerts  int                  `json:"alerts"`
	Errors  []string             `json:"errors,omitempty"`
}

// MonitoringJobs runs the periodic monitoring work. Every run holds a named
// lease so concurrent triggers from cron, HTTP and the CLI do not overlap.
type MonitoringJobs struct {
	cfg       JobsConfig
	locker    drepo.Locker
	fetcher   MarketFetcher
	candles   drepo.CandleStore
	ledger    Trimmer
	validator *PerformanceValidator
	drift     *DriftDetector
	alerts    *AlertDispatcher
	journal   drepo.Journal
	metrics   drepo.Metrics
	l         *applogger.Logger
	now       func() time.Time

	mu        sync.Mutex
	summaries []models.RunSummary
}

func NewMonitoringJobs(
	cfg JobsConfig,
	locker drepo.Locker,
	fetcher MarketFetcher,
	candles drepo.CandleStore,
	ledger Trimmer,
	validator *PerformanceValidator,
	drift *DriftDetector,
	alerts *AlertDispatcher,
	journal drepo.Journal,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *MonitoringJobs {
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 7
	}
	if cfg.WindowN <= 0 {
		cfg.WindowN = 7
	}
	if cfg.TrendDays <= 0 {
		cfg.TrendDays = 7
	}
	if cfg.CacheDays <= 0 {
		cfg.CacheDays = 60
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 365
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	if cfg.SummaryLimit <= 0 {
		cfg.SummaryLimit = 30
	}
	return &MonitoringJobs{
		cfg:       cfg,
		locker:    locker,
		fetcher:   fetcher,
		candles:   candles,
		ledger:    ledger,
		validator: validator,
		drift:     drift,
		alerts:    alerts,
		journal:   journal,
		metrics:   metrics,
		l:         l,
		now:       time.Now,
	}
}

func (j *MonitoringJobs) withLease(ctx context.Context, name string, fn func(context.Context) error) error {
	key := "job:" + name
	ok, err := j.locker.TryLock(ctx, key, j.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		j.metrics.RecordJobRun(name, "skipped", 0)
		return fmt.Errorf("%s: %w", key, models.ErrJobInProgress)
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.locker.Unlock(uctx, key); err != nil {
			j.l.Warn("release job lease", applogger.String("job", name), applogger.Error(err))
		}
	}()

	start := time.Now()
	err = fn(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	j.metrics.RecordJobRun(name, result, time.Since(start).Seconds())
	j.l.Info("job finished",
		applogger.String("job", name),
		applogger.String("result", result),
		applogger.Duration("duration", time.Since(start)),
	)
	return err
}

// RunValidation validates due predictions and, when anything was validated,
// snapshots performance and raises threshold alerts.
func (j *MonitoringJobs) RunValidation(ctx context.Context, daysBack int) (ValidationRun, error) {
	if daysBack <= 0 {
		daysBack = j.cfg.DaysBack
	}
	var run ValidationRun
	err := j.withLease(ctx, JobValidation, func(ctx context.Context) error {
		summary, err := j.validator.Validate(ctx, daysBack)
		run.Summary = summary
		if err != nil {
			return err
		}
		if summary.Validated == 0 {
			return nil
		}

		snap, err := j.validator.Metrics(ctx, "", j.cfg.WindowN)
		if err != nil {
			return fmt.Errorf("performance snapshot: %w", err)
		}
		run.Performance = &snap
		trend := j.validator.Trend("", j.cfg.TrendDays)
		run.Trend = &trend

		for _, v := range j.alerts.CheckPerformance(snap) {
			j.alerts.Send(ctx, "performance", v, models.AlertWarning, map[string]interface{}{
				"mae":      snap.MAE,
				"mape":     snap.MAPE,
				"rmse":     snap.RMSE,
				"window_n": snap.WindowN,
			})
			run.Alerts++
		}
		if trend.Trend == models.TrendDegrading {
			j.alerts.Send(ctx, "performance", fmt.Sprintf("MAPE trend degrading: slope %.3f", trend.Slope),
				models.AlertInfo, map[string]interface{}{"slope": trend.Slope, "snapshots": trend.Snapshots})
			run.Alerts++
		}
		return nil
	})
	return run, err
}

// RunDriftCheck checks every configured ticker. A ticker whose latest window
// end is unchanged since its last report reuses that report.
func (j *MonitoringJobs) RunDriftCheck(ctx context.Context) (DriftRun, error) {
	run := DriftRun{Reports: []models.DriftReport{}}
	err := j.withLease(ctx, JobDriftCheck, func(ctx context.Context) error {
		cur, ref := j.drift.Windows()
		var failures int
		for _, ticker := range j.cfg.Tickers {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := j.fetcher.Fetch(ctx, ticker, cur+ref, j.now())
			if err != nil {
				failures++
				run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", ticker, err))
				j.l.Warn("drift check fetch failed", applogger.String("ticker", ticker), applogger.Error(err))
				continue
			}
			series := pricePoints(res)
			end := series[len(series)-1].Date

			if last, ok := j.drift.Latest(ticker); ok && !last.InsufficientData && last.WindowEnd.Equal(end) {
				run.Reports = append(run.Reports, last)
				run.Reused++
				continue
			}

			if _, err := j.drift.SetReference(ctx, ticker, series); err != nil {
				j.l.Warn("reference refresh failed", applogger.String("ticker", ticker), applogger.Error(err))
			}
			report := j.drift.Check(ctx, ticker, series)
			run.Reports = append(run.Reports, report)

			severity := models.AlertWarning
			if report.Severity == models.SeverityHigh {
				severity = models.AlertCritical
			}
			for _, v := range j.alerts.CheckDrift(report) {
				j.alerts.Send(ctx, "drift", v, severity, map[string]interface{}{
					"ticker":        ticker,
					"severity":      string(report.Severity),
					"mean_diff_pct": report.Comparisons.MeanDiffPct,
					"std_diff_pct":  report.Comparisons.StdDiffPct,
				})
				run.Alerts++
			}
		}
		if len(j.cfg.Tickers) > 0 && failures == len(j.cfg.Tickers) {
			return fmt.Errorf("no prices for any of %d tickers: %w", failures, models.ErrDataUnavailable)
		}
		return nil
	})
	return run, err
}

// RefreshCache fetches every ticker and stores remotely sourced rows in the
// local candle cache. It returns the number of rows written.
func (j *MonitoringJobs) RefreshCache(ctx context.Context) (int, error) {
	var written int
	err := j.withLease(ctx, JobCacheRefresh, func(ctx context.Context) error {
		for _, ticker := range j.cfg.Tickers {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := j.fetcher.Fetch(ctx, ticker, j.cfg.CacheDays, j.now())
			if err != nil {
				j.l.Warn("cache refresh fetch failed", applogger.String("ticker", ticker), applogger.Error(err))
				continue
			}
			if !res.Provenance.Remote() {
				continue
			}
			n, err := j.candles.Upsert(ctx, ticker, res.Rows)
			if err != nil {
				j.l.Warn("cache refresh write failed", applogger.String("ticker", ticker), applogger.Error(err))
				continue
			}
			written += n
		}
		return nil
	})
	return written, err
}

// Retention trims validated predictions older than the retention period.
func (j *MonitoringJobs) Retention(ctx context.Context) (int64, error) {
	var removed int64
	err := j.withLease(ctx, JobRetention, func(ctx context.Context) error {
		cutoff := j.now().AddDate(0, 0, -j.cfg.RetentionDays)
		n, err := j.ledger.Trim(ctx, cutoff)
		removed = n
		return err
	})
	return removed, err
}

// RunAll performs validation followed by the drift check and records a run
// summary. Failures of either step are reported in the summary.
func (j *MonitoringJobs) RunAll(ctx context.Context, daysBack int) models.RunSummary {
	summary := models.RunSummary{StartedAt: j.now().UTC()}

	vrun, err := j.RunValidation(ctx, daysBack)
	if err != nil {
		summary.Errors = append(summary.Errors, "validation: "+err.Error())
	}
	if !errors.Is(err, models.ErrJobInProgress) {
		vs := vrun.Summary
		summary.Validation = &vs
		summary.Performance = vrun.Performance
		summary.Trend = vrun.Trend
	}
	summary.Alerts += vrun.Alerts

	drun, err := j.RunDriftCheck(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, "drift_check: "+err.Error())
	}
	summary.Drift = drun.Reports
	summary.Alerts += drun.Alerts
	summary.Errors = append(summary.Errors, drun.Errors...)

	summary.FinishedAt = j.now().UTC()

	j.mu.Lock()
	j.summaries = append(j.summaries, summary)
	if over := len(j.summaries) - j.cfg.SummaryLimit; over > 0 {
		j.summaries = append(j.summaries[:0:0], j.summaries[over:]...)
	}
	j.mu.Unlock()

	if j.journal != nil {
		if err := j.journal.Append(ctx, drepo.KindRunSummary, "", summary.FinishedAt, summary); err != nil {
			j.l.Warn("journal run summary", applogger.Error(err))
		}
	}
	return summary
}

// Summaries returns up to limit run summaries, newest first.
func (j *MonitoringJobs) Summaries(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 || limit > j.cfg.SummaryLimit {
		limit = j.cfg.SummaryLimit
	}
	if j.journal != nil {
		return drepo.DecodeRecent[models.RunSummary](ctx, j.journal, drepo.KindRunSummary, limit)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.RunSummary, 0, limit)
	for i := len(j.summaries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.summaries[i])
	}
	return out, nil
}

// Flush waits for alert deliveries started by earlier runs.
func (j *MonitoringJobs) Flush() {
	if j.alerts != nil {
		j.alerts.Flush()
	}
}

func pricePoints(res models.FetchResult) []models.PricePoint {
	out := make([]models.PricePoint, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = models.PricePoint{Date: r.Date, Value: r.Close}
	}
	return out
}
