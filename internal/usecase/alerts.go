package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	applogger "FinGuard/pkg/logger"
)

type AlertConfig struct {
	MAEThreshold  float64
	MAPEThreshold float64
	HistoryLimit  int
	SinkTimeout   time.Duration
}

// AlertDispatcher evaluates thresholds, keeps the alert history and fans
// alerts out to the configured sinks.
type AlertDispatcher struct {
	cfg     AlertConfig
	sinks   []drepo.AlertSink
	journal drepo.Journal
	metrics drepo.Metrics
	l       *applogger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	history []models.AlertRecord

	deliveries sync.WaitGroup
}

// NewAlertDispatcher builds a dispatcher. journal may be nil.
func NewAlertDispatcher(
	cfg AlertConfig,
	sinks []drepo.AlertSink,
	journal drepo.Journal,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *AlertDispatcher {
	if cfg.MAEThreshold <= 0 {
		cfg.MAEThreshold = 2.0
	}
	if cfg.MAPEThreshold <= 0 {
		cfg.MAPEThreshold = 5.0
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 1000
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 10 * time.Second
	}
	return &AlertDispatcher{
		cfg:     cfg,
		sinks:   sinks,
		journal: journal,
		metrics: metrics,
		l:       l,
		now:     time.Now,
	}
}

// CheckPerformance lists threshold violations of a snapshot.
func (a *AlertDispatcher) CheckPerformance(s models.PerformanceSnapshot) []string {
	var out []string
	if s.MAE > a.cfg.MAEThreshold {
		out = append(out, fmt.Sprintf("MAE high: %.4f > %g", s.MAE, a.cfg.MAEThreshold))
	}
	if s.MAPE > a.cfg.MAPEThreshold {
		out = append(out, fmt.Sprintf("MAPE high: %.2f%% > %g%%", s.MAPE, a.cfg.MAPEThreshold))
	}
	return out
}

// CheckDrift turns the alerts of a drifting report into violations.
func (a *AlertDispatcher) CheckDrift(r models.DriftReport) []string {
	if !r.DriftDetected {
		return nil
	}
	out := make([]string, 0, len(r.Alerts))
	for _, msg := range r.Alerts {
		out = append(out, "Drift: "+msg)
	}
	return out
}

// Send records an alert and hands it to every sink in the background. Sink
// failures are logged and never returned.
func (a *AlertDispatcher) Send(
	ctx context.Context,
	alertType, message string,
	severity models.AlertLevel,
	metadata map[string]interface{},
) models.AlertRecord {
	if severity == "" {
		severity = models.AlertWarning
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	alert := models.AlertRecord{
		ID:        uuid.NewString(),
		Timestamp: a.now().UTC(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Metadata:  metadata,
	}

	a.mu.Lock()
	a.history = append(a.history, alert)
	if over := len(a.history) - a.cfg.HistoryLimit; over > 0 {
		a.history = append(a.history[:0:0], a.history[over:]...)
	}
	a.mu.Unlock()

	a.metrics.RecordAlert(alertType, string(severity))
	a.log(alert)

	if a.journal != nil {
		ticker, _ := metadata["ticker"].(string)
		if err := a.journal.Append(ctx, drepo.KindAlert, ticker, alert.Timestamp, alert); err != nil {
			a.l.Warn("journal alert", applogger.String("alert_id", alert.ID), applogger.Error(err))
		}
	}

	for _, sink := range a.sinks {
		a.deliveries.Add(1)
		go a.deliver(sink, alert)
	}
	return alert
}

func (a *AlertDispatcher) deliver(sink drepo.AlertSink, alert models.AlertRecord) {
	defer a.deliveries.Done()
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SinkTimeout)
	defer cancel()

	if err := sink.Deliver(ctx, alert); err != nil {
		err = fmt.Errorf("%s: %v: %w", sink.Name(), err, models.ErrAlertDispatch)
		a.metrics.RecordAlert(alert.Type, "dispatch_failed")
		a.l.Warn("alert delivery failed",
			applogger.String("sink", sink.Name()),
			applogger.String("alert_id", alert.ID),
			applogger.Error(err),
		)
	}
}

func (a *AlertDispatcher) log(alert models.AlertRecord) {
	fields := []applogger.Field{
		applogger.String("alert_type", alert.Type),
		applogger.String("severity", string(alert.Severity)),
		applogger.String("alert_id", alert.ID),
		applogger.Any("metadata", alert.Metadata),
	}
	switch alert.Severity {
	case models.AlertCritical:
		a.l.Error(alert.Message, fields...)
	case models.AlertInfo:
		a.l.Info(alert.Message, fields...)
	default:
		a.l.Warn(alert.Message, fields...)
	}
}

// Flush waits for in-flight sink deliveries.
func (a *AlertDispatcher) Flush() {
	a.deliveries.Wait()
}

// Recent returns alerts from the last hours, newest first.
func (a *AlertDispatcher) Recent(hours int) []models.AlertRecord {
	cutoff := a.now().Add(-time.Duration(hours) * time.Hour)
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := []models.AlertRecord{}
	for i := len(a.history) - 1; i >= 0; i-- {
		if a.history[i].Timestamp.Before(cutoff) {
			break
		}
		out = append(out, a.history[i])
	}
	return out
}

func (a *AlertDispatcher) Summary() models.AlertSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := models.AlertSummary{
		Total:      len(a.history),
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
	}
	for _, al := range a.history {
		out.ByType[al.Type]++
		out.BySeverity[string(al.Severity)]++
	}
	if n := len(a.history); n > 0 {
		last := a.history[n-1]
		out.LastAlert = &last
	}
	return out
}

// Truncate keeps the newest keep alerts and returns how many were removed.
func (a *AlertDispatcher) Truncate(keep int) int {
	if keep < 0 {
		keep = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := len(a.history) - keep
	if removed <= 0 {
		return 0
	}
	a.history = append(a.history[:0:0], a.history[removed:]...)
	return removed
}

// Restore seeds the history from the journal.
func (a *AlertDispatcher) Restore(ctx context.Context) error {
	if a.journal == nil {
		return nil
	}
	alerts, err := drepo.DecodeRecent[models.AlertRecord](ctx, a.journal, drepo.KindAlert, a.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
	a.mu.Lock()
	a.history = alerts
	a.mu.Unlock()
	return nil
}
