package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	applogger "FinGuard/pkg/logger"
	"FinGuard/pkg/metrics"
)

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	got  []models.AlertRecord
	wait time.Duration
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, a models.AlertRecord) error {
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.got = append(s.got, a)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func newTestDispatcher(cfg AlertConfig, sinks ...drepo.AlertSink) *AlertDispatcher {
	return NewAlertDispatcher(cfg, sinks, nil, metrics.Noop{}, applogger.NewNop())
}

func TestCheckPerformance(t *testing.T) {
	a := newTestDispatcher(AlertConfig{})

	if v := a.CheckPerformance(models.PerformanceSnapshot{MAE: 1.5, MAPE: 4}); len(v) != 0 {
		t.Fatalf("unexpected violations: %v", v)
	}
	v := a.CheckPerformance(models.PerformanceSnapshot{MAE: 2.5, MAPE: 6.25})
	if len(v) != 2 {
		t.Fatalf("violations = %v", v)
	}
	if v[0] != "MAE high: 2.5000 > 2" || v[1] != "MAPE high: 6.25% > 5%" {
		t.Fatalf("messages = %q", v)
	}
}

func TestCheckDrift(t *testing.T) {
	a := newTestDispatcher(AlertConfig{})
	alerts := []string{"mean changed 6.00%"}

	if v := a.CheckDrift(models.DriftReport{DriftDetected: false, Alerts: alerts}); len(v) != 0 {
		t.Fatalf("no drift must produce no violations: %v", v)
	}
	v := a.CheckDrift(models.DriftReport{DriftDetected: true, Alerts: alerts})
	if len(v) != 1 || v[0] != "Drift: mean changed 6.00%" {
		t.Fatalf("violations = %v", v)
	}
}

func TestSendFansOutAndSurvivesSinkFailure(t *testing.T) {
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("webhook 500")}
	a := newTestDispatcher(AlertConfig{}, good, bad)

	rec := a.Send(context.Background(), "performance", "MAPE high", models.AlertCritical, map[string]interface{}{"ticker": "AAPL"})
	a.Flush()

	if rec.ID == "" || rec.Severity != models.AlertCritical {
		t.Fatalf("record = %+v", rec)
	}
	if good.count() != 1 || bad.count() != 1 {
		t.Fatalf("deliveries good=%d bad=%d", good.count(), bad.count())
	}
	if got := a.Summary().Total; got != 1 {
		t.Fatalf("history total = %d", got)
	}
}

func TestSendDoesNotWaitForSlowSinks(t *testing.T) {
	slow := &recordingSink{name: "slow", wait: 200 * time.Millisecond}
	a := newTestDispatcher(AlertConfig{SinkTimeout: 50 * time.Millisecond}, slow)

	start := time.Now()
	a.Send(context.Background(), "drift", "shift", models.AlertWarning, nil)
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("send blocked on sink")
	}
	a.Flush()
	if slow.count() != 0 {
		t.Fatalf("timed out delivery should not be recorded")
	}
}

func TestAlertHistoryViews(t *testing.T) {
	a := newTestDispatcher(AlertConfig{HistoryLimit: 3})
	now := day0
	a.now = func() time.Time { return now }
	ctx := context.Background()

	a.Send(ctx, "drift", "old", models.AlertWarning, nil)
	now = now.Add(48 * time.Hour)
	a.Send(ctx, "performance", "p1", models.AlertWarning, nil)
	a.Send(ctx, "performance", "p2", models.AlertCritical, nil)
	a.Send(ctx, "drift", "d1", models.AlertInfo, nil)

	sum := a.Summary()
	if sum.Total != 3 {
		t.Fatalf("history cap not applied: %d", sum.Total)
	}
	if sum.ByType["performance"] != 2 || sum.BySeverity["INFO"] != 1 || sum.LastAlert.Message != "d1" {
		t.Fatalf("summary = %+v", sum)
	}

	recent := a.Recent(24)
	if len(recent) != 3 || recent[0].Message != "d1" {
		t.Fatalf("recent = %+v", recent)
	}

	if removed := a.Truncate(1); removed != 2 {
		t.Fatalf("removed = %d", removed)
	}
	if got := a.Recent(24); len(got) != 1 || got[0].Message != "d1" {
		t.Fatalf("after truncate = %+v", got)
	}
}
