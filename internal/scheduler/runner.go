package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"FinGuard/internal/domain/models"
	applogger "FinGuard/pkg/logger"
)

// Runner runs jobs on six-field cron specs (seconds first).
type Runner struct {
	cron    *cron.Cron
	l       *applogger.Logger
	baseCtx context.Context
}

func New(baseCtx context.Context, loc *time.Location, l *applogger.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{l: l}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		l:       l,
		baseCtx: baseCtx,
	}
}

// Add schedules job under name. An empty spec disables the job.
func (r *Runner) Add(name, spec string, job func(context.Context) error) error {
	if spec == "" {
		r.l.Info("cron job disabled", applogger.String("job", name))
		return nil
	}
	_, err := r.cron.AddFunc(spec, func() {
		err := job(r.baseCtx)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrJobInProgress):
			r.l.Info("cron job skipped, lease held elsewhere", applogger.String("job", name))
		default:
			r.l.Error("cron job failed", applogger.String("job", name), applogger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	r.l.Info("cron job scheduled", applogger.String("job", name), applogger.String("spec", spec))
	return nil
}

// Len returns the number of scheduled jobs.
func (r *Runner) Len() int { return len(r.cron.Entries()) }

func (r *Runner) Start() {
	r.l.Info("cron started")
	r.cron.Start()
}

// Stop prevents new runs and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.l.Info("cron stopped")
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	l *applogger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), applogger.Error(err))...)
}

func kvFields(kv []interface{}) []applogger.Field {
	out := make([]applogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, applogger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
