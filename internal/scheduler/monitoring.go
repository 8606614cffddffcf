package scheduler

import (
	"context"

	"FinGuard/internal/usecase"
)

// Specs holds the cron spec of every periodic job. Empty disables a job.
type Specs struct {
	Validation   string
	DriftCheck   string
	CacheRefresh string
	Retention    string
}

// RegisterMonitoring schedules the monitoring jobs on r.
func RegisterMonitoring(r *Runner, jobs *usecase.MonitoringJobs, specs Specs, daysBack int) error {
	entries := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{usecase.JobValidation, specs.Validation, func(ctx context.Context) error {
			_, err := jobs.RunValidation(ctx, daysBack)
			return err
		}},
		{usecase.JobDriftCheck, specs.DriftCheck, func(ctx context.Context) error {
			_, err := jobs.RunDriftCheck(ctx)
			return err
		}},
		{usecase.JobCacheRefresh, specs.CacheRefresh, func(ctx context.Context) error {
			_, err := jobs.RefreshCache(ctx)
			return err
		}},
		{usecase.JobRetention, specs.Retention, func(ctx context.Context) error {
			_, err := jobs.Retention(ctx)
			return err
		}},
	}
	for _, e := range entries {
		if err := r.Add(e.name, e.spec, e.fn); err != nil {
			return err
		}
	}
	return nil
}
