package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	applogger "FinGuard/pkg/logger"
)

func TestAddRejectsBadSpec(t *testing.T) {
	r := New(context.Background(), time.UTC, applogger.NewNop())
	// five fields are invalid with seconds enabled
	if err := r.Add("validation", "0 18 * * *", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := r.Add("validation", "0 0 18 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add("retention", "", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("disabled job: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("entries = %d, want 1", r.Len())
	}
}

func TestRunnerRunsJobs(t *testing.T) {
	r := New(context.Background(), time.UTC, applogger.NewNop())
	ran := make(chan struct{}, 4)
	if err := r.Add("tick", "@every 1s", func(context.Context) error {
		ran <- struct{}{}
		return errors.New("logged, not fatal")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Start()
	defer r.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not run")
	}
}

func TestKVFields(t *testing.T) {
	if got := kvFields([]interface{}{"entry", 1, "dangling"}); len(got) != 1 {
		t.Fatalf("fields = %d, want 1", len(got))
	}
}
