package repository

import (
	"context"
	"encoding/json"
)

// Journal kinds.
const (
	KindDriftReport = "drift_report"
	KindSnapshot    = "performance_snapshot"
	KindAlert       = "alert"
	KindRunSummary  = "run_summary"
)

// DecodeRecent loads the newest entries of kind into T, skipping rows that
// do not decode.
func DecodeRecent[T any](ctx context.Context, j Journal, kind string, limit int) ([]T, error) {
	raw, err := j.Recent(ctx, kind, limit)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, b := range raw {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
