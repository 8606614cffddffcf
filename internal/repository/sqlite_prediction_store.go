package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinGuard/internal/domain/models"
	"FinGuard/internal/domain/repository"
	"FinGuard/pkg/sqlite"
)

var sqlitePredictionSchema = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL UNIQUE,
		ticker TEXT NOT NULL,
		predicted_at INTEGER NOT NULL,
		predicted_value REAL NOT NULL,
		validated INTEGER NOT NULL DEFAULT 0,
		actual_value REAL,
		error REAL,
		error_pct REAL,
		validated_at INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_ticker_at ON predictions (ticker, predicted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_validated ON predictions (validated)`,
}

// SQLitePredictionStore is the embedded ledger backend. Timestamps are unix
// microseconds so ordering stays numeric.
type SQLitePredictionStore struct {
	client *sqlite.Client
}

func NewSQLitePredictionStore(client *sqlite.Client) *SQLitePredictionStore {
	return &SQLitePredictionStore{client: client}
}

var _ repository.PredictionStore = (*SQLitePredictionStore)(nil)

func (s *SQLitePredictionStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, sqlitePredictionSchema)
}

func (s *SQLitePredictionStore) Record(ctx context.Context, rec models.PredictionRecord) error {
	var validatedAt interface{}
	if rec.ValidatedAt != nil {
		validatedAt = rec.ValidatedAt.UnixMicro()
	}
	_, err := s.client.DB().ExecContext(ctx, `
		INSERT INTO predictions (request_id, ticker, predicted_at, predicted_value, validated,
			actual_value, error, error_pct, validated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			ticker = excluded.ticker,
			predicted_at = excluded.predicted_at,
			predicted_value = excluded.predicted_value`,
		rec.RequestID, rec.Ticker, rec.PredictedAt.UnixMicro(), rec.PredictedValue, boolInt(rec.Validated),
		nullFloat(rec.ActualValue), nullFloat(rec.Error), nullFloat(rec.ErrorPct), validatedAt,
		time.Now().UnixMicro(),
	)
	return err
}

func (s *SQLitePredictionStore) MarkValidated(ctx context.Context, requestID string, v models.Validation) (bool, error) {
	res, err := s.client.DB().ExecContext(ctx, `
		UPDATE predictions
		SET validated = 1, actual_value = ?, error = ?, error_pct = ?, validated_at = ?
		WHERE request_id = ? AND validated = 0`,
		v.ActualValue, v.Error, v.ErrorPct, v.ValidatedAt.UnixMicro(), requestID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists int
	err = s.client.DB().QueryRowContext(ctx, `SELECT 1 FROM predictions WHERE request_id = ?`, requestID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("%s: %w", requestID, models.ErrPredictionNotFound)
	}
	return false, err
}

func (s *SQLitePredictionStore) Query(ctx context.Context, f models.PredictionFilter) ([]models.PredictionRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Ticker != "" {
		where = append(where, "ticker = ?")
		args = append(args, f.Ticker)
	}
	if f.Validated != nil {
		where = append(where, "validated = ?")
		args = append(args, boolInt(*f.Validated))
	}
	if !f.Since.IsZero() {
		where = append(where, "predicted_at >= ?")
		args = append(args, f.Since.UnixMicro())
	}

	q := `SELECT request_id, ticker, predicted_at, predicted_value, validated,
		actual_value, error, error_pct, validated_at FROM predictions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY predicted_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.client.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PredictionRecord
	for rows.Next() {
		var (
			r                      models.PredictionRecord
			predictedAt            int64
			validated              int
			actual, errAbs, errPct sql.NullFloat64
			validatedAt            sql.NullInt64
		)
		if err := rows.Scan(&r.RequestID, &r.Ticker, &predictedAt, &r.PredictedValue, &validated,
			&actual, &errAbs, &errPct, &validatedAt); err != nil {
			return nil, err
		}
		r.PredictedAt = time.UnixMicro(predictedAt).UTC()
		r.Validated = validated == 1
		r.ActualValue = floatPtr(actual)
		r.Error = floatPtr(errAbs)
		r.ErrorPct = floatPtr(errPct)
		if validatedAt.Valid {
			t := time.UnixMicro(validatedAt.Int64).UTC()
			r.ValidatedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLitePredictionStore) Trim(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM predictions WHERE validated = 1 AND predicted_at < ?`, before.UnixMicro())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLitePredictionStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the sqlite client is shared and closed by its owner.
func (s *SQLitePredictionStore) Close() error {
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
