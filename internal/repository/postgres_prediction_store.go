package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"FinGuard/internal/domain/models"
	"FinGuard/internal/domain/repository"
	"FinGuard/pkg/postgres"
)

// predictionRow is the gorm model of the predictions table.
type predictionRow struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement"`
	RequestID      string     `gorm:"column:request_id;size:64;uniqueIndex;not null"`
	Ticker         string     `gorm:"column:ticker;size:16;index:idx_predictions_ticker_at,priority:1;not null"`
	PredictedAt    time.Time  `gorm:"column:predicted_at;index:idx_predictions_ticker_at,priority:2;not null"`
	PredictedValue float64    `gorm:"column:predicted_value;not null"`
	Validated      bool       `gorm:"column:validated;index;not null;default:false"`
	ActualValue    *float64   `gorm:"column:actual_value"`
	Error          *float64   `gorm:"column:error"`
	ErrorPct       *float64   `gorm:"column:error_pct"`
	ValidatedAt    *time.Time `gorm:"column:validated_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (predictionRow) TableName() string { return "predictions" }

func rowFromRecord(r models.PredictionRecord) predictionRow {
	return predictionRow{
		RequestID:      r.RequestID,
		Ticker:         r.Ticker,
		PredictedAt:    r.PredictedAt.UTC(),
		PredictedValue: r.PredictedValue,
		Validated:      r.Validated,
		ActualValue:    r.ActualValue,
		Error:          r.Error,
		ErrorPct:       r.ErrorPct,
		ValidatedAt:    r.ValidatedAt,
	}
}

func (p predictionRow) record() models.PredictionRecord {
	return models.PredictionRecord{
		RequestID:      p.RequestID,
		Ticker:         p.Ticker,
		PredictedAt:    p.PredictedAt.UTC(),
		PredictedValue: p.PredictedValue,
		Validated:      p.Validated,
		ActualValue:    p.ActualValue,
		Error:          p.Error,
		ErrorPct:       p.ErrorPct,
		ValidatedAt:    p.ValidatedAt,
	}
}

// PostgresPredictionStore is the networked ledger backend.
type PostgresPredictionStore struct {
	client *postgres.Client
}

func NewPostgresPredictionStore(client *postgres.Client) *PostgresPredictionStore {
	return &PostgresPredictionStore{client: client}
}

var _ repository.PredictionStore = (*PostgresPredictionStore)(nil)

func (s *PostgresPredictionStore) db(ctx context.Context) *gorm.DB {
	return s.client.Gorm().WithContext(ctx)
}

func (s *PostgresPredictionStore) Init(ctx context.Context) error {
	if err := s.db(ctx).AutoMigrate(&predictionRow{}); err != nil {
		return fmt.Errorf("migrate predictions: %w", err)
	}
	return nil
}

// Record upserts by request_id; a repeated id overwrites the forecast fields.
func (s *PostgresPredictionStore) Record(ctx context.Context, rec models.PredictionRecord) error {
	row := rowFromRecord(rec)
	return s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ticker", "predicted_at", "predicted_value"}),
	}).Create(&row).Error
}

func (s *PostgresPredictionStore) MarkValidated(ctx context.Context, requestID string, v models.Validation) (bool, error) {
	res := s.db(ctx).Model(&predictionRow{}).
		Where("request_id = ? AND validated = ?", requestID, false).
		Updates(map[string]interface{}{
			"validated":    true,
			"actual_value": v.ActualValue,
			"error":        v.Error,
			"error_pct":    v.ErrorPct,
			"validated_at": v.ValidatedAt.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db(ctx).Model(&predictionRow{}).Where("request_id = ?", requestID).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, fmt.Errorf("%s: %w", requestID, models.ErrPredictionNotFound)
	}
	return false, nil
}

func (s *PostgresPredictionStore) Query(ctx context.Context, f models.PredictionFilter) ([]models.PredictionRecord, error) {
	q := s.db(ctx).Model(&predictionRow{})
	if f.Ticker != "" {
		q = q.Where("ticker = ?", f.Ticker)
	}
	if f.Validated != nil {
		q = q.Where("validated = ?", *f.Validated)
	}
	if !f.Since.IsZero() {
		q = q.Where("predicted_at >= ?", f.Since.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []predictionRow
	if err := q.Order("predicted_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.PredictionRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

func (s *PostgresPredictionStore) Trim(ctx context.Context, before time.Time) (int64, error) {
	res := s.db(ctx).Where("validated = ? AND predicted_at < ?", true, before.UTC()).Delete(&predictionRow{})
	return res.RowsAffected, res.Error
}

func (s *PostgresPredictionStore) Health(ctx context.Context) error {
	if s.client == nil {
		return errors.New("postgres client not configured")
	}
	return s.client.Health(ctx)
}

func (s *PostgresPredictionStore) Close() error {
	return s.client.Close()
}
