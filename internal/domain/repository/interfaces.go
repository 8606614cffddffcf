package repository

import (
	"context"
	"time"

	"FinGuard/internal/domain/models"
)

// SourceClient is one market-data provider in the fetch cascade. Sources
// that ignore the window return at most limit of their newest rows; the
// caller validates and trims.
type SourceClient interface {
	Name() models.Provenance
	FetchDaily(ctx context.Context, ticker string, from, to time.Time, limit int) ([]models.OHLCV, error)
}

// PredictionStore is one ledger backend.
type PredictionStore interface {
	Init(ctx context.Context) error
	Record(ctx context.Context, rec models.PredictionRecord) error
	// MarkValidated returns (false, nil) when the record was already validated.
	MarkValidated(ctx context.Context, requestID string, v models.Validation) (bool, error)
	Query(ctx context.Context, f models.PredictionFilter) ([]models.PredictionRecord, error)
	Trim(ctx context.Context, before time.Time) (int64, error)
	Health(ctx context.Context) error
	Close() error
}

// CandleStore is the local OHLCV cache.
type CandleStore interface {
	Upsert(ctx context.Context, ticker string, rows []models.OHLCV) (int, error)
	Range(ctx context.Context, ticker string, from, to time.Time) ([]models.OHLCV, error)
	Latest(ctx context.Context, ticker string, to time.Time, n int) ([]models.OHLCV, error)
}

type ReferenceStore interface {
	Save(ctx context.Context, ref models.ReferenceStatistics) error
	Load(ctx context.Context, ticker string) (models.ReferenceStatistics, error)
}

// Journal persists monitoring history (drift reports, snapshots, alerts).
type Journal interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, kind, ticker string, ts time.Time, payload interface{}) error
	Recent(ctx context.Context, kind string, limit int) ([][]byte, error)
	Close() error
}

// AlertSink delivers an alert to one external channel.
type AlertSink interface {
	Name() string
	Deliver(ctx context.Context, alert models.AlertRecord) error
}

// Locker hands out named, expiring leases.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordFetchAttempt(source, result string)
	RecordFetchLatency(source string, seconds float64)
	RecordLedgerOp(backend, op, result string)
	SetLedgerDegraded(degraded bool)
	RecordDriftCheck(ticker, severity string)
	SetMAPE(ticker string, mape float64)
	RecordAlert(alertType, severity string)
	RecordJobRun(job, result string, seconds float64)
}
