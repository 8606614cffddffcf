package repository

import (
	"context"
	"fmt"
	"time"

	"FinGuard/internal/domain/models"
	"FinGuard/internal/domain/repository"
	"FinGuard/pkg/sqlite"
	"FinGuard/pkg/util"
)

var sqliteCandleSchema = []string{
	`CREATE TABLE IF NOT EXISTS stock_data (
		ticker TEXT NOT NULL,
		date TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (ticker, date)
	)`,
}

// SQLiteCandleStore keeps daily bars keyed by (ticker, date). Dates are
// stored as YYYY-MM-DD text so range scans sort lexically.
type SQLiteCandleStore struct {
	client *sqlite.Client
}

func NewSQLiteCandleStore(client *sqlite.Client) *SQLiteCandleStore {
	return &SQLiteCandleStore{client: client}
}

var _ repository.CandleStore = (*SQLiteCandleStore)(nil)

func (s *SQLiteCandleStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, sqliteCandleSchema)
}

func (s *SQLiteCandleStore) Upsert(ctx context.Context, ticker string, rows []models.OHLCV) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stock_data (ticker, date, open, high, low, close, volume, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	n := 0
	for _, r := range rows {
		if !r.Valid() || r.HasNaN() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, ticker, r.Date.UTC().Format(util.DateLayout),
			r.Open, r.High, r.Low, r.Close, r.Volume, now); err != nil {
			return 0, fmt.Errorf("upsert %s %s: %w", ticker, r.Date.Format(util.DateLayout), err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteCandleStore) Range(ctx context.Context, ticker string, from, to time.Time) ([]models.OHLCV, error) {
	return s.scan(ctx, `
		SELECT date, open, high, low, close, volume FROM stock_data
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		ticker, from.UTC().Format(util.DateLayout), to.UTC().Format(util.DateLayout))
}

// Latest returns up to n bars on or before to, oldest first.
func (s *SQLiteCandleStore) Latest(ctx context.Context, ticker string, to time.Time, n int) ([]models.OHLCV, error) {
	rows, err := s.scan(ctx, `
		SELECT date, open, high, low, close, volume FROM stock_data
		WHERE ticker = ? AND date <= ?
		ORDER BY date DESC LIMIT ?`,
		ticker, to.UTC().Format(util.DateLayout), n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *SQLiteCandleStore) scan(ctx context.Context, q string, args ...interface{}) ([]models.OHLCV, error) {
	rows, err := s.client.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OHLCV
	for rows.Next() {
		var (
			r    models.OHLCV
			date string
		)
		if err := rows.Scan(&date, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, err
		}
		d, err := time.Parse(util.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q in stock_data: %w", date, err)
		}
		r.Date = d
		out = append(out, r)
	}
	return out, rows.Err()
}
