package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"FinGuard/internal/domain/repository"
	pkgch "FinGuard/pkg/clickhouse"
	applogger "FinGuard/pkg/logger"
	"FinGuard/pkg/sqlite"
)

const journalTable = "monitoring_journal"

// SQLJournal is an append-only JSON journal over database/sql. The same code
// serves ClickHouse and SQLite; only the DDL differs.
type SQLJournal struct {
	db      *sql.DB
	backend string
	schema  []string
	l       *applogger.Logger
}

var _ repository.Journal = (*SQLJournal)(nil)

func NewClickHouseJournal(ch *pkgch.Client) *SQLJournal {
	return &SQLJournal{
		db:      ch.DB(),
		backend: "clickhouse",
		schema: []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			kind LowCardinality(String),
			ts_ms Int64,
			ticker String,
			payload String
		) ENGINE = MergeTree ORDER BY (kind, ts_ms)`, journalTable)},
	}
}

func NewSQLiteJournal(c *sqlite.Client) *SQLJournal {
	return &SQLJournal{
		db:      c.DB(),
		backend: "sqlite",
		schema: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				kind TEXT NOT NULL,
				ts_ms INTEGER NOT NULL,
				ticker TEXT NOT NULL DEFAULT '',
				payload TEXT NOT NULL
			)`, journalTable),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_journal_kind_ts ON %s (kind, ts_ms)`, journalTable),
		},
	}
}

// SetLogger injects a structured logger.
func (j *SQLJournal) SetLogger(l *applogger.Logger) { j.l = l }

func (j *SQLJournal) Backend() string { return j.backend }

func (j *SQLJournal) Init(ctx context.Context) error {
	for _, stmt := range j.schema {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init journal (%s): %w", j.backend, err)
		}
	}
	return nil
}

func (j *SQLJournal) Append(ctx context.Context, kind, ticker string, ts time.Time, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	q := fmt.Sprintf("INSERT INTO %s (kind, ts_ms, ticker, payload) VALUES (?, ?, ?, ?)", journalTable)
	if _, err := j.db.ExecContext(ctx, q, kind, ts.UnixMilli(), ticker, string(b)); err != nil {
		if j.l != nil {
			j.l.Error("journal append failed",
				applogger.String("backend", j.backend),
				applogger.String("kind", kind),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("append %s: %w", kind, err)
	}
	return nil
}

// Recent returns raw payloads of kind, newest first.
func (j *SQLJournal) Recent(ctx context.Context, kind string, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT payload FROM %s WHERE kind = ? ORDER BY ts_ms DESC LIMIT ?", journalTable)
	rows, err := j.db.QueryContext(ctx, q, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("recent %s: %w", kind, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, []byte(p))
	}
	return out, rows.Err()
}

// Close is a no-op; connections belong to the pkg clients.
func (j *SQLJournal) Close() error {
	return nil
}
