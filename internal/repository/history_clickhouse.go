package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgch "MarketPulse/pkg/clickhouse"
	applogger "MarketPulse/pkg/logger"
)

const (
	rateTable     = "rate_snapshots"
	strengthTable = "currency_strength"
	insertChunk   = 500
)

// CHHistoryStore implements HistoryStore backed by ClickHouse.
type CHHistoryStore struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHHistoryStore(ch *pkgch.Client, l *applogger.Logger) domrepo.HistoryStore {
	return &CHHistoryStore{ch: ch, db: ch.DB(), database: ch.Database(), l: l.Component("history")}
}

func (s *CHHistoryStore) table(name string) string {
	return s.database + "." + name
}

// Schema returns the DDL of the history tables in database.
func Schema(database string) []string {
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + database,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			bank LowCardinality(String),
			recorded_at DateTime64(3, 'UTC'),
			current_rate Float64,
			hike Float64,
			hold Float64,
			cut Float64,
			next_move LowCardinality(String)
		) ENGINE = ReplacingMergeTree ORDER BY (bank, recorded_at) TTL toDateTime(recorded_at) + INTERVAL 400 DAY`, database, rateTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			currency LowCardinality(String),
			recorded_at DateTime64(3, 'UTC'),
			strength Float64,
			momentum Float64,
			trend LowCardinality(String)
		) ENGINE = MergeTree ORDER BY (currency, recorded_at) TTL toDateTime(recorded_at) + INTERVAL 90 DAY`, database, strengthTable),
	}
}

func (s *CHHistoryStore) Init(ctx context.Context) error {
	if err := s.ch.InitSchema(ctx, Schema(s.database)); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

func (s *CHHistoryStore) SaveRateSnapshots(ctx context.Context, refs []models.RateSnapshotRef) error {
	for start := 0; start < len(refs); start += insertChunk {
		end := min(start+insertChunk, len(refs))
		q, args := rateInsert(s.table(rateTable), refs[start:end])
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse rate insert error", applogger.Int("rows", end-start), applogger.Error(err))
			return fmt.Errorf("insert rate snapshots: %w", err)
		}
	}
	return nil
}

func rateInsert(table string, refs []models.RateSnapshotRef) (string, []interface{}) {
	values := make([]string, 0, len(refs))
	args := make([]interface{}, 0, len(refs)*7)
	for _, r := range refs {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.BankCode,
			r.RecordedAt.UTC(),
			r.CurrentRate,
			r.Probabilities.Hike,
			r.Probabilities.Hold,
			r.Probabilities.Cut,
			string(r.NextExpectedMove),
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (bank, recorded_at, current_rate, hike, hold, cut, next_move) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

func (s *CHHistoryStore) RateSnapshotAt(ctx context.Context, bank string, at time.Time) (*models.RateSnapshotRef, error) {
	q := fmt.Sprintf(`
		SELECT bank, recorded_at, current_rate, hike, hold, cut, next_move
		FROM %s
		WHERE bank = ? AND recorded_at <= ?
		ORDER BY recorded_at DESC
		LIMIT 1`, s.table(rateTable))
	refs, err := s.queryRates(ctx, q, bank, at.UTC())
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return &refs[0], nil
}

func (s *CHHistoryStore) RateHistory(ctx context.Context, bank string, since time.Time) ([]models.RateSnapshotRef, error) {
	q := fmt.Sprintf(`
		SELECT bank, recorded_at, current_rate, hike, hold, cut, next_move
		FROM %s FINAL
		WHERE bank = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC`, s.table(rateTable))
	return s.queryRates(ctx, q, bank, since.UTC())
}

func (s *CHHistoryStore) queryRates(ctx context.Context, q string, args ...interface{}) ([]models.RateSnapshotRef, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse rate query error", applogger.Error(err))
		return nil, fmt.Errorf("query rate history: %w", err)
	}
	defer rows.Close()

	out := make([]models.RateSnapshotRef, 0, 32)
	for rows.Next() {
		var (
			r    models.RateSnapshotRef
			move string
		)
		if err := rows.Scan(&r.BankCode, &r.RecordedAt, &r.CurrentRate,
			&r.Probabilities.Hike, &r.Probabilities.Hold, &r.Probabilities.Cut, &move); err != nil {
			return nil, fmt.Errorf("scan rate snapshot: %w", err)
		}
		r.NextExpectedMove = models.RateMove(move)
		r.RecordedAt = r.RecordedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse rate query ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *CHHistoryStore) SaveStrength(ctx context.Context, entries []models.CurrencyStrengthEntry, at time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*5)
	for _, e := range entries {
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, string(e.CurrencyCode), at.UTC(), e.StrengthValue, e.Momentum, string(e.Trend))
	}
	q := fmt.Sprintf("INSERT INTO %s (currency, recorded_at, strength, momentum, trend) VALUES %s",
		s.table(strengthTable), strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert currency strength: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *CHHistoryStore) Close() error {
	return nil
}
