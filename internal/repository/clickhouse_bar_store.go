package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	pkgch "SMCScan/pkg/clickhouse"
	applogger "SMCScan/pkg/logger"
)

// BarSchema creates the bar table. ReplacingMergeTree collapses redelivered
// (symbol, ts) rows, keeping the newest insert.
var BarSchema = []string{
	`CREATE DATABASE IF NOT EXISTS smcscan`,
	`CREATE TABLE IF NOT EXISTS smcscan.bars_5m (
        symbol      LowCardinality(String),
        ts          DateTime64(3, 'UTC'),
        open        Float64,
        high        Float64,
        low         Float64,
        close       Float64,
        volume      Float64,
        inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
    ) ENGINE = ReplacingMergeTree(inserted_at)
    PARTITION BY toYYYYMM(ts)
    ORDER BY (symbol, ts)`,
}

const insertBarSQL = `INSERT INTO smcscan.bars_5m (symbol, ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`

// CHBarStore implements BarStore backed by ClickHouse. Bars are stored at
// 5m and coarser timeframes are aggregated on read.
type CHBarStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client) *CHBarStore {
	return &CHBarStore{ch: ch, db: ch.DB(), l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHBarStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, BarSchema)
}

func (s *CHBarStore) Store(ctx context.Context, b *models.Bar) error {
	return s.StoreBatch(ctx, []*models.Bar{b})
}

func (s *CHBarStore) StoreBatch(ctx context.Context, bars []*models.Bar) error {
	valid := make([]*models.Bar, 0, len(bars))
	for _, b := range bars {
		if b == nil || b.Symbol == "" || b.Timestamp.IsZero() {
			continue
		}
		valid = append(valid, b)
	}
	err := s.ch.InsertBatch(ctx, insertBarSQL, len(valid), func(i int) []any {
		b := valid[i]
		return []any{b.Symbol, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume}
	})
	if err != nil {
		return fmt.Errorf("store bars: %w", err)
	}
	return nil
}

// bucketMinutes is the aggregation width for timeframes served from the
// 5m table. 0 means read rows as stored.
func bucketMinutes(tf domrepo.Timeframe) (int, error) {
	switch tf {
	case domrepo.TF5m:
		return 0, nil
	case domrepo.TF15m:
		return 15, nil
	case domrepo.TF1h:
		return 60, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

func selectBars(minutes int) string {
	if minutes == 0 {
		return `SELECT ts, open, high, low, close, volume FROM smcscan.bars_5m FINAL WHERE symbol = ?`
	}
	return fmt.Sprintf(`SELECT toStartOfInterval(ts, INTERVAL %d MINUTE) AS bucket,
        argMin(open, ts), max(high), min(low), argMax(close, ts), sum(volume)
        FROM smcscan.bars_5m FINAL WHERE symbol = ?`, minutes)
}

func groupBy(minutes int) string {
	if minutes == 0 {
		return ""
	}
	return " GROUP BY bucket"
}

func orderCol(minutes int) string {
	if minutes == 0 {
		return "ts"
	}
	return "bucket"
}

// Fetch returns the latest limit bars, oldest first.
func (s *CHBarStore) Fetch(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Bar, error) {
	minutes, err := bucketMinutes(tf)
	if err != nil {
		return nil, err
	}
	q := selectBars(minutes) + groupBy(minutes) + " ORDER BY " + orderCol(minutes) + " DESC LIMIT ?"
	out, err := s.query(ctx, "fetch", symbol, tf, q, symbol, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// FetchRange returns bars with from <= ts <= to, oldest first.
func (s *CHBarStore) FetchRange(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Bar, error) {
	minutes, err := bucketMinutes(tf)
	if err != nil {
		return nil, err
	}
	q := selectBars(minutes) + " AND ts >= ? AND ts <= ?" + groupBy(minutes) + " ORDER BY " + orderCol(minutes) + " ASC"
	return s.query(ctx, "fetch_range", symbol, tf, q, symbol, from.UTC(), to.UTC())
}

func (s *CHBarStore) query(ctx context.Context, op, symbol string, tf domrepo.Timeframe, q string, args ...any) ([]models.Bar, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse bars query error",
			applogger.String("op", op),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %s: %v", domrepo.ErrBarsUnavailable, op, symbol, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 1024)
	for rows.Next() {
		b := models.Bar{Symbol: symbol}
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan bar: %v", domrepo.ErrBarsUnavailable, err)
		}
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domrepo.ErrBarsUnavailable, err)
	}
	s.l.Debug("clickhouse bars ok",
		applogger.String("op", op),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHBarStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the pool is owned by the clickhouse client.
func (s *CHBarStore) Close() error { return nil }

var _ domrepo.BarStore = (*CHBarStore)(nil)
