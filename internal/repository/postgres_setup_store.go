package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
)

const postgresScansDDL = `
	CREATE TABLE IF NOT EXISTS scans (
		id          UUID PRIMARY KEY,
		symbol      TEXT NOT NULL,
		timeframe   TEXT NOT NULL,
		direction   TEXT NOT NULL,
		pattern     TEXT NOT NULL,
		ts          TIMESTAMPTZ NOT NULL,
		entry       DOUBLE PRECISION NOT NULL,
		stop        DOUBLE PRECISION NOT NULL,
		draw_target DOUBLE PRECISION NOT NULL,
		score       DOUBLE PRECISION NOT NULL,
		setup       JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (symbol, ts)
	)`

// scanRow maps the scans table.
type scanRow struct {
	ID         string    `db:"id"`
	Symbol     string    `db:"symbol"`
	Timeframe  string    `db:"timeframe"`
	Direction  string    `db:"direction"`
	Pattern    string    `db:"pattern"`
	TS         time.Time `db:"ts"`
	Entry      float64   `db:"entry"`
	Stop       float64   `db:"stop"`
	DrawTarget float64   `db:"draw_target"`
	Score      float64   `db:"score"`
	Setup      []byte    `db:"setup"`
}

// PGSetupStore journals setups in PostgreSQL.
type PGSetupStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// OpenPostgres opens and pings a sqlx pool for dsn.
func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPGSetupStore(db *sqlx.DB, timeout time.Duration) *PGSetupStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PGSetupStore{db: db, timeout: timeout}
}

func (s *PGSetupStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresScansDDL); err != nil {
		return fmt.Errorf("init scans: %w", err)
	}
	return nil
}

// Save inserts setup. A setup already journaled for the same symbol and bar
// returns the existing id.
func (s *PGSetupStore) Save(ctx context.Context, setup models.Setup, score float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if setup.ID == "" {
		setup.ID = uuid.NewString()
	}
	raw, err := json.Marshal(setup)
	if err != nil {
		return "", fmt.Errorf("marshal setup: %w", err)
	}
	row := scanRow{
		ID:         setup.ID,
		Symbol:     setup.Symbol,
		Timeframe:  setup.Timeframe,
		Direction:  string(setup.Direction),
		Pattern:    setup.Pattern,
		TS:         setup.Timestamp.UTC(),
		Entry:      setup.Entry,
		Stop:       setup.Stop,
		DrawTarget: setup.DrawTarget,
		Score:      score,
		Setup:      raw,
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO scans (id, symbol, timeframe, direction, pattern, ts, entry, stop, draw_target, score, setup)
		VALUES (:id, :symbol, :timeframe, :direction, :pattern, :ts, :entry, :stop, :draw_target, :score, :setup)`, row)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			var id string
			if qerr := s.db.GetContext(ctx, &id, `SELECT id FROM scans WHERE symbol = $1 AND ts = $2`, row.Symbol, row.TS); qerr == nil {
				return id, nil
			}
		}
		return "", fmt.Errorf("save setup: %w", err)
	}
	return setup.ID, nil
}

// Recent returns the newest journaled setups for symbol.
func (s *PGSetupStore) Recent(ctx context.Context, symbol string, limit int) ([]ScoredSetup, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []scanRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, symbol, timeframe, direction, pattern, ts, entry, stop, draw_target, score, setup
		FROM scans
		WHERE symbol = $1
		ORDER BY ts DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent setups: %w", err)
	}

	out := make([]ScoredSetup, 0, len(rows))
	for _, r := range rows {
		item := ScoredSetup{Score: r.Score}
		if err := json.Unmarshal(r.Setup, &item.Setup); err != nil {
			return nil, fmt.Errorf("decode setup %s: %w", r.ID, err)
		}
		out = append(out, item)
	}
	return out, nil
}

var _ domrepo.SetupSink = (*PGSetupStore)(nil)
