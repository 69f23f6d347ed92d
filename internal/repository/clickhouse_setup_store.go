package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	pkgch "SMCScan/pkg/clickhouse"
)

// JournalSchema creates the scan journal and replay outcome tables.
var JournalSchema = []string{
	`CREATE DATABASE IF NOT EXISTS smcscan`,
	`CREATE TABLE IF NOT EXISTS smcscan.scans (
        id          UUID,
        symbol      LowCardinality(String),
        timeframe   LowCardinality(String),
        direction   LowCardinality(String),
        pattern     String,
        ts          DateTime64(3, 'UTC'),
        entry       Float64,
        stop        Float64,
        draw_target Float64,
        score       Float64,
        setup       String,
        created_at  DateTime64(3, 'UTC') DEFAULT now64(3)
    ) ENGINE = MergeTree
    ORDER BY (symbol, ts)`,
	`CREATE TABLE IF NOT EXISTS smcscan.replay_outcomes (
        run_id       UUID,
        setup_id     String,
        symbol       LowCardinality(String),
        direction    LowCardinality(String),
        entry_time   DateTime64(3, 'UTC'),
        phase        LowCardinality(String),
        realized_r   Float64,
        bars_elapsed UInt32,
        exit_price   Float64,
        created_at   DateTime64(3, 'UTC') DEFAULT now64(3)
    ) ENGINE = MergeTree
    ORDER BY (run_id, entry_time)`,
}

const (
	insertScanSQL = `INSERT INTO smcscan.scans (id, symbol, timeframe, direction, pattern, ts, entry, stop, draw_target, score, setup) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertOutcomeSQL = `INSERT INTO smcscan.replay_outcomes (run_id, setup_id, symbol, direction, entry_time, phase, realized_r, bars_elapsed, exit_price) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	recentScansSQL = `SELECT setup, score FROM smcscan.scans WHERE symbol = ? ORDER BY ts DESC LIMIT ?`
)

// ScoredSetup is a journaled setup with its score.
type ScoredSetup struct {
	Setup models.Setup `json:"setup"`
	Score float64      `json:"score"`
}

// CHSetupStore journals setups and replay outcomes in ClickHouse.
type CHSetupStore struct {
	ch *pkgch.Client
}

func NewCHSetupStore(ch *pkgch.Client) *CHSetupStore {
	return &CHSetupStore{ch: ch}
}

func (s *CHSetupStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, JournalSchema)
}

// Save stores setup with its score and returns the record id.
func (s *CHSetupStore) Save(ctx context.Context, setup models.Setup, score float64) (string, error) {
	id := setup.ID
	if id == "" {
		id = uuid.NewString()
	}
	setup.ID = id
	raw, err := json.Marshal(setup)
	if err != nil {
		return "", fmt.Errorf("marshal setup: %w", err)
	}
	_, err = s.ch.DB().ExecContext(ctx, insertScanSQL,
		id, setup.Symbol, setup.Timeframe, string(setup.Direction), setup.Pattern,
		setup.Timestamp.UTC(), setup.Entry, setup.Stop, setup.DrawTarget, score, string(raw))
	if err != nil {
		return "", fmt.Errorf("save setup: %w", err)
	}
	return id, nil
}

// SaveOutcomes writes one row per result under runID.
func (s *CHSetupStore) SaveOutcomes(ctx context.Context, runID string, results []models.ReplayResult) error {
	err := s.ch.InsertBatch(ctx, insertOutcomeSQL, len(results), func(i int) []any {
		r := results[i]
		return []any{runID, r.SetupID, r.Symbol, string(r.Direction), r.EntryTime.UTC(),
			string(r.Phase), r.RealizedR, uint32(r.BarsElapsed), r.ExitPrice}
	})
	if err != nil {
		return fmt.Errorf("save outcomes: %w", err)
	}
	return nil
}

// Recent returns the newest journaled setups for symbol.
func (s *CHSetupStore) Recent(ctx context.Context, symbol string, limit int) ([]ScoredSetup, error) {
	rows, err := s.ch.DB().QueryContext(ctx, recentScansSQL, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent setups: %w", err)
	}
	defer rows.Close()

	var out []ScoredSetup
	for rows.Next() {
		var raw string
		var item ScoredSetup
		if err := rows.Scan(&raw, &item.Score); err != nil {
			return nil, fmt.Errorf("scan setup: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &item.Setup); err != nil {
			return nil, fmt.Errorf("decode setup: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// NewRunID returns an identifier for one backtest run.
func NewRunID() string { return uuid.NewString() }

var (
	_ domrepo.SetupSink    = (*CHSetupStore)(nil)
	_ domrepo.OutcomeStore = (*CHSetupStore)(nil)
)
