// Package store persists bars, features, decisions and portfolio state in
// DuckDB. One Store owns the database handle; callers get narrow read/write
// methods that the domain packages consume through their own interfaces.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/logger"
	"go.uber.org/zap"
)

// Store wraps a DuckDB database with typed accessors for every table the
// engine reads or writes.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewStore opens (or creates) the DuckDB database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral database.
func NewStore(path string, l *logger.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: l.Named("store"),
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := s.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	s.logger.Debug("store opened", zap.String("path", path))

	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			symbol TEXT,
			market TEXT,
			is_active BOOLEAN,
			PRIMARY KEY (symbol, market)
		)`,
		`CREATE TABLE IF NOT EXISTS sector_tags (
			symbol TEXT,
			market TEXT,
			sector TEXT,
			PRIMARY KEY (symbol, market)
		)`,
		`CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT,
			market TEXT,
			date TIMESTAMP,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE,
			PRIMARY KEY (symbol, market, date)
		)`,
		`CREATE TABLE IF NOT EXISTS feature_snapshots (
			symbol TEXT,
			market TEXT,
			date TIMESTAMP,
			close_price DOUBLE,
			volume DOUBLE,
			sma_20 DOUBLE,
			sma_50 DOUBLE,
			sma_200 DOUBLE,
			ema_12 DOUBLE,
			ema_26 DOUBLE,
			rsi_14 DOUBLE,
			macd DOUBLE,
			macd_signal DOUBLE,
			macd_histogram DOUBLE,
			bb_upper DOUBLE,
			bb_middle DOUBLE,
			bb_lower DOUBLE,
			atr_14 DOUBLE,
			volume_sma_20 DOUBLE,
			volume_ratio DOUBLE,
			engine_version TEXT,
			PRIMARY KEY (symbol, market, date)
		)`,
		`CREATE TABLE IF NOT EXISTS ema_states (
			symbol TEXT,
			market TEXT,
			date TIMESTAMP,
			fast_ema DOUBLE,
			slow_ema DOUBLE,
			signal_ema DOUBLE,
			PRIMARY KEY (symbol, market)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_decisions (
			symbol TEXT,
			market TEXT,
			date TIMESTAMP,
			signal TEXT,
			confidence INTEGER,
			reasons TEXT,
			change_details TEXT,
			PRIMARY KEY (symbol, market, date)
		)`,
		`CREATE TABLE IF NOT EXISTS sector_strengths (
			sector TEXT,
			market TEXT,
			date TIMESTAMP,
			symbol_count INTEGER,
			avg_rsi DOUBLE,
			avg_sma20_dist DOUBLE,
			avg_vol_ratio DOUBLE,
			strong_symbols INTEGER,
			weak_symbols INTEGER,
			score DOUBLE,
			rank INTEGER,
			PRIMARY KEY (sector, market, date)
		)`,
		`CREATE TABLE IF NOT EXISTS deep_dive_reports (
			symbol TEXT,
			market TEXT,
			date TIMESTAMP,
			report TEXT,
			PRIMARY KEY (symbol, market, date)
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			portfolio_id TEXT,
			symbol_id TEXT,
			symbol TEXT,
			market TEXT,
			quantity TEXT,
			buy_price TEXT,
			PRIMARY KEY (portfolio_id, symbol_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stop_states (
			portfolio_id TEXT,
			symbol_id TEXT,
			initial_stop_loss TEXT,
			current_stop_loss TEXT,
			last_updated_date TIMESTAMP,
			stop_loss_type TEXT,
			atr_multiplier TEXT,
			PRIMARY KEY (portfolio_id, symbol_id)
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id TEXT,
			date TIMESTAMP,
			market TEXT,
			status TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			detail TEXT,
			PRIMARY KEY (date, market)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// day truncates a timestamp to its calendar date in UTC so every table keys
// on the same canonical trading-day value.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func optToNull(o optional.Option[float64]) any {
	if o.IsNone() {
		return nil
	}

	return o.Unwrap()
}

func nullToOpt(v sql.NullFloat64) optional.Option[float64] {
	if !v.Valid {
		return optional.None[float64]()
	}

	return optional.Some(v.Float64)
}

func marshalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json column: %w", err)
	}

	return string(raw), nil
}
