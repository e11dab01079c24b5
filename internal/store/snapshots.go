package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
)

var snapshotColumns = []string{
	"symbol", "market", "date", "close_price", "volume",
	"sma_20", "sma_50", "sma_200", "ema_12", "ema_26",
	"rsi_14", "macd", "macd_signal", "macd_histogram",
	"bb_upper", "bb_middle", "bb_lower", "atr_14",
	"volume_sma_20", "volume_ratio", "engine_version",
}

// PutSnapshot upserts one day's feature snapshot. Recomputing the same
// (symbol, market, date) simply overwrites the row.
func (s *Store) PutSnapshot(ctx context.Context, snap types.FeatureSnapshot) error {
	query := s.sq.
		Insert("feature_snapshots").
		Columns(snapshotColumns...).
		Values(
			snap.Symbol, string(snap.Market), day(snap.Date), snap.ClosePrice, snap.Volume,
			optToNull(snap.SMA20), optToNull(snap.SMA50), optToNull(snap.SMA200),
			optToNull(snap.EMA12), optToNull(snap.EMA26),
			optToNull(snap.RSI14), optToNull(snap.MACD), optToNull(snap.MACDSignal), optToNull(snap.MACDHistogram),
			optToNull(snap.BBUpper), optToNull(snap.BBMiddle), optToNull(snap.BBLower), optToNull(snap.ATR14),
			optToNull(snap.VolumeSMA20), optToNull(snap.VolumeRatio), snap.EngineVersion,
		).
		Suffix(`ON CONFLICT (symbol, market, date) DO UPDATE SET
			close_price = excluded.close_price, volume = excluded.volume,
			sma_20 = excluded.sma_20, sma_50 = excluded.sma_50, sma_200 = excluded.sma_200,
			ema_12 = excluded.ema_12, ema_26 = excluded.ema_26,
			rsi_14 = excluded.rsi_14, macd = excluded.macd,
			macd_signal = excluded.macd_signal, macd_histogram = excluded.macd_histogram,
			bb_upper = excluded.bb_upper, bb_middle = excluded.bb_middle, bb_lower = excluded.bb_lower,
			atr_14 = excluded.atr_14, volume_sma_20 = excluded.volume_sma_20,
			volume_ratio = excluded.volume_ratio, engine_version = excluded.engine_version`).
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	return nil
}

// GetSnapshot returns the snapshot for one (symbol, market, date), or None.
func (s *Store) GetSnapshot(ctx context.Context, symbol string, market types.Market, date time.Time) (optional.Option[types.FeatureSnapshot], error) {
	query := s.sq.
		Select(snapshotColumns...).
		From("feature_snapshots").
		Where("symbol = ? AND market = ? AND date = ?", symbol, string(market), day(date)).
		RunWith(s.db)

	snap, err := scanSnapshot(query.QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return optional.None[types.FeatureSnapshot](), nil
	}

	if err != nil {
		return optional.None[types.FeatureSnapshot](), fmt.Errorf("failed to query snapshot: %w", err)
	}

	return optional.Some(snap), nil
}

// ListSnapshotsByDate returns every snapshot stored for one date in one
// market, ordered by symbol.
func (s *Store) ListSnapshotsByDate(ctx context.Context, market types.Market, date time.Time) ([]types.FeatureSnapshot, error) {
	query := s.sq.
		Select(snapshotColumns...).
		From("feature_snapshots").
		Where("market = ? AND date = ?", string(market), day(date)).
		OrderBy("symbol ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []types.FeatureSnapshot{}

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// GetSnapshotHistory returns up to limit snapshots for a symbol ending at
// date inclusive, ascending by date.
func (s *Store) GetSnapshotHistory(ctx context.Context, symbol string, market types.Market, date time.Time, limit int) ([]types.FeatureSnapshot, error) {
	query := s.sq.
		Select(snapshotColumns...).
		From("feature_snapshots").
		Where("symbol = ? AND market = ? AND date <= ?", symbol, string(market), day(date)).
		OrderBy("date DESC").
		Limit(uint64(limit)).
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	history := []types.FeatureSnapshot{}

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		history = append(history, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into ascending order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

// GetEMAState returns the persisted EMA continuation state for a symbol.
func (s *Store) GetEMAState(ctx context.Context, symbol string, market types.Market) (optional.Option[types.EMAState], error) {
	query := s.sq.
		Select("symbol", "market", "date", "fast_ema", "slow_ema", "signal_ema").
		From("ema_states").
		Where("symbol = ? AND market = ?", symbol, string(market)).
		RunWith(s.db)

	var (
		state     types.EMAState
		marketRaw string
		fast      sql.NullFloat64
		slow      sql.NullFloat64
		signal    sql.NullFloat64
	)

	err := query.QueryRowContext(ctx).Scan(&state.Symbol, &marketRaw, &state.Date, &fast, &slow, &signal)
	if errors.Is(err, sql.ErrNoRows) {
		return optional.None[types.EMAState](), nil
	}

	if err != nil {
		return optional.None[types.EMAState](), fmt.Errorf("failed to query ema state: %w", err)
	}

	state.Market = types.Market(marketRaw)
	state.FastEMA = nullToOpt(fast)
	state.SlowEMA = nullToOpt(slow)
	state.SignalEMA = nullToOpt(signal)

	return optional.Some(state), nil
}

// PutEMAState upserts the EMA continuation state for a symbol.
func (s *Store) PutEMAState(ctx context.Context, state types.EMAState) error {
	query := s.sq.
		Insert("ema_states").
		Columns("symbol", "market", "date", "fast_ema", "slow_ema", "signal_ema").
		Values(state.Symbol, string(state.Market), day(state.Date),
			optToNull(state.FastEMA), optToNull(state.SlowEMA), optToNull(state.SignalEMA)).
		Suffix(`ON CONFLICT (symbol, market) DO UPDATE SET
			date = excluded.date, fast_ema = excluded.fast_ema,
			slow_ema = excluded.slow_ema, signal_ema = excluded.signal_ema`).
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert ema state: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (types.FeatureSnapshot, error) {
	var (
		snap      types.FeatureSnapshot
		marketRaw string

		sma20, sma50, sma200, ema12, ema26          sql.NullFloat64
		rsi14, macd, macdSignal, macdHistogram      sql.NullFloat64
		bbUpper, bbMiddle, bbLower, atr14           sql.NullFloat64
		volumeSMA20, volumeRatio                    sql.NullFloat64
	)

	err := row.Scan(
		&snap.Symbol, &marketRaw, &snap.Date, &snap.ClosePrice, &snap.Volume,
		&sma20, &sma50, &sma200, &ema12, &ema26,
		&rsi14, &macd, &macdSignal, &macdHistogram,
		&bbUpper, &bbMiddle, &bbLower, &atr14,
		&volumeSMA20, &volumeRatio, &snap.EngineVersion,
	)
	if err != nil {
		return types.FeatureSnapshot{}, err
	}

	snap.Market = types.Market(marketRaw)
	snap.SMA20 = nullToOpt(sma20)
	snap.SMA50 = nullToOpt(sma50)
	snap.SMA200 = nullToOpt(sma200)
	snap.EMA12 = nullToOpt(ema12)
	snap.EMA26 = nullToOpt(ema26)
	snap.RSI14 = nullToOpt(rsi14)
	snap.MACD = nullToOpt(macd)
	snap.MACDSignal = nullToOpt(macdSignal)
	snap.MACDHistogram = nullToOpt(macdHistogram)
	snap.BBUpper = nullToOpt(bbUpper)
	snap.BBMiddle = nullToOpt(bbMiddle)
	snap.BBLower = nullToOpt(bbLower)
	snap.ATR14 = nullToOpt(atr14)
	snap.VolumeSMA20 = nullToOpt(volumeSMA20)
	snap.VolumeRatio = nullToOpt(volumeRatio)

	return snap, nil
}
