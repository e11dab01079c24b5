package store

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlens/eod-engine/internal/types"
)

// UpsertBars writes daily bars for one symbol, replacing any bar already
// stored for the same date.
func (s *Store) UpsertBars(ctx context.Context, symbol string, market types.Market, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, bar := range bars {
		query := s.sq.
			Insert("bars").
			Columns("symbol", "market", "date", "open", "high", "low", "close", "volume").
			Values(symbol, string(market), day(bar.Date), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
			Suffix(`ON CONFLICT (symbol, market, date) DO UPDATE SET
				open = excluded.open, high = excluded.high, low = excluded.low,
				close = excluded.close, volume = excluded.volume`).
			RunWith(tx)

		if _, err := query.ExecContext(ctx); err != nil {
			tx.Rollback()

			return fmt.Errorf("failed to upsert bar: %w", err)
		}
	}

	return tx.Commit()
}

// GetBars returns the daily bars for a symbol in [start, end], ascending by
// date.
func (s *Store) GetBars(ctx context.Context, symbol string, market types.Market, start, end time.Time) ([]types.Bar, error) {
	query := s.sq.
		Select("date", "open", "high", "low", "close", "volume").
		From("bars").
		Where("symbol = ? AND market = ? AND date >= ? AND date <= ?",
			symbol, string(market), day(start), day(end)).
		OrderBy("date ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	bars := []types.Bar{}

	for rows.Next() {
		var bar types.Bar

		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}

		bars = append(bars, bar)
	}

	return bars, rows.Err()
}

// UpsertSymbol adds a symbol to the universe or updates its active flag.
func (s *Store) UpsertSymbol(ctx context.Context, symbol types.Symbol) error {
	query := s.sq.
		Insert("symbols").
		Columns("symbol", "market", "is_active").
		Values(symbol.Symbol, string(symbol.Market), symbol.IsActive).
		Suffix("ON CONFLICT (symbol, market) DO UPDATE SET is_active = excluded.is_active").
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert symbol: %w", err)
	}

	return nil
}

// ListActiveSymbols returns the active universe for one market, ordered by
// symbol for deterministic pipeline iteration.
func (s *Store) ListActiveSymbols(ctx context.Context, market types.Market) ([]types.Symbol, error) {
	query := s.sq.
		Select("symbol", "market", "is_active").
		From("symbols").
		Where("market = ? AND is_active", string(market)).
		OrderBy("symbol ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	symbols := []types.Symbol{}

	for rows.Next() {
		var (
			sym       types.Symbol
			marketRaw string
		)

		if err := rows.Scan(&sym.Symbol, &marketRaw, &sym.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}

		sym.Market = types.Market(marketRaw)
		symbols = append(symbols, sym)
	}

	return symbols, rows.Err()
}

// UpsertSectorTag assigns a symbol to a sector.
func (s *Store) UpsertSectorTag(ctx context.Context, symbol string, market types.Market, sector string) error {
	query := s.sq.
		Insert("sector_tags").
		Columns("symbol", "market", "sector").
		Values(symbol, string(market), sector).
		Suffix("ON CONFLICT (symbol, market) DO UPDATE SET sector = excluded.sector").
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert sector tag: %w", err)
	}

	return nil
}

// GetSectorTags returns the symbol-to-sector mapping for one market.
func (s *Store) GetSectorTags(ctx context.Context, market types.Market) (map[string]string, error) {
	query := s.sq.
		Select("symbol", "sector").
		From("sector_tags").
		Where("market = ?", string(market)).
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query sector tags: %w", err)
	}
	defer rows.Close()

	tags := map[string]string{}

	for rows.Next() {
		var symbol, sector string

		if err := rows.Scan(&symbol, &sector); err != nil {
			return nil, fmt.Errorf("failed to scan sector tag: %w", err)
		}

		tags[symbol] = sector
	}

	return tags, rows.Err()
}
