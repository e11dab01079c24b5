package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/shopspring/decimal"
)

// UpsertPosition writes one portfolio position.
func (s *Store) UpsertPosition(ctx context.Context, pos types.Position) error {
	query := s.sq.
		Insert("positions").
		Columns("portfolio_id", "symbol_id", "symbol", "market", "quantity", "buy_price").
		Values(pos.PortfolioID, pos.SymbolID, pos.Symbol, string(pos.Market),
			pos.Quantity.String(), pos.BuyPrice.String()).
		Suffix(`ON CONFLICT (portfolio_id, symbol_id) DO UPDATE SET
			symbol = excluded.symbol, market = excluded.market,
			quantity = excluded.quantity, buy_price = excluded.buy_price`).
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	return nil
}

// GetPosition returns one position, or None when the portfolio does not hold
// the symbol.
func (s *Store) GetPosition(ctx context.Context, portfolioID, symbolID string) (optional.Option[types.Position], error) {
	query := s.sq.
		Select("portfolio_id", "symbol_id", "symbol", "market", "quantity", "buy_price").
		From("positions").
		Where("portfolio_id = ? AND symbol_id = ?", portfolioID, symbolID).
		RunWith(s.db)

	pos, err := scanPosition(query.QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return optional.None[types.Position](), nil
	}

	if err != nil {
		return optional.None[types.Position](), fmt.Errorf("failed to query position: %w", err)
	}

	return optional.Some(pos), nil
}

// ListPositions returns every position in a portfolio, ordered by symbol.
func (s *Store) ListPositions(ctx context.Context, portfolioID string) ([]types.Position, error) {
	query := s.sq.
		Select("portfolio_id", "symbol_id", "symbol", "market", "quantity", "buy_price").
		From("positions").
		Where("portfolio_id = ?", portfolioID).
		OrderBy("symbol ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []types.Position{}

	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		positions = append(positions, pos)
	}

	return positions, rows.Err()
}

// PutStopState upserts a stop state. The update arm enforces the ratchet at
// the storage layer: the stored current_stop_loss never decreases even if a
// caller hands in a lower candidate.
func (s *Store) PutStopState(ctx context.Context, state types.StopLossState) error {
	query := s.sq.
		Insert("stop_states").
		Columns("portfolio_id", "symbol_id", "initial_stop_loss", "current_stop_loss",
			"last_updated_date", "stop_loss_type", "atr_multiplier").
		Values(state.PortfolioID, state.SymbolID,
			state.InitialStopLoss.String(), state.CurrentStopLoss.String(),
			day(state.LastUpdatedDate), string(state.StopLossType), state.ATRMultiplier.String()).
		Suffix(`ON CONFLICT (portfolio_id, symbol_id) DO UPDATE SET
			current_stop_loss = CAST(GREATEST(
				CAST(stop_states.current_stop_loss AS DECIMAL(18, 4)),
				CAST(excluded.current_stop_loss AS DECIMAL(18, 4))) AS TEXT),
			last_updated_date = excluded.last_updated_date,
			stop_loss_type = excluded.stop_loss_type,
			atr_multiplier = excluded.atr_multiplier`).
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert stop state: %w", err)
	}

	return nil
}

// GetStopState returns the stop state for one position, or None.
func (s *Store) GetStopState(ctx context.Context, portfolioID, symbolID string) (optional.Option[types.StopLossState], error) {
	query := s.sq.
		Select("portfolio_id", "symbol_id", "initial_stop_loss", "current_stop_loss",
			"last_updated_date", "stop_loss_type", "atr_multiplier").
		From("stop_states").
		Where("portfolio_id = ? AND symbol_id = ?", portfolioID, symbolID).
		RunWith(s.db)

	state, err := scanStopState(query.QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return optional.None[types.StopLossState](), nil
	}

	if err != nil {
		return optional.None[types.StopLossState](), fmt.Errorf("failed to query stop state: %w", err)
	}

	return optional.Some(state), nil
}

// ListStopStates returns every stop state in a portfolio.
func (s *Store) ListStopStates(ctx context.Context, portfolioID string) ([]types.StopLossState, error) {
	query := s.sq.
		Select("portfolio_id", "symbol_id", "initial_stop_loss", "current_stop_loss",
			"last_updated_date", "stop_loss_type", "atr_multiplier").
		From("stop_states").
		Where("portfolio_id = ?", portfolioID).
		OrderBy("symbol_id ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop states: %w", err)
	}
	defer rows.Close()

	states := []types.StopLossState{}

	for rows.Next() {
		state, err := scanStopState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stop state: %w", err)
		}

		states = append(states, state)
	}

	return states, rows.Err()
}

func scanPosition(row rowScanner) (types.Position, error) {
	var (
		pos       types.Position
		marketRaw string
		quantity  string
		buyPrice  string
	)

	if err := row.Scan(&pos.PortfolioID, &pos.SymbolID, &pos.Symbol, &marketRaw, &quantity, &buyPrice); err != nil {
		return types.Position{}, err
	}

	var err error

	pos.Market = types.Market(marketRaw)

	if pos.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return types.Position{}, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}

	if pos.BuyPrice, err = decimal.NewFromString(buyPrice); err != nil {
		return types.Position{}, fmt.Errorf("invalid buy price %q: %w", buyPrice, err)
	}

	return pos, nil
}

func scanStopState(row rowScanner) (types.StopLossState, error) {
	var (
		state                   types.StopLossState
		initial, current, multi string
		stopType                string
	)

	err := row.Scan(&state.PortfolioID, &state.SymbolID, &initial, &current,
		&state.LastUpdatedDate, &stopType, &multi)
	if err != nil {
		return types.StopLossState{}, err
	}

	state.StopLossType = types.StopLossType(stopType)

	if state.InitialStopLoss, err = decimal.NewFromString(initial); err != nil {
		return types.StopLossState{}, fmt.Errorf("invalid initial stop %q: %w", initial, err)
	}

	if state.CurrentStopLoss, err = decimal.NewFromString(current); err != nil {
		return types.StopLossState{}, fmt.Errorf("invalid current stop %q: %w", current, err)
	}

	if state.ATRMultiplier, err = decimal.NewFromString(multi); err != nil {
		return types.StopLossState{}, fmt.Errorf("invalid atr multiplier %q: %w", multi, err)
	}

	return state, nil
}
