package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantlens/eod-engine/internal/types"
)

// PutDecision upserts one day's signal decision for a symbol. Reasons and
// change details are stored as JSON alongside the queryable columns.
func (s *Store) PutDecision(ctx context.Context, decision types.SignalDecision) error {
	reasons, err := marshalJSON(decision.Reasons)
	if err != nil {
		return err
	}

	details, err := marshalJSON(decision.ChangeDetails)
	if err != nil {
		return err
	}

	query := s.sq.
		Insert("daily_decisions").
		Columns("symbol", "market", "date", "signal", "confidence", "reasons", "change_details").
		Values(decision.Symbol, string(decision.Market), day(decision.Date),
			string(decision.Signal), decision.Confidence, reasons, details).
		Suffix(`ON CONFLICT (symbol, market, date) DO UPDATE SET
			signal = excluded.signal, confidence = excluded.confidence,
			reasons = excluded.reasons, change_details = excluded.change_details`).
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert decision: %w", err)
	}

	return nil
}

// GetDecision returns one symbol's decision for a date, or None.
func (s *Store) GetDecision(ctx context.Context, symbol string, market types.Market, date time.Time) (optional.Option[types.SignalDecision], error) {
	query := s.sq.
		Select("symbol", "market", "date", "signal", "confidence", "reasons", "change_details").
		From("daily_decisions").
		Where("symbol = ? AND market = ? AND date = ?", symbol, string(market), day(date)).
		RunWith(s.db)

	decision, err := scanDecision(query.QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return optional.None[types.SignalDecision](), nil
	}

	if err != nil {
		return optional.None[types.SignalDecision](), fmt.Errorf("failed to query decision: %w", err)
	}

	return optional.Some(decision), nil
}

// ListDecisionsByDate returns every decision for one date in one market,
// strongest first (by confidence, then symbol for determinism).
func (s *Store) ListDecisionsByDate(ctx context.Context, market types.Market, date time.Time) ([]types.SignalDecision, error) {
	query := s.sq.
		Select("symbol", "market", "date", "signal", "confidence", "reasons", "change_details").
		From("daily_decisions").
		Where("market = ? AND date = ?", string(market), day(date)).
		OrderBy("confidence DESC", "symbol ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	decisions := []types.SignalDecision{}

	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}

		decisions = append(decisions, decision)
	}

	return decisions, rows.Err()
}

// ReplaceSectorStrengths replaces the sector table for one (market, date)
// with the given ranking. Replacement keeps the table consistent when a
// sector disappears from the day's data.
func (s *Store) ReplaceSectorStrengths(ctx context.Context, market types.Market, date time.Time, strengths []types.SectorStrength) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	deleteQuery := s.sq.
		Delete("sector_strengths").
		Where("market = ? AND date = ?", string(market), day(date)).
		RunWith(tx)

	if _, err := deleteQuery.ExecContext(ctx); err != nil {
		tx.Rollback()

		return fmt.Errorf("failed to clear sector strengths: %w", err)
	}

	for _, strength := range strengths {
		insertQuery := s.sq.
			Insert("sector_strengths").
			Columns("sector", "market", "date", "symbol_count", "avg_rsi", "avg_sma20_dist",
				"avg_vol_ratio", "strong_symbols", "weak_symbols", "score", "rank").
			Values(strength.Sector, string(market), day(date), strength.SymbolCount,
				optToNull(strength.AvgRSI), optToNull(strength.AvgSMA20Dist), optToNull(strength.AvgVolRatio),
				strength.StrongSymbols, strength.WeakSymbols, strength.Score, strength.Rank).
			RunWith(tx)

		if _, err := insertQuery.ExecContext(ctx); err != nil {
			tx.Rollback()

			return fmt.Errorf("failed to insert sector strength: %w", err)
		}
	}

	return tx.Commit()
}

// ListSectorStrengths returns the sector ranking for one (market, date) in
// rank order.
func (s *Store) ListSectorStrengths(ctx context.Context, market types.Market, date time.Time) ([]types.SectorStrength, error) {
	query := s.sq.
		Select("sector", "market", "date", "symbol_count", "avg_rsi", "avg_sma20_dist",
			"avg_vol_ratio", "strong_symbols", "weak_symbols", "score", "rank").
		From("sector_strengths").
		Where("market = ? AND date = ?", string(market), day(date)).
		OrderBy("rank ASC").
		RunWith(s.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query sector strengths: %w", err)
	}
	defer rows.Close()

	strengths := []types.SectorStrength{}

	for rows.Next() {
		var (
			strength                        types.SectorStrength
			marketRaw                       string
			avgRSI, avgSMA20Dist, avgVRatio sql.NullFloat64
		)

		err := rows.Scan(&strength.Sector, &marketRaw, &strength.Date, &strength.SymbolCount,
			&avgRSI, &avgSMA20Dist, &avgVRatio,
			&strength.StrongSymbols, &strength.WeakSymbols, &strength.Score, &strength.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sector strength: %w", err)
		}

		strength.Market = types.Market(marketRaw)
		strength.AvgRSI = nullToOpt(avgRSI)
		strength.AvgSMA20Dist = nullToOpt(avgSMA20Dist)
		strength.AvgVolRatio = nullToOpt(avgVRatio)
		strengths = append(strengths, strength)
	}

	return strengths, rows.Err()
}

// PutDeepDiveReport upserts one deep-dive report, stored as a JSON document.
func (s *Store) PutDeepDiveReport(ctx context.Context, report types.DeepDiveReport) error {
	doc, err := marshalJSON(report)
	if err != nil {
		return err
	}

	query := s.sq.
		Insert("deep_dive_reports").
		Columns("symbol", "market", "date", "report").
		Values(report.Symbol, string(report.Market), day(report.Date), doc).
		Suffix("ON CONFLICT (symbol, market, date) DO UPDATE SET report = excluded.report").
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to upsert deep dive report: %w", err)
	}

	return nil
}

// GetDeepDiveReport returns one deep-dive report, or None.
func (s *Store) GetDeepDiveReport(ctx context.Context, symbol string, market types.Market, date time.Time) (optional.Option[types.DeepDiveReport], error) {
	query := s.sq.
		Select("report").
		From("deep_dive_reports").
		Where("symbol = ? AND market = ? AND date = ?", symbol, string(market), day(date)).
		RunWith(s.db)

	var doc string

	err := query.QueryRowContext(ctx).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return optional.None[types.DeepDiveReport](), nil
	}

	if err != nil {
		return optional.None[types.DeepDiveReport](), fmt.Errorf("failed to query deep dive report: %w", err)
	}

	var report types.DeepDiveReport

	if err := json.Unmarshal([]byte(doc), &report); err != nil {
		return optional.None[types.DeepDiveReport](), fmt.Errorf("failed to decode deep dive report: %w", err)
	}

	return optional.Some(report), nil
}

// GetPipelineRun returns the run recorded for a (date, market), or None.
func (s *Store) GetPipelineRun(ctx context.Context, market types.Market, date time.Time) (optional.Option[types.PipelineRun], error) {
	query := s.sq.
		Select("run_id", "date", "market", "status", "started_at", "finished_at", "detail").
		From("pipeline_runs").
		Where("date = ? AND market = ?", day(date), string(market)).
		RunWith(s.db)

	var (
		run        types.PipelineRun
		marketRaw  string
		status     string
		finishedAt sql.NullTime
	)

	err := query.QueryRowContext(ctx).Scan(&run.RunID, &run.Date, &marketRaw, &status,
		&run.StartedAt, &finishedAt, &run.Detail)
	if errors.Is(err, sql.ErrNoRows) {
		return optional.None[types.PipelineRun](), nil
	}

	if err != nil {
		return optional.None[types.PipelineRun](), fmt.Errorf("failed to query pipeline run: %w", err)
	}

	run.Market = types.Market(marketRaw)
	run.Status = types.RunStatus(status)

	if finishedAt.Valid {
		run.FinishedAt = optional.Some(finishedAt.Time)
	} else {
		run.FinishedAt = optional.None[time.Time]()
	}

	return optional.Some(run), nil
}

// StartPipelineRun records a new RUNNING run for a (date, market). It fails
// if a row already exists for the pair; callers force a re-run by deleting
// the prior row first.
func (s *Store) StartPipelineRun(ctx context.Context, run types.PipelineRun) error {
	query := s.sq.
		Insert("pipeline_runs").
		Columns("run_id", "date", "market", "status", "started_at", "finished_at", "detail").
		Values(run.RunID, day(run.Date), string(run.Market), string(run.Status),
			run.StartedAt, nil, run.Detail).
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to record pipeline run: %w", err)
	}

	return nil
}

// FinishPipelineRun marks a run COMPLETED or FAILED with its outcome detail.
func (s *Store) FinishPipelineRun(ctx context.Context, runID string, status types.RunStatus, finishedAt time.Time, detail string) error {
	query := s.sq.
		Update("pipeline_runs").
		Set("status", string(status)).
		Set("finished_at", finishedAt).
		Set("detail", detail).
		Where("run_id = ?", runID).
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to finish pipeline run: %w", err)
	}

	return nil
}

// DeletePipelineRun removes the run row for a (date, market) so the day can
// be re-run.
func (s *Store) DeletePipelineRun(ctx context.Context, market types.Market, date time.Time) error {
	query := s.sq.
		Delete("pipeline_runs").
		Where("date = ? AND market = ?", day(date), string(market)).
		RunWith(s.db)

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to delete pipeline run: %w", err)
	}

	return nil
}

func scanDecision(row rowScanner) (types.SignalDecision, error) {
	var (
		decision   types.SignalDecision
		marketRaw  string
		signalRaw  string
		reasons    string
		detailsRaw string
	)

	err := row.Scan(&decision.Symbol, &marketRaw, &decision.Date, &signalRaw,
		&decision.Confidence, &reasons, &detailsRaw)
	if err != nil {
		return types.SignalDecision{}, err
	}

	decision.Market = types.Market(marketRaw)
	decision.Signal = types.SignalType(signalRaw)

	if err := json.Unmarshal([]byte(reasons), &decision.Reasons); err != nil {
		return types.SignalDecision{}, fmt.Errorf("failed to decode reasons: %w", err)
	}

	if err := json.Unmarshal([]byte(detailsRaw), &decision.ChangeDetails); err != nil {
		return types.SignalDecision{}, fmt.Errorf("failed to decode change details: %w", err)
	}

	return decision, nil
}
