package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// StopLossType records how a stop level was derived.
type StopLossType string

const (
	// StopPercentage is the flat fallback stop used when no ATR is available.
	StopPercentage StopLossType = "PERCENTAGE"
	// StopATRTrailing is a stop placed 2x ATR below the current price.
	StopATRTrailing StopLossType = "ATR_TRAILING"
	// StopATRTrailingCapped is an ATR stop widened past the maximum allowed
	// distance and clamped back to it.
	StopATRTrailingCapped StopLossType = "ATR_TRAILING_CAPPED"
	// StopATRTrailingMin is an ATR stop tighter than the minimum allowed
	// distance and clamped out to it.
	StopATRTrailingMin StopLossType = "ATR_TRAILING_MIN"
)

// Position is a portfolio holding, read-only from the engine's perspective.
type Position struct {
	PortfolioID string          `json:"portfolio_id"`
	SymbolID    string          `json:"symbol_id"`
	Symbol      string          `json:"symbol"`
	Market      Market          `json:"market"`
	Quantity    decimal.Decimal `json:"quantity"`
	BuyPrice    decimal.Decimal `json:"buy_price"`
}

// StopLossState is the persisted stop for one (portfolio, symbol) pair.
//
// CurrentStopLoss is a ratchet: recomputation may raise it, never lower it.
type StopLossState struct {
	PortfolioID     string          `json:"portfolio_id"`
	SymbolID        string          `json:"symbol_id"`
	InitialStopLoss decimal.Decimal `json:"initial_stop_loss"`
	CurrentStopLoss decimal.Decimal `json:"current_stop_loss"`
	LastUpdatedDate time.Time       `json:"last_updated_date"`
	StopLossType    StopLossType    `json:"stop_loss_type"`
	ATRMultiplier   decimal.Decimal `json:"atr_multiplier"`
}

// StopLossCalculation is the full record of one stop recomputation.
// ShouldUpdate tells the caller whether the recommended stop improved on the
// persisted one and is worth writing back.
type StopLossCalculation struct {
	PortfolioID string    `json:"portfolio_id"`
	SymbolID    string    `json:"symbol_id"`
	Date        time.Time `json:"date"`

	CurrentPrice decimal.Decimal `json:"current_price"`
	BuyPrice     decimal.Decimal `json:"buy_price"`

	InitialStopLoss     decimal.Decimal `json:"initial_stop_loss"`
	CurrentStopLoss     decimal.Decimal `json:"current_stop_loss"`
	RecommendedStopLoss decimal.Decimal `json:"recommended_stop_loss"`

	ATR           optional.Option[float64] `json:"atr"`
	ATRMultiplier decimal.Decimal          `json:"atr_multiplier"`
	// StopLossPercent is the stop distance below the current price, percent.
	StopLossPercent decimal.Decimal `json:"stop_loss_percent"`

	StopLossType StopLossType `json:"stop_loss_type"`
	ShouldUpdate bool         `json:"should_update"`
	// RiskAmount is the currency amount lost if the stop is hit.
	RiskAmount decimal.Decimal `json:"risk_amount"`
}

// StopLossViolation reports a close below a persisted stop. Detection never
// mutates stop state; exiting the position is the caller's decision.
type StopLossViolation struct {
	PortfolioID      string          `json:"portfolio_id"`
	SymbolID         string          `json:"symbol_id"`
	Symbol           string          `json:"symbol"`
	Date             time.Time       `json:"date"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	StopLoss         decimal.Decimal `json:"stop_loss"`
	ViolationAmount  decimal.Decimal `json:"violation_amount"`
	ViolationPercent decimal.Decimal `json:"violation_percent"`
}
