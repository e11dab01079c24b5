package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// SignalType is the discrete trading signal emitted by the scorer.
type SignalType string

const (
	SignalStrongSell SignalType = "STRONG_SELL"
	SignalSell       SignalType = "SELL"
	SignalHold       SignalType = "HOLD"
	SignalBuy        SignalType = "BUY"
	SignalStrongBuy  SignalType = "STRONG_BUY"
)

// IsStrong reports whether the signal is high-conviction (STRONG_BUY or
// STRONG_SELL). Only strong signals are flagged for deep-dive reports.
func (s SignalType) IsStrong() bool {
	return s == SignalStrongBuy || s == SignalStrongSell
}

// IsBuySide reports whether the signal leans long.
func (s SignalType) IsBuySide() bool {
	return s == SignalBuy || s == SignalStrongBuy
}

// SMABreakout describes where the close sits relative to SMA20.
type SMABreakout string

const (
	BreakoutAboveSMA20 SMABreakout = "ABOVE_SMA20"
	BreakoutBelowSMA20 SMABreakout = "BELOW_SMA20"
)

// BBPosition describes where the close sits within the Bollinger Bands.
type BBPosition string

const (
	BBAboveUpper  BBPosition = "ABOVE_UPPER"
	BBBelowLower  BBPosition = "BELOW_LOWER"
	BBAboveMiddle BBPosition = "ABOVE_MIDDLE"
	BBBelowMiddle BBPosition = "BELOW_MIDDLE"
)

// ChangeDetails carries the raw day-over-day observations behind a decision.
type ChangeDetails struct {
	RSIChange   optional.Option[float64]     `json:"rsi_change"`
	PriceChange optional.Option[float64]     `json:"price_change"`
	VolumeSpike bool                         `json:"volume_spike"`
	SMABreakout optional.Option[SMABreakout] `json:"sma_breakout"`
	BBPosition  optional.Option[BBPosition]  `json:"bb_position"`
}

// SignalDecision is the scored outcome for one symbol on one date.
// Reasons are ordered by rule evaluation order; the order is part of the
// contract and tests assert on it.
type SignalDecision struct {
	Symbol        string        `json:"symbol"`
	Market        Market        `json:"market"`
	Date          time.Time     `json:"date"`
	Signal        SignalType    `json:"signal"`
	Confidence    int           `json:"confidence"` // 0-100
	Reasons       []string      `json:"reasons"`
	ChangeDetails ChangeDetails `json:"change_details"`
}
