package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// RiskLevel buckets the additive risk score of a deep-dive report.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// TechnicalAnalysis holds the narrated classification of each dimension.
type TechnicalAnalysis struct {
	Trend      string `json:"trend"`
	Momentum   string `json:"momentum"`
	Volatility string `json:"volatility"`
	Volume     string `json:"volume"`
}

// KeyMetrics is the numeric summary attached to a deep-dive report.
type KeyMetrics struct {
	CurrentPrice float64                  `json:"current_price"`
	SMA20        optional.Option[float64] `json:"sma_20"`
	SMA50        optional.Option[float64] `json:"sma_50"`
	SMA200       optional.Option[float64] `json:"sma_200"`
	RSI          optional.Option[float64] `json:"rsi"`
	ATR          optional.Option[float64] `json:"atr"`
	VolumeRatio  optional.Option[float64] `json:"volume_ratio"`
}

// RiskAssessment is the risk level plus the factors that produced it.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}

// DeepDiveReport is the narrative report generated for high-conviction
// (STRONG_*) signals only.
type DeepDiveReport struct {
	Symbol     string     `json:"symbol"`
	Market     Market     `json:"market"`
	Date       time.Time  `json:"date"`
	Signal     SignalType `json:"signal"`
	Confidence int        `json:"confidence"`

	Summary           string            `json:"summary"`
	TechnicalAnalysis TechnicalAnalysis `json:"technical_analysis"`
	KeyMetrics        KeyMetrics        `json:"key_metrics"`
	RiskAssessment    RiskAssessment    `json:"risk_assessment"`
	Recommendations   []string          `json:"recommendations"`

	Reasons              []string                    `json:"reasons"`
	HistoricalDataPoints int                         `json:"historical_data_points"`
	BBPosition           optional.Option[BBPosition] `json:"bb_position"`
}
