package pipeline

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/quantlens/eod-engine/internal/features"
	"github.com/quantlens/eod-engine/internal/stoploss"
	"github.com/quantlens/eod-engine/pkg/errors"
	"github.com/quantlens/eod-engine/pkg/marketdata"
	"github.com/quantlens/eod-engine/pkg/utils"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StopLossSettings is the yaml-facing shape of the stop engine's risk
// profile. Percentages are fractions (0.10 = 10%).
type StopLossSettings struct {
	DefaultStopPercent float64 `yaml:"default_stop_percent" json:"default_stop_percent" jsonschema:"description=Flat stop distance used when ATR is unavailable"`
	ATRMultiplier      float64 `yaml:"atr_multiplier" json:"atr_multiplier" jsonschema:"description=ATR multiplier for trailing stops"`
	MinStopPercent     float64 `yaml:"min_stop_percent" json:"min_stop_percent" jsonschema:"description=Tightest allowed stop distance"`
	MaxStopPercent     float64 `yaml:"max_stop_percent" json:"max_stop_percent" jsonschema:"description=Widest allowed stop distance"`
}

// EngineConfig converts the yaml settings into the stop engine's
// fixed-precision form.
func (s StopLossSettings) EngineConfig() stoploss.Config {
	return stoploss.Config{
		DefaultStopPercent: decimal.NewFromFloat(s.DefaultStopPercent),
		ATRMultiplier:      decimal.NewFromFloat(s.ATRMultiplier),
		MinStopPercent:     decimal.NewFromFloat(s.MinStopPercent),
		MaxStopPercent:     decimal.NewFromFloat(s.MaxStopPercent),
	}
}

// Config is the daily pipeline configuration, loaded from yaml.
type Config struct {
	// DatabasePath is the DuckDB file holding all engine state.
	DatabasePath string `yaml:"database_path" json:"database_path" validate:"required" jsonschema:"description=Path to the DuckDB database file"`
	// Market is the market this pipeline instance serves.
	Market string `yaml:"market" json:"market" validate:"required,oneof=US TASE" jsonschema:"description=Market to run the pipeline for,enum=US,enum=TASE"`
	// Workers bounds the feature-stage concurrency.
	Workers int `yaml:"workers" json:"workers" validate:"omitempty,min=1,max=64" jsonschema:"description=Concurrent workers for the feature stage"`
	// LookbackDays is the calendar-day window of bar history fetched per
	// symbol each run.
	LookbackDays int `yaml:"lookback_days" json:"lookback_days" validate:"omitempty,min=30,max=1000" jsonschema:"description=Calendar days of bar history fetched per symbol"`
	// Portfolios lists the portfolios whose stops are recalculated daily.
	Portfolios []string `yaml:"portfolios" json:"portfolios" jsonschema:"description=Portfolio IDs to recalculate stops for"`

	MarketData marketdata.Config `yaml:"market_data" json:"market_data" validate:"required" jsonschema:"description=Market data provider settings"`
	StopLoss   StopLossSettings  `yaml:"stop_loss" json:"stop_loss" jsonschema:"description=Stop-loss risk profile"`
}

// DefaultWorkers is used when the config leaves Workers unset.
const DefaultWorkers = 8

// DefaultConfig returns a runnable config for a local US setup.
func DefaultConfig() Config {
	return Config{
		DatabasePath: "eod-engine.db",
		Market:       "US",
		Workers:      DefaultWorkers,
		LookbackDays: features.LookbackDays,
		Portfolios:   []string{},
		MarketData: marketdata.Config{
			Type:       marketdata.ProviderDuckDB,
			DuckDBPath: "eod-engine.db",
		},
		StopLoss: StopLossSettings{
			DefaultStopPercent: 0.10,
			ATRMultiplier:      2.0,
			MinStopPercent:     0.05,
			MaxStopPercent:     0.20,
		},
	}
}

// LoadConfig reads and validates a yaml config file. Unset workers default
// to DefaultWorkers; everything else must be explicit.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	var config Config

	if err := yaml.Unmarshal(raw, &config); err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config %s", path)
	}

	if config.Workers == 0 {
		config.Workers = DefaultWorkers
	}

	if config.LookbackDays == 0 {
		config.LookbackDays = features.LookbackDays
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the config, including the nested risk profile.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid pipeline config", err)
	}

	return c.StopLoss.EngineConfig().Validate()
}

// GenerateSchemaJSON returns the JSON schema for the config file, used by
// editors for completion and validation.
func (c Config) GenerateSchemaJSON() (string, error) {
	return utils.GetSchemaFromConfig(c)
}
