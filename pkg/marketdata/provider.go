// Package marketdata supplies daily bars from external or local sources.
//
// Providers are selected explicitly by type; there is no process-global
// registry. A provider declares which markets it can serve and callers
// check that capability before routing a request to it.
package marketdata

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
)

// ProviderType selects a market data provider implementation.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderDuckDB  ProviderType = "duckdb"
)

// Provider fetches daily bars for one symbol. Implementations must return
// bars ascending by date and may serve only a subset of markets.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// SupportsMarket reports whether the provider can serve the market.
	SupportsMarket(market types.Market) bool
	// GetDailyBars returns the daily bars for [start, end] inclusive.
	GetDailyBars(ctx context.Context, symbol string, market types.Market, start, end time.Time) ([]types.Bar, error)
}

// Config carries the settings for every provider type; only the fields of
// the selected type are required.
type Config struct {
	// PolygonAPIKey authenticates against the Polygon REST API.
	PolygonAPIKey string `yaml:"polygon_api_key" validate:"required_if=Type polygon"`
	// DuckDBPath is the database file holding pre-ingested bars.
	DuckDBPath string `yaml:"duckdb_path" validate:"required_if=Type duckdb"`
	// Type is the provider this config is for.
	Type ProviderType `yaml:"type" validate:"required,oneof=polygon duckdb"`
}

// NewProvider constructs the provider named by config.Type. Selection is
// explicit; an unknown type is an error, not a silent default.
func NewProvider(config Config) (Provider, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid market data config", err)
	}

	switch config.Type {
	case ProviderPolygon:
		return NewPolygonProvider(config.PolygonAPIKey)
	case ProviderDuckDB:
		return NewDuckDBProvider(config.DuckDBPath)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider: %s", config.Type)
	}
}
