package marketdata

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
)

// PolygonProvider serves US daily aggregates from the Polygon REST API.
type PolygonProvider struct {
	client *polygon.Client
}

// NewPolygonProvider creates a Polygon-backed provider.
func NewPolygonProvider(apiKey string) (*PolygonProvider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon api key is required")
	}

	return &PolygonProvider{client: polygon.New(apiKey)}, nil
}

// Name implements Provider.
func (p *PolygonProvider) Name() string {
	return string(ProviderPolygon)
}

// SupportsMarket implements Provider. Polygon only covers US equities.
func (p *PolygonProvider) SupportsMarket(market types.Market) bool {
	return market == types.MarketUS
}

// GetDailyBars implements Provider.
func (p *PolygonProvider) GetDailyBars(ctx context.Context, symbol string, market types.Market, start, end time.Time) ([]types.Bar, error) {
	if !p.SupportsMarket(market) {
		return nil, errors.Newf(errors.ErrCodeUnsupportedMarket,
			"provider %s does not serve market %s", p.Name(), market)
	}

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(50000)

	iter := p.client.ListAggs(ctx, params)

	bars := []types.Bar{}

	for iter.Next() {
		agg := iter.Item()
		bars = append(bars, types.Bar{
			Date:   time.Time(agg.Timestamp),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if iter.Err() != nil {
		return nil, errors.Wrapf(errors.ErrCodeBarFetchFailed, iter.Err(),
			"failed to fetch daily bars for %s", symbol)
	}

	return bars, nil
}
