package marketdata

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/pkg/errors"
)

// DuckDBProvider serves daily bars from a pre-ingested local DuckDB file.
// It serves every market, which makes it the provider for TASE symbols
// whose bars arrive through a separate ingest job rather than a live API.
type DuckDBProvider struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

// NewDuckDBProvider opens the bar database at path.
func NewDuckDBProvider(path string) (*DuckDBProvider, error) {
	if path == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "duckdb path is required")
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to open bar database %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to connect to bar database %s", path)
	}

	return &DuckDBProvider{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Close releases the database handle.
func (p *DuckDBProvider) Close() error {
	return p.db.Close()
}

// Name implements Provider.
func (p *DuckDBProvider) Name() string {
	return string(ProviderDuckDB)
}

// SupportsMarket implements Provider. Local bars can exist for any market.
func (p *DuckDBProvider) SupportsMarket(market types.Market) bool {
	return true
}

// GetDailyBars implements Provider.
func (p *DuckDBProvider) GetDailyBars(ctx context.Context, symbol string, market types.Market, start, end time.Time) ([]types.Bar, error) {
	query := p.sq.
		Select("date", "open", "high", "low", "close", "volume").
		From("bars").
		Where("symbol = ? AND market = ? AND date >= ? AND date <= ?",
			symbol, string(market), start, end).
		OrderBy("date ASC").
		RunWith(p.db)

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeBarFetchFailed, err,
			"failed to read daily bars for %s", symbol)
	}
	defer rows.Close()

	bars := []types.Bar{}

	for rows.Next() {
		var bar types.Bar

		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeBarParseFailed, err,
				"failed to scan bar for %s", symbol)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeBarFetchFailed, err,
			"failed to read daily bars for %s", symbol)
	}

	return bars, nil
}
