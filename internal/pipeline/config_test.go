package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quantlens/eod-engine/pkg/errors"
	"github.com/quantlens/eod-engine/pkg/marketdata"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite

	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func (suite *ConfigTestSuite) writeConfig(content string) string {
	path := filepath.Join(suite.dir, "pipeline.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (suite *ConfigTestSuite) TestLoadConfigAppliesWorkerDefault() {
	path := suite.writeConfig(`
database_path: engine.db
market: US
portfolios:
  - main
market_data:
  type: duckdb
  duckdb_path: engine.db
stop_loss:
  default_stop_percent: 0.10
  atr_multiplier: 2.0
  min_stop_percent: 0.05
  max_stop_percent: 0.20
`)

	config, err := LoadConfig(path)
	suite.Require().NoError(err)
	suite.Equal(DefaultWorkers, config.Workers)
	suite.Equal("US", config.Market)
	suite.Equal(marketdata.ProviderDuckDB, config.MarketData.Type)
	suite.Equal([]string{"main"}, config.Portfolios)
}

func (suite *ConfigTestSuite) TestLoadConfigMissingFile() {
	_, err := LoadConfig(filepath.Join(suite.dir, "nope.yaml"))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsUnknownMarket() {
	path := suite.writeConfig(`
database_path: engine.db
market: LSE
market_data:
  type: duckdb
  duckdb_path: engine.db
stop_loss:
  default_stop_percent: 0.10
  atr_multiplier: 2.0
  min_stop_percent: 0.05
  max_stop_percent: 0.20
`)

	_, err := LoadConfig(path)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsPolygonWithoutKey() {
	path := suite.writeConfig(`
database_path: engine.db
market: US
market_data:
  type: polygon
stop_loss:
  default_stop_percent: 0.10
  atr_multiplier: 2.0
  min_stop_percent: 0.05
  max_stop_percent: 0.20
`)

	_, err := LoadConfig(path)
	suite.Require().Error(err)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsInvertedStopBounds() {
	path := suite.writeConfig(`
database_path: engine.db
market: US
market_data:
  type: duckdb
  duckdb_path: engine.db
stop_loss:
  default_stop_percent: 0.10
  atr_multiplier: 2.0
  min_stop_percent: 0.25
  max_stop_percent: 0.20
`)

	_, err := LoadConfig(path)
	suite.Require().Error(err)
}

func (suite *ConfigTestSuite) TestDefaultConfigValidates() {
	suite.NoError(DefaultConfig().Validate())
}

func (suite *ConfigTestSuite) TestSchemaGeneration() {
	schema, err := DefaultConfig().GenerateSchemaJSON()
	suite.Require().NoError(err)
	suite.Contains(schema, "database_path")
	suite.Contains(schema, "stop_loss")
}
