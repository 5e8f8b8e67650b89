package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  type: csv
  path: data/OHLCV.csv
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Strategy.ShortWindow)
	assert.Equal(t, 20, cfg.Strategy.LongWindow)
	assert.Equal(t, 100000.0, cfg.Portfolio.InitialCapital)
	assert.Equal(t, 1000.0, cfg.Portfolio.UnitSize)
	assert.Equal(t, "1d", cfg.Source.Interval)
	assert.Equal(t, 500, cfg.Source.Limit)
	assert.Equal(t, 4, cfg.Sweep.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
strategy:
  short_window: 10
  long_window: 50
portfolio:
  initial_capital: 25000
  unit_size: 100
source:
  type: binance
  symbol: BTCUSDT
  interval: 4h
  limit: 1000
binance:
  futures: true
storage:
  enabled: true
  url: http://localhost:8086
  token: secret
  organization: org
  bucket: macross
sweep:
  enabled: true
  short_from: 2
  short_to: 10
  long_from: 20
  long_to: 60
  long_step: 10
  workers: 8
ui:
  enabled: true
log:
  level: debug
  dir: logs
`))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Strategy.ShortWindow)
	assert.Equal(t, 100.0, cfg.Portfolio.UnitSize)
	assert.Equal(t, SourceBinance, cfg.Source.Type)
	assert.True(t, cfg.Binance.Futures)
	assert.Equal(t, "macross", cfg.Storage.Bucket)
	assert.Equal(t, 1, cfg.Sweep.ShortStep)
	assert.Equal(t, 10, cfg.Sweep.LongStep)
	assert.Equal(t, "logs", cfg.Log.LoggerOptions().Dir)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"windows": `
strategy: {short_window: 20, long_window: 5}
source: {type: csv, path: a.csv}`,
		"capital": `
portfolio: {initial_capital: -1}
source: {type: csv, path: a.csv}`,
		"csv without path": `
source: {type: csv}`,
		"unknown source": `
source: {type: ftp, path: a.csv}`,
		"influx without storage": `
source: {type: influxdb, symbol: BTCUSDT}`,
		"sweep ranges": `
source: {type: csv, path: a.csv}
sweep: {enabled: true, short_from: 5, short_to: 2, long_from: 10, long_to: 20}`,
		"unknown field": `
source: {type: csv, path: a.csv}
strategy: {short: 3}`,
	}

	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, SourceCSV, cfg.Source.Type)
	assert.Equal(t, 15, cfg.UI.PageSize)
	assert.False(t, cfg.Storage.Enabled)
}
