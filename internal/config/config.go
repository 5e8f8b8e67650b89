package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/skalibog/macross/pkg/logger"
)

// Типы источников цен
const (
	SourceCSV      = "csv"
	SourceInfluxDB = "influxdb"
	SourceBinance  = "binance"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Strategy  StrategyConfig  `yaml:"strategy"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Source    SourceConfig    `yaml:"source"`
	Binance   BinanceConfig   `yaml:"binance"`
	Storage   StorageConfig   `yaml:"storage"`
	Sweep     SweepConfig     `yaml:"sweep"`
	UI        UIConfig        `yaml:"ui"`
	Log       LogConfig       `yaml:"log"`
}

// StrategyConfig окна скользящих средних
type StrategyConfig struct {
	ShortWindow int `yaml:"short_window"`
	LongWindow  int `yaml:"long_window"`
}

// PortfolioConfig параметры моделирования портфеля
type PortfolioConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	UnitSize       float64 `yaml:"unit_size"`
}

// SourceConfig откуда брать цены
type SourceConfig struct {
	Type     string `yaml:"type"`
	Path     string `yaml:"path"`
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
	Limit    int    `yaml:"limit"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
	Futures   bool   `yaml:"futures"`
}

// StorageConfig настройки хранения данных в InfluxDB
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
	Lookback     string `yaml:"lookback"`
}

// SweepConfig перебор окон
type SweepConfig struct {
	Enabled   bool `yaml:"enabled"`
	ShortFrom int  `yaml:"short_from"`
	ShortTo   int  `yaml:"short_to"`
	ShortStep int  `yaml:"short_step"`
	LongFrom  int  `yaml:"long_from"`
	LongTo    int  `yaml:"long_to"`
	LongStep  int  `yaml:"long_step"`
	Workers   int  `yaml:"workers"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Enabled  bool `yaml:"enabled"`
	PageSize int  `yaml:"page_size"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"`
	Console bool   `yaml:"console"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Any("config", cfg))
	return cfg, nil
}

// Parse разбирает YAML, подставляет значения по умолчанию и проверяет результат
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults заполняет незаданные поля
func (c *Config) applyDefaults() {
	if c.Strategy.ShortWindow == 0 && c.Strategy.LongWindow == 0 {
		c.Strategy.ShortWindow = 5
		c.Strategy.LongWindow = 20
	}
	if c.Portfolio.InitialCapital == 0 {
		c.Portfolio.InitialCapital = 100000
	}
	if c.Portfolio.UnitSize == 0 {
		c.Portfolio.UnitSize = 1000
	}
	if c.Source.Type == "" {
		c.Source.Type = SourceCSV
	}
	if c.Source.Interval == "" {
		c.Source.Interval = "1d"
	}
	if c.Source.Limit == 0 {
		c.Source.Limit = 500
	}
	if c.Storage.Lookback == "" {
		c.Storage.Lookback = "-3650d"
	}
	if c.Sweep.ShortStep == 0 {
		c.Sweep.ShortStep = 1
	}
	if c.Sweep.LongStep == 0 {
		c.Sweep.LongStep = 1
	}
	if c.Sweep.Workers == 0 {
		c.Sweep.Workers = 4
	}
	if c.UI.PageSize == 0 {
		c.UI.PageSize = 15
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	if c.Strategy.ShortWindow <= 0 || c.Strategy.LongWindow <= c.Strategy.ShortWindow {
		return fmt.Errorf("strategy: требуется 0 < short_window < long_window, получено %d/%d",
			c.Strategy.ShortWindow, c.Strategy.LongWindow)
	}
	if c.Portfolio.InitialCapital <= 0 {
		return fmt.Errorf("portfolio: initial_capital должен быть положительным")
	}

	switch c.Source.Type {
	case SourceCSV:
		if c.Source.Path == "" {
			return fmt.Errorf("source: для csv требуется path")
		}
	case SourceInfluxDB, SourceBinance:
		if c.Source.Symbol == "" {
			return fmt.Errorf("source: для %s требуется symbol", c.Source.Type)
		}
	default:
		return fmt.Errorf("source: неизвестный тип %q", c.Source.Type)
	}

	if c.Source.Type == SourceInfluxDB || c.Storage.Enabled {
		if c.Storage.URL == "" || c.Storage.Bucket == "" || c.Storage.Organization == "" {
			return fmt.Errorf("storage: требуются url, organization и bucket")
		}
	}

	if c.Sweep.Enabled {
		s := c.Sweep
		if s.ShortFrom <= 0 || s.ShortTo < s.ShortFrom || s.LongFrom <= 0 || s.LongTo < s.LongFrom {
			return fmt.Errorf("sweep: некорректные диапазоны окон")
		}
		if s.ShortStep <= 0 || s.LongStep <= 0 || s.Workers <= 0 {
			return fmt.Errorf("sweep: шаги и число воркеров должны быть положительными")
		}
	}

	return nil
}

// LoggerOptions переводит настройки логирования в опции логгера
func (c LogConfig) LoggerOptions() logger.Options {
	return logger.Options{
		Level:   c.Level,
		Dir:     c.Dir,
		Console: c.Console,
	}
}
