package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/skalibog/macross/internal/backtest"
	"github.com/skalibog/macross/internal/config"
	"github.com/skalibog/macross/internal/exchange"
	"github.com/skalibog/macross/internal/report"
	"github.com/skalibog/macross/internal/storage"
	"github.com/skalibog/macross/internal/sweep"
	"github.com/skalibog/macross/internal/ui"
	"github.com/skalibog/macross/pkg/logger"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	shortWindow := flag.Int("short", 0, "короткое окно (перекрывает конфигурацию)")
	longWindow := flag.Int("long", 0, "длинное окно (перекрывает конфигурацию)")
	withSweep := flag.Bool("sweep", false, "перебрать окна из секции sweep")
	noUI := flag.Bool("no-ui", false, "вывести отчет в stdout без интерфейса")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *shortWindow > 0 {
		cfg.Strategy.ShortWindow = *shortWindow
	}
	if *longWindow > 0 {
		cfg.Strategy.LongWindow = *longWindow
	}
	if *withSweep {
		cfg.Sweep.Enabled = true
	}
	if *noUI {
		cfg.UI.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log.LoggerOptions()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Бэктест завершился с ошибкой", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Хранилище нужно и как источник, и как приемник результатов
	var store *storage.InfluxDBStorage
	if cfg.Storage.Enabled || cfg.Source.Type == config.SourceInfluxDB {
		var err error
		store, err = storage.NewInfluxDBStorage(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("ошибка инициализации хранилища: %w", err)
		}
		defer store.Close()
	}

	var source backtest.PriceSource
	switch cfg.Source.Type {
	case config.SourceCSV:
		source = storage.NewCSVSource(cfg.Source.Path)
	case config.SourceInfluxDB:
		source = store
	case config.SourceBinance:
		source = exchange.NewBinanceClient(cfg.Binance)
		if store != nil {
			source = store.Mirror(source)
		}
	}

	var sink backtest.ResultSink
	if cfg.Storage.Enabled {
		sink = store
	}

	params := backtest.Params{
		Symbol:         symbolOf(cfg.Source),
		Interval:       cfg.Source.Interval,
		Limit:          cfg.Source.Limit,
		ShortWindow:    cfg.Strategy.ShortWindow,
		LongWindow:     cfg.Strategy.LongWindow,
		InitialCapital: cfg.Portfolio.InitialCapital,
		UnitSize:       cfg.Portfolio.UnitSize,
	}

	res, err := backtest.NewRunner(source, sink, params).Run(ctx)
	if err != nil {
		if res == nil {
			return err
		}
		// Результат посчитан, не удалось только сохранение
		logger.Warn("Результат не сохранен", zap.Error(err))
	}

	var sweepResults []sweep.Result
	if cfg.Sweep.Enabled {
		sweepResults, err = sweep.Run(ctx, res.Prices, sweep.Grid(cfg.Sweep), params, cfg.Sweep.Workers)
		if err != nil {
			return fmt.Errorf("ошибка перебора окон: %w", err)
		}
	}

	if cfg.UI.Enabled {
		return ui.Run(ui.NewModel(cfg.UI, res, sweepResults))
	}

	title := fmt.Sprintf("%s %s, окна %d/%d", res.Symbol, res.Interval, res.ShortWindow, res.LongWindow)
	fmt.Print(report.Render(title, res.Summary, res.Markers))

	if best, ok := sweep.Best(sweepResults); ok {
		fmt.Printf("\nЛучшие окна: %d/%d, доходность %s, просадка %s\n",
			best.Pair.Short, best.Pair.Long,
			report.Percent(best.Summary.TotalReturn), report.Percent(best.Summary.MaxDrawdown))
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info("Работа прервана пользователем")
	}
	return nil
}

// symbolOf для csv без явного символа берет имя файла
func symbolOf(src config.SourceConfig) string {
	if src.Symbol != "" || src.Type != config.SourceCSV {
		return src.Symbol
	}
	base := filepath.Base(src.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
