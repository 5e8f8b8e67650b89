package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skalibog/macross/internal/portfolio"
	"github.com/skalibog/macross/internal/report"
	"github.com/skalibog/macross/internal/series"
	"github.com/skalibog/macross/internal/strategy"
	"github.com/skalibog/macross/pkg/logger"
	"github.com/skalibog/macross/pkg/models"
)

// ErrUnsortedCandles источник вернул свечи не по возрастанию времени
var ErrUnsortedCandles = errors.New("свечи не упорядочены по времени")

// PriceSource поставляет свечи по возрастанию времени
type PriceSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
}

// ResultSink сохраняет результаты прогона
type ResultSink interface {
	SaveRun(ctx context.Context, run *Result) error
}

// Params параметры одного прогона
type Params struct {
	Symbol         string
	Interval       string
	Limit          int
	ShortWindow    int
	LongWindow     int
	InitialCapital float64
	UnitSize       float64
}

// Result полный результат прогона
type Result struct {
	ID          string
	Symbol      string
	Interval    string
	ShortWindow int
	LongWindow  int
	Prices      series.Prices
	Signals     *strategy.Signals
	Portfolio   *portfolio.Series
	Summary     report.Summary
	Markers     []report.Marker
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Runner связывает источник цен, стратегию, симулятор и хранилище
type Runner struct {
	source PriceSource
	sink   ResultSink // может быть nil
	params Params
}

// NewRunner создает исполнителя бэктеста; sink может быть nil
func NewRunner(source PriceSource, sink ResultSink, params Params) *Runner {
	return &Runner{
		source: source,
		sink:   sink,
		params: params,
	}
}

// LoadPrices загружает свечи и строит выровненный ряд цен
func (r *Runner) LoadPrices(ctx context.Context) (series.Prices, error) {
	p := r.params

	candles, err := r.source.GetCandles(ctx, p.Symbol, p.Interval, p.Limit)
	if err != nil {
		return series.Prices{}, fmt.Errorf("ошибка загрузки свечей %s: %w", p.Symbol, err)
	}
	if !models.SortedUnique(candles) {
		return series.Prices{}, fmt.Errorf("%s: %w", p.Symbol, ErrUnsortedCandles)
	}

	logger.Info("Свечи загружены",
		zap.String("symbol", p.Symbol),
		zap.String("interval", p.Interval),
		zap.Int("count", len(candles)))

	return series.FromCandles(candles), nil
}

// Run загружает цены, выполняет бэктест и сохраняет результат, если задано хранилище
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	prices, err := r.LoadPrices(ctx)
	if err != nil {
		return nil, err
	}

	res, err := Execute(prices, r.params)
	if err != nil {
		return nil, err
	}

	logger.Info("Бэктест завершен",
		zap.String("run_id", res.ID),
		zap.String("symbol", res.Symbol),
		zap.Int("short_window", res.ShortWindow),
		zap.Int("long_window", res.LongWindow),
		zap.Int("entries", res.Summary.Entries),
		zap.Int("exits", res.Summary.Exits),
		zap.Float64("final_total", res.Summary.FinalTotal),
		zap.Float64("total_return", res.Summary.TotalReturn))

	if r.sink != nil {
		if err := r.sink.SaveRun(ctx, res); err != nil {
			return res, fmt.Errorf("ошибка сохранения результатов: %w", err)
		}
	}

	return res, nil
}

// Execute выполняет один бэктест на уже загруженных ценах
func Execute(prices series.Prices, p Params) (*Result, error) {
	started := time.Now()

	strat, err := strategy.NewMACross(p.ShortWindow, p.LongWindow)
	if err != nil {
		return nil, err
	}

	unit := p.UnitSize
	if unit == 0 {
		unit = portfolio.DefaultUnitSize
	}
	sim, err := portfolio.NewSimulator(p.InitialCapital, portfolio.FixedSize(unit))
	if err != nil {
		return nil, err
	}

	signals, err := strat.GenerateSignals(prices)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации сигналов: %w", err)
	}

	pf, err := sim.Backtest(prices, signals)
	if err != nil {
		return nil, fmt.Errorf("ошибка моделирования портфеля: %w", err)
	}

	return &Result{
		ID:          uuid.NewString(),
		Symbol:      p.Symbol,
		Interval:    p.Interval,
		ShortWindow: p.ShortWindow,
		LongWindow:  p.LongWindow,
		Prices:      prices,
		Signals:     signals,
		Portfolio:   pf,
		Summary:     report.Summarize(signals, pf, p.InitialCapital),
		Markers:     report.Markers(signals, prices, pf),
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}, nil
}
