// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/skalibog/macross/internal/backtest"
	"github.com/skalibog/macross/internal/config"
	"github.com/skalibog/macross/internal/series"
	"github.com/skalibog/macross/pkg/logger"
	"github.com/skalibog/macross/pkg/models"
)

// Имена измерений в InfluxDB
const (
	measurementCandles   = "candles"
	measurementSignals   = "signals"
	measurementPortfolio = "portfolio"
	measurementRuns      = "runs"
)

// InfluxDBStorage хранит свечи и результаты бэктестов в InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPIBlocking
	org      string
	bucket   string
	lookback string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(ctx context.Context, cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
		lookback: cfg.Lookback,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.client.Close()
}

// SaveCandles сохраняет множество свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	points := make([]*write.Point, 0, len(candles))
	for _, c := range candles {
		points = append(points, candlePoint(c))
	}

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("ошибка записи свечей: %w", err)
	}
	return nil
}

// GetCandles получает последние limit свечей в порядке возрастания времени
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	result, err := s.queryAPI.Query(ctx, candlesQuery(s.bucket, s.lookback, symbol, interval, limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}
	defer result.Close()

	// Обрабатываем результаты
	var candles []*models.Candle
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		close, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: timestamp.Add(getIntervalDuration(interval)),
		})
	}

	// Проверяем на ошибки при обработке результатов
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	logger.Debug("Загружены свечи из InfluxDB",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(candles)))

	return candles, nil
}

// SaveRun сохраняет ряды сигналов и портфеля одного прогона
func (s *InfluxDBStorage) SaveRun(ctx context.Context, run *backtest.Result) error {
	points := runPoints(run)
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("ошибка записи результатов прогона %s: %w", run.ID, err)
	}

	logger.Info("Результаты прогона сохранены",
		zap.String("run_id", run.ID),
		zap.Int("points", len(points)))
	return nil
}

// candlesQuery формирует Flux-запрос последних свечей
func candlesQuery(bucket, lookback, symbol, interval string, limit int) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: %s)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"])
			|> tail(n: %d)
	`, bucket, lookback, measurementCandles, symbol, interval, limit)
}

func candlePoint(c *models.Candle) *write.Point {
	return influxdb2.NewPoint(
		measurementCandles,
		map[string]string{
			"symbol":   c.Symbol,
			"interval": c.Interval,
		},
		map[string]interface{}{
			"open":   c.Open,
			"high":   c.High,
			"low":    c.Low,
			"close":  c.Close,
			"volume": c.Volume,
		},
		c.OpenTime,
	)
}

// runPoints переводит результат прогона в точки: по одной точке сигнала и
// портфеля на бар плюс итоговая точка прогона
func runPoints(run *backtest.Result) []*write.Point {
	tags := map[string]string{
		"symbol":       run.Symbol,
		"run_id":       run.ID,
		"short_window": strconv.Itoa(run.ShortWindow),
		"long_window":  strconv.Itoa(run.LongWindow),
	}

	sig, pf := run.Signals, run.Portfolio
	points := make([]*write.Point, 0, 2*sig.Len()+1)

	for i, ts := range sig.Index {
		signalFields := map[string]interface{}{
			"state":      sig.State[i],
			"transition": sig.Transition[i],
		}
		putDefined(signalFields, "short_avg", sig.ShortAvg[i])
		putDefined(signalFields, "long_avg", sig.LongAvg[i])
		points = append(points, influxdb2.NewPoint(measurementSignals, tags, signalFields, ts))

		portfolioFields := map[string]interface{}{
			"quantity": pf.Quantity[i],
			"holdings": pf.Holdings[i],
			"cash":     pf.Cash[i],
			"total":    pf.Total[i],
		}
		putDefined(portfolioFields, "returns", pf.Returns[i])
		points = append(points, influxdb2.NewPoint(measurementPortfolio, tags, portfolioFields, ts))
	}

	summary := run.Summary
	runFields := map[string]interface{}{
		"bars":            summary.Bars,
		"entries":         summary.Entries,
		"exits":           summary.Exits,
		"initial_capital": summary.InitialCapital,
		"final_total":     summary.FinalTotal,
		"total_return":    summary.TotalReturn,
		"max_drawdown":    summary.MaxDrawdown,
	}
	putDefined(runFields, "cumulative_return", summary.CumulativeReturn)
	points = append(points, influxdb2.NewPoint(measurementRuns, tags, runFields, run.FinishedAt))

	return points
}

// putDefined добавляет поле, только если значение определено: InfluxDB не хранит NaN
func putDefined(fields map[string]interface{}, key string, v float64) {
	if !series.Undefined(v) {
		fields[key] = v
	}
}

// getIntervalDuration конвертирует строковый интервал в duration
func getIntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// mirroredSource сохраняет в InfluxDB все свечи, полученные из другого источника
type mirroredSource struct {
	source backtest.PriceSource
	store  *InfluxDBStorage
}

// Mirror оборачивает источник так, что загруженные свечи копируются в хранилище
func (s *InfluxDBStorage) Mirror(source backtest.PriceSource) backtest.PriceSource {
	return &mirroredSource{source: source, store: s}
}

func (m *mirroredSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	candles, err := m.source.GetCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	// Ошибка записи не мешает бэктесту
	if err := m.store.SaveCandles(ctx, candles); err != nil {
		logger.Warn("Не удалось сохранить свечи в InfluxDB", zap.String("symbol", symbol), zap.Error(err))
	}
	return candles, nil
}
