package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"

	"github.com/skalibog/macross/internal/config"
	"github.com/skalibog/macross/pkg/logger"
	"github.com/skalibog/macross/pkg/models"
)

// Максимальный размер страницы свечей в одном запросе
const (
	spotPageLimit    = 1000
	futuresPageLimit = 1500
)

const (
	spotTestnetURL    = "https://testnet.binance.vision"
	futuresTestnetURL = "https://testnet.binancefuture.com"
)

// kline свеча в строковом виде, как ее отдает Binance
type kline struct {
	OpenTime  int64
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
	CloseTime int64
}

// klinesFetcher запрашивает страницу свечей, заканчивающуюся не позже endTime (0 - без ограничения)
type klinesFetcher func(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]kline, error)

// BinanceClient источник исторических свечей Binance (спот или фьючерсы)
type BinanceClient struct {
	fetch     klinesFetcher
	pageLimit int
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) *BinanceClient {
	if cfg.Futures {
		client := futures.NewClient(cfg.APIKey, cfg.APISecret)
		if cfg.Testnet {
			client.BaseURL = futuresTestnetURL
		}
		return newFuturesClient(client)
	}

	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Testnet {
		client.BaseURL = spotTestnetURL
	}
	return newSpotClient(client)
}

func newSpotClient(client *binance.Client) *BinanceClient {
	return &BinanceClient{
		pageLimit: spotPageLimit,
		fetch: func(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]kline, error) {
			svc := client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
			if endTime > 0 {
				svc = svc.EndTime(endTime)
			}
			res, err := svc.Do(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]kline, len(res))
			for i, k := range res {
				out[i] = kline{k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.CloseTime}
			}
			return out, nil
		},
	}
}

func newFuturesClient(client *futures.Client) *BinanceClient {
	return &BinanceClient{
		pageLimit: futuresPageLimit,
		fetch: func(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]kline, error) {
			svc := client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
			if endTime > 0 {
				svc = svc.EndTime(endTime)
			}
			res, err := svc.Do(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]kline, len(res))
			for i, k := range res {
				out[i] = kline{k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.CloseTime}
			}
			return out, nil
		},
	}
}

// GetCandles получает последние limit свечей, запрашивая страницы от новых к старым.
// Результат упорядочен по возрастанию времени.
func (c *BinanceClient) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	byOpenTime := make(map[int64]kline, limit)
	var endTime int64

	for len(byOpenTime) < limit {
		page := min(c.pageLimit, limit-len(byOpenTime))

		klines, err := c.fetch(ctx, symbol, interval, page, endTime)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения свечей: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		earliest := klines[0].OpenTime
		for _, k := range klines {
			byOpenTime[k.OpenTime] = k
			earliest = min(earliest, k.OpenTime)
		}

		logger.Debug("Получена страница свечей Binance",
			zap.String("symbol", symbol),
			zap.Int("count", len(klines)),
			zap.Int64("earliest", earliest))

		if len(klines) < page {
			break
		}
		endTime = earliest - 1
	}

	openTimes := make([]int64, 0, len(byOpenTime))
	for t := range byOpenTime {
		openTimes = append(openTimes, t)
	}
	sort.Slice(openTimes, func(i, j int) bool { return openTimes[i] < openTimes[j] })
	if len(openTimes) > limit {
		openTimes = openTimes[len(openTimes)-limit:]
	}

	candles := make([]*models.Candle, 0, len(openTimes))
	for _, t := range openTimes {
		candle, err := toCandle(symbol, interval, byOpenTime[t])
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// toCandle переводит строковые поля свечи в числа
func toCandle(symbol, interval string, k kline) (*models.Candle, error) {
	values := make([]float64, 5)
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора свечи %s %d: %w", symbol, k.OpenTime, err)
		}
		values[i] = v
	}

	return &models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		CloseTime: time.UnixMilli(k.CloseTime).UTC(),
	}, nil
}
