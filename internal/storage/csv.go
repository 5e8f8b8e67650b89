package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skalibog/macross/pkg/models"
)

// Поддерживаемые форматы времени в CSV
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// CSVSource читает свечи OHLCV из CSV-файла с заголовком
type CSVSource struct {
	path string
}

// NewCSVSource создает источник свечей из файла
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// GetCandles читает файл целиком; symbol и interval проставляются в свечи,
// limit > 0 оставляет только последние limit строк
func (s *CSVSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия CSV: %w", err)
	}
	defer f.Close()

	candles, err := ReadCandlesCSV(f, symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// ReadCandlesCSV разбирает CSV с колонками date/time/timestamp, open, high, low, close, volume.
// Обязательны только время, open и close.
func ReadCandlesCSV(r io.Reader, symbol, interval string) ([]*models.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("пустой CSV")
		}
		return nil, fmt.Errorf("ошибка чтения заголовка CSV: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	timeCol := -1
	for _, name := range []string{"date", "time", "timestamp", "datetime"} {
		if i, ok := cols[name]; ok {
			timeCol = i
			break
		}
	}
	if timeCol < 0 {
		return nil, fmt.Errorf("в CSV нет колонки времени")
	}
	for _, name := range []string{"open", "close"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("в CSV нет колонки %s", name)
		}
	}

	var candles []*models.Candle
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения CSV: %w", err)
		}

		ts, err := parseCSVTime(record[timeCol])
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", line, err)
		}

		candle := &models.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: ts,
		}
		fields := map[string]*float64{
			"open":   &candle.Open,
			"high":   &candle.High,
			"low":    &candle.Low,
			"close":  &candle.Close,
			"volume": &candle.Volume,
		}
		for name, dst := range fields {
			i, ok := cols[name]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("строка %d, колонка %s: %w", line, name, err)
			}
			*dst = v
		}
		candle.CloseTime = candle.OpenTime.Add(getIntervalDuration(interval))

		candles = append(candles, candle)
	}

	return candles, nil
}

func parseCSVTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("не удалось разобрать время %q", value)
}
