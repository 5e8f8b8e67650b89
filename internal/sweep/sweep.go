// Package sweep прогоняет бэктест по сетке окон параллельно.
package sweep

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/macross/internal/backtest"
	"github.com/skalibog/macross/internal/config"
	"github.com/skalibog/macross/internal/report"
	"github.com/skalibog/macross/internal/series"
	"github.com/skalibog/macross/pkg/logger"
)

// Pair пара окон скользящих средних
type Pair struct {
	Short int
	Long  int
}

// Result итог одного прогона сетки
type Result struct {
	Pair    Pair
	Summary report.Summary
}

// Grid строит пары окон из диапазонов, пропуская пары с long <= short
func Grid(cfg config.SweepConfig) []Pair {
	shortStep, longStep := max(cfg.ShortStep, 1), max(cfg.LongStep, 1)

	var pairs []Pair
	for short := cfg.ShortFrom; short <= cfg.ShortTo; short += shortStep {
		for long := cfg.LongFrom; long <= cfg.LongTo; long += longStep {
			if long <= short {
				continue
			}
			pairs = append(pairs, Pair{Short: short, Long: long})
		}
	}
	return pairs
}

// Run выполняет бэктесты по всем парам не более чем в workers горутинах.
// Ряд цен только читается; результаты возвращаются в порядке сетки.
func Run(ctx context.Context, prices series.Prices, grid []Pair, base backtest.Params, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = 1
	}

	results := make([]Result, len(grid))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, pair := range grid {
		i, pair := i, pair
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			params := base
			params.ShortWindow = pair.Short
			params.LongWindow = pair.Long

			res, err := backtest.Execute(prices, params)
			if err != nil {
				return fmt.Errorf("окна %d/%d: %w", pair.Short, pair.Long, err)
			}

			results[i] = Result{Pair: pair, Summary: res.Summary}
			logger.Debug("Прогон сетки завершен",
				zap.Int("short_window", pair.Short),
				zap.Int("long_window", pair.Long),
				zap.Float64("total_return", res.Summary.TotalReturn))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("Перебор окон завершен", zap.Int("runs", len(grid)), zap.Int("workers", workers))
	return results, nil
}

// Best возвращает прогон с наибольшей итоговой доходностью; ok=false для пустого набора.
// Если ни у одного прогона доходность не определена, возвращается первый.
func Best(results []Result) (best Result, ok bool) {
	if len(results) == 0 {
		return Result{}, false
	}

	best = results[0]
	bestReturn := math.Inf(-1)
	for _, r := range results {
		if r.Summary.TotalReturn > bestReturn {
			best, bestReturn = r, r.Summary.TotalReturn
		}
	}
	return best, true
}
