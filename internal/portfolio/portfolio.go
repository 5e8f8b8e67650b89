package portfolio

import (
	"errors"
	"fmt"
	"math"

	"github.com/skalibog/macross/internal/series"
	"github.com/skalibog/macross/internal/strategy"
)

// DefaultUnitSize количество единиц инструмента в длинной позиции
const DefaultUnitSize = 1000.0

var (
	// ErrInvalidCapital начальный капитал не положителен
	ErrInvalidCapital = errors.New("начальный капитал должен быть положительным")
	// ErrMisalignedSeries ряды цен и сигналов имеют разные индексы
	ErrMisalignedSeries = series.ErrMisaligned
)

// Sizer политика размера позиции для состояния сигнала
type Sizer interface {
	QuantityForState(state int) float64
}

// FixedSize держит фиксированное количество единиц в позиции
type FixedSize float64

// QuantityForState возвращает state * размер
func (f FixedSize) QuantityForState(state int) float64 {
	return float64(state) * float64(f)
}

// Series результат бэктеста, выровненный по индексу цен
type Series struct {
	Index    series.Index
	Quantity []float64
	Holdings []float64
	Cash     []float64
	Total    []float64
	Returns  []float64 // Returns[0] не определен (NaN)
}

// Len возвращает количество баров
func (s *Series) Len() int {
	return len(s.Index)
}

// CumulativeReturns накопленная сумма доходностей начиная с бара 1.
// Нулевой бар остается неопределенным.
func (s *Series) CumulativeReturns() []float64 {
	out := series.NaNs(len(s.Returns))
	sum := 0.0
	for i := 1; i < len(s.Returns); i++ {
		sum += s.Returns[i]
		out[i] = sum
	}
	return out
}

// Simulator моделирует денежный поток портфеля, следующего за сигналом.
// Сделки исполняются по цене открытия бара без комиссий.
type Simulator struct {
	initialCapital float64
	sizer          Sizer
}

// NewSimulator создает симулятор; nil sizer означает FixedSize(DefaultUnitSize)
func NewSimulator(initialCapital float64, sizer Sizer) (*Simulator, error) {
	if !(initialCapital > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapital, initialCapital)
	}
	if sizer == nil {
		sizer = FixedSize(DefaultUnitSize)
	}
	return &Simulator{
		initialCapital: initialCapital,
		sizer:          sizer,
	}, nil
}

// InitialCapital возвращает начальный капитал
func (s *Simulator) InitialCapital() float64 {
	return s.initialCapital
}

// Trades переводит состояние сигнала в количество единиц на каждом баре
func (s *Simulator) Trades(signals *strategy.Signals) []float64 {
	quantity := make([]float64, len(signals.State))
	for i, state := range signals.State {
		quantity[i] = s.sizer.QuantityForState(state)
	}
	return quantity
}

// Backtest строит ряды наличных, позиции, капитала и доходности.
// Входные ряды не изменяются.
func (s *Simulator) Backtest(prices series.Prices, signals *strategy.Signals) (*Series, error) {
	if err := checkAligned(prices, signals); err != nil {
		return nil, err
	}

	n := prices.Len()
	out := &Series{
		Index:    prices.Index,
		Quantity: s.Trades(signals),
		Holdings: make([]float64, n),
		Cash:     make([]float64, n),
		Total:    make([]float64, n),
		Returns:  make([]float64, n),
	}

	// До первого бара портфель пуст, поэтому первая разница равна самой позиции
	spent := 0.0
	prevQty := 0.0
	for i := 0; i < n; i++ {
		qty := out.Quantity[i]
		spent += (qty - prevQty) * prices.Open[i]
		prevQty = qty

		out.Holdings[i] = qty * prices.Open[i]
		out.Cash[i] = s.initialCapital - spent
		out.Total[i] = out.Cash[i] + out.Holdings[i]

		if i == 0 {
			out.Returns[i] = math.NaN()
		} else {
			out.Returns[i] = out.Total[i]/out.Total[i-1] - 1
		}
	}

	return out, nil
}

func checkAligned(prices series.Prices, signals *strategy.Signals) error {
	if signals == nil {
		return fmt.Errorf("%w: нет сигналов", ErrMisalignedSeries)
	}
	if !prices.Aligned() {
		return fmt.Errorf("%w: колонки цен не совпадают с индексом", ErrMisalignedSeries)
	}
	if len(signals.State) != signals.Len() {
		return fmt.Errorf("%w: колонки сигналов не совпадают с индексом", ErrMisalignedSeries)
	}
	if !prices.Index.Equal(signals.Index) {
		return fmt.Errorf("%w: %d баров цен, %d баров сигналов", ErrMisalignedSeries, prices.Len(), signals.Len())
	}
	return nil
}
