package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/skalibog/macross/internal/series"
)

var (
	// ErrInvalidWindow окна не удовлетворяют 0 < short < long
	ErrInvalidWindow = errors.New("некорректные окна скользящих средних")
	// ErrEmptySeries во входном ряду нет ни одного бара
	ErrEmptySeries = errors.New("пустой ряд цен")
)

// Signals результат генерации сигналов, выровненный по индексу цен.
// После создания не изменяется.
type Signals struct {
	Index      series.Index
	ShortAvg   []float64 // NaN, пока окно не заполнено
	LongAvg    []float64
	State      []int // 1 - в позиции, 0 - вне позиции
	Transition []int // +1 вход, -1 выход, 0 без изменений
}

// Len возвращает количество баров
func (s *Signals) Len() int {
	return len(s.Index)
}

// Entries возвращает индексы баров входа в позицию
func (s *Signals) Entries() []int {
	return s.barsWith(1)
}

// Exits возвращает индексы баров выхода из позиции
func (s *Signals) Exits() []int {
	return s.barsWith(-1)
}

func (s *Signals) barsWith(transition int) []int {
	var idx []int
	for i, t := range s.Transition {
		if t == transition {
			idx = append(idx, i)
		}
	}
	return idx
}

// MACross стратегия пересечения двух простых скользящих средних
type MACross struct {
	shortWindow int
	longWindow  int
}

// NewMACross создает стратегию, проверяя окна
func NewMACross(shortWindow, longWindow int) (*MACross, error) {
	if shortWindow <= 0 || longWindow <= shortWindow {
		return nil, fmt.Errorf("%w: short=%d long=%d", ErrInvalidWindow, shortWindow, longWindow)
	}
	return &MACross{
		shortWindow: shortWindow,
		longWindow:  longWindow,
	}, nil
}

// ShortWindow возвращает длину короткого окна
func (m *MACross) ShortWindow() int {
	return m.shortWindow
}

// LongWindow возвращает длину длинного окна
func (m *MACross) LongWindow() int {
	return m.longWindow
}

// GenerateSignals рассчитывает средние, состояние позиции и переходы.
// Входной ряд не изменяется.
func (m *MACross) GenerateSignals(prices series.Prices) (*Signals, error) {
	n := prices.Len()
	if n == 0 {
		return nil, ErrEmptySeries
	}
	if len(prices.Close) != n {
		return nil, fmt.Errorf("%w: %d цен закрытия на %d баров", series.ErrMisaligned, len(prices.Close), n)
	}

	signals := &Signals{
		Index:      prices.Index,
		ShortAvg:   rollingMean(prices.Close, m.shortWindow),
		LongAvg:    rollingMean(prices.Close, m.longWindow),
		State:      make([]int, n),
		Transition: make([]int, n),
	}

	// До заполнения короткого окна правило не применяется
	for i := m.shortWindow; i < n; i++ {
		if signals.ShortAvg[i] > signals.LongAvg[i] {
			signals.State[i] = 1
		}
	}

	for i := 1; i < n; i++ {
		signals.Transition[i] = signals.State[i] - signals.State[i-1]
	}

	return signals, nil
}

// GenerateSignals сокращение для разового расчета без создания стратегии
func GenerateSignals(prices series.Prices, shortWindow, longWindow int) (*Signals, error) {
	m, err := NewMACross(shortWindow, longWindow)
	if err != nil {
		return nil, err
	}
	return m.GenerateSignals(prices)
}

// rollingMean простая скользящая средняя; первые window-1 значений - NaN.
// Окно из одинаковых значений дает ровно это значение, без ошибки
// накопленной суммы talib.
func rollingMean(values []float64, window int) []float64 {
	if len(values) < window {
		// talib выходит за границы массива на коротких рядах
		return series.NaNs(len(values))
	}

	out := talib.Sma(values, window)
	for i := 0; i < window-1; i++ {
		out[i] = math.NaN()
	}

	same := 0
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			same++
		} else {
			same = 1
		}
		if same >= window {
			out[i] = v
		}
	}
	return out
}
