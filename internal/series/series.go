// Package series описывает выровненные временные ряды: все производные ряды
// используют тот же индекс, что и входной ряд цен.
package series

import (
	"errors"
	"math"
	"time"

	"github.com/skalibog/macross/pkg/models"
)

// ErrMisaligned колонки рядов не совпадают с индексом
var ErrMisaligned = errors.New("ряды не выровнены")

// Index упорядоченный набор меток времени
type Index []time.Time

// Len возвращает количество баров
func (ix Index) Len() int {
	return len(ix)
}

// Equal сравнивает два индекса поэлементно
func (ix Index) Equal(other Index) bool {
	if len(ix) != len(other) {
		return false
	}
	for i := range ix {
		if !ix[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Prices ряд цен открытия и закрытия одного инструмента
type Prices struct {
	Index Index
	Open  []float64
	Close []float64
}

// FromCandles строит ряд цен из свечей, сохраняя их порядок
func FromCandles(candles []*models.Candle) Prices {
	p := Prices{
		Index: make(Index, len(candles)),
		Open:  make([]float64, len(candles)),
		Close: make([]float64, len(candles)),
	}
	for i, c := range candles {
		p.Index[i] = c.OpenTime
		p.Open[i] = c.Open
		p.Close[i] = c.Close
	}
	return p
}

// Len возвращает количество баров
func (p Prices) Len() int {
	return len(p.Index)
}

// Aligned проверяет, что длины колонок совпадают с индексом
func (p Prices) Aligned() bool {
	return len(p.Open) == len(p.Index) && len(p.Close) == len(p.Index)
}

// Undefined сообщает, что значение еще не вычислено
func Undefined(v float64) bool {
	return math.IsNaN(v)
}

// NaNs возвращает ряд из n неопределенных значений
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
