// Package report сводит ряды сигналов и портфеля в итоговые показатели и
// точки входа/выхода для отображения.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skalibog/macross/internal/portfolio"
	"github.com/skalibog/macross/internal/series"
	"github.com/skalibog/macross/internal/strategy"
)

// Виды отметок
const (
	KindEntry = "ВХОД"
	KindExit  = "ВЫХОД"
)

// Summary итоговые показатели прогона
type Summary struct {
	Bars             int
	Entries          int
	Exits            int
	InitialCapital   float64
	FinalTotal       float64
	TotalReturn      float64 // FinalTotal / InitialCapital - 1
	CumulativeReturn float64 // сумма доходностей с бара 1, NaN при одном баре
	MaxDrawdown      float64 // наибольшее падение Total от максимума, доля
}

// Marker бар входа или выхода для отметки на графике
type Marker struct {
	Bar              int
	Time             time.Time
	Kind             string
	Price            float64 // цена открытия, по которой прошла сделка
	ShortAvg         float64
	CumulativeReturn float64
}

// Summarize считает итоговые показатели
func Summarize(sig *strategy.Signals, pf *portfolio.Series, initialCapital float64) Summary {
	s := Summary{
		Bars:             pf.Len(),
		Entries:          len(sig.Entries()),
		Exits:            len(sig.Exits()),
		InitialCapital:   initialCapital,
		CumulativeReturn: math.NaN(),
	}
	if s.Bars == 0 {
		return s
	}

	s.FinalTotal = pf.Total[s.Bars-1]
	s.TotalReturn = s.FinalTotal/initialCapital - 1

	cum := pf.CumulativeReturns()
	s.CumulativeReturn = cum[len(cum)-1]

	peak := pf.Total[0]
	for _, total := range pf.Total {
		if total > peak {
			peak = total
		}
		if peak > 0 {
			if dd := (peak - total) / peak; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}

	return s
}

// Markers возвращает входы и выходы в порядке времени
func Markers(sig *strategy.Signals, prices series.Prices, pf *portfolio.Series) []Marker {
	cum := pf.CumulativeReturns()

	var markers []Marker
	for i, t := range sig.Transition {
		var kind string
		switch t {
		case 1:
			kind = KindEntry
		case -1:
			kind = KindExit
		default:
			continue
		}
		markers = append(markers, Marker{
			Bar:              i,
			Time:             sig.Index[i],
			Kind:             kind,
			Price:            prices.Open[i],
			ShortAvg:         sig.ShortAvg[i],
			CumulativeReturn: cum[i],
		})
	}
	return markers
}

// Money форматирует денежную сумму с двумя знаками
func Money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "н/д"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Percent форматирует долю как проценты с двумя знаками
func Percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "н/д"
	}
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// Render текстовый отчет для вывода без терминального интерфейса
func Render(title string, s Summary, markers []Marker) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "  Баров:               %d\n", s.Bars)
	fmt.Fprintf(&b, "  Входов / выходов:    %d / %d\n", s.Entries, s.Exits)
	fmt.Fprintf(&b, "  Начальный капитал:   %s\n", Money(s.InitialCapital))
	fmt.Fprintf(&b, "  Итоговый капитал:    %s\n", Money(s.FinalTotal))
	fmt.Fprintf(&b, "  Доходность:          %s\n", Percent(s.TotalReturn))
	fmt.Fprintf(&b, "  Сумма доходностей:   %s\n", Percent(s.CumulativeReturn))
	fmt.Fprintf(&b, "  Макс. просадка:      %s\n", Percent(s.MaxDrawdown))

	if len(markers) > 0 {
		b.WriteString("  Сделки:\n")
		for _, m := range markers {
			fmt.Fprintf(&b, "    %s  %-5s  цена %s  накоплено %s\n",
				m.Time.Format("2006-01-02 15:04"), m.Kind, Money(m.Price), Percent(m.CumulativeReturn))
		}
	}

	return b.String()
}
