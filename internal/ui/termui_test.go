package ui

import (
	"math"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/macross/internal/backtest"
	"github.com/skalibog/macross/internal/config"
	"github.com/skalibog/macross/internal/series"
	"github.com/skalibog/macross/internal/sweep"
)

func testResult(t *testing.T, closes []float64) *backtest.Result {
	t.Helper()

	prices := series.Prices{
		Index: make(series.Index, len(closes)),
		Open:  closes,
		Close: closes,
	}
	for i := range closes {
		prices.Index[i] = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}

	res, err := backtest.Execute(prices, backtest.Params{
		Symbol:         "TEST",
		Interval:       "1d",
		ShortWindow:    2,
		LongWindow:     4,
		InitialCapital: 100000,
	})
	require.NoError(t, err)
	return res
}

// zigzag дает много пересечений средних
func zigzag(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/2)
	}
	return out
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "end":
		return tea.KeyMsg{Type: tea.KeyEnd}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewShowsSummaryAndMarkers(t *testing.T) {
	res := testResult(t, []float64{10, 10, 10, 12, 12, 12, 8, 8, 8, 8})

	view := NewModel(config.UIConfig{}, res, nil).View()

	assert.Contains(t, view, "MACROSS - TEST 1d, окна 2/4")
	assert.Contains(t, view, "ИТОГИ")
	assert.Contains(t, view, "96000.00")
	assert.Contains(t, view, "СДЕЛКИ (2)")
	assert.Contains(t, view, "ВХОД")
	assert.Contains(t, view, "ВЫХОД")
	assert.NotContains(t, view, "ПЕРЕБОР ОКОН")
}

func TestViewShowsSweep(t *testing.T) {
	res := testResult(t, zigzag(60))
	results := []sweep.Result{
		{Pair: sweep.Pair{Short: 2, Long: 4}},
		{Pair: sweep.Pair{Short: 3, Long: 9}},
	}
	results[1].Summary.TotalReturn = 0.1

	view := NewModel(config.UIConfig{}, res, results).View()
	assert.Contains(t, view, "ПЕРЕБОР ОКОН (2)")
	assert.Contains(t, view, "3/9")
}

func TestNavigation(t *testing.T) {
	res := testResult(t, zigzag(80))
	require.Greater(t, len(res.Markers), 4)

	var m tea.Model = NewModel(config.UIConfig{PageSize: 3}, res, nil)

	m, _ = m.Update(key("up"))
	assert.Equal(t, 0, m.(Model).Selected())

	for i := 0; i < 4; i++ {
		m, _ = m.Update(key("down"))
	}
	assert.Equal(t, 4, m.(Model).Selected())
	assert.Equal(t, 2, m.(Model).offset)

	m, _ = m.Update(key("end"))
	assert.Equal(t, len(res.Markers)-1, m.(Model).Selected())

	m, _ = m.Update(key("g"))
	assert.Equal(t, 0, m.(Model).Selected())
	assert.Equal(t, 0, m.(Model).offset)

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	assert.Equal(t, 80, m.(Model).width)
}

func TestQuit(t *testing.T) {
	res := testResult(t, []float64{1, 2, 3, 4, 5})

	_, cmd := NewModel(config.UIConfig{}, res, nil).Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil, 10))
	assert.Equal(t, "", Sparkline([]float64{math.NaN()}, 10))
	assert.Equal(t, "▁▁▁", Sparkline([]float64{1, 1, 1}, 10))
	assert.Equal(t, "▁█", Sparkline([]float64{math.NaN(), 0, 1}, 10))

	long := make([]float64, 500)
	for i := range long {
		long[i] = float64(i)
	}
	s := Sparkline(long, 40)
	assert.Equal(t, 40, utf8.RuneCountInString(s))
	assert.Equal(t, '█', []rune(s)[39])
}
