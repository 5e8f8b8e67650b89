package ui

import (
	"fmt"
	"math"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skalibog/macross/internal/backtest"
	"github.com/skalibog/macross/internal/config"
	"github.com/skalibog/macross/internal/report"
	"github.com/skalibog/macross/internal/sweep"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#222222"))
	footerStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// Символы спарклайна кривой доходности
var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// maxSweepRows сколько лучших прогонов сетки показывать
const maxSweepRows = 10

// Model модель bubbletea для просмотра результата бэктеста
type Model struct {
	result   *backtest.Result
	sweep    []sweep.Result
	pageSize int
	selected int
	offset   int
	width    int
	height   int
}

// NewModel создает модель просмотра; sweepResults может быть пустым
func NewModel(cfg config.UIConfig, result *backtest.Result, sweepResults []sweep.Result) Model {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 15
	}
	return Model{
		result:   result,
		sweep:    sweepResults,
		pageSize: pageSize,
		width:    120,
		height:   40,
	}
}

// Run запускает интерфейс и блокируется до выхода пользователя
func Run(m Model) error {
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

// Selected индекс выбранной отметки
func (m Model) Selected() int {
	return m.selected
}

// Методы для bubbletea
func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			m.moveTo(m.selected - 1)
		case "down", "j":
			m.moveTo(m.selected + 1)
		case "pgup":
			m.moveTo(m.selected - m.pageSize)
		case "pgdown":
			m.moveTo(m.selected + m.pageSize)
		case "home", "g":
			m.moveTo(0)
		case "end", "G":
			m.moveTo(len(m.result.Markers) - 1)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// moveTo перемещает курсор с прокруткой окна отметок
func (m *Model) moveTo(i int) {
	n := len(m.result.Markers)
	if n == 0 {
		return
	}
	m.selected = max(0, min(n-1, i))

	if m.selected < m.offset {
		m.offset = m.selected
	}
	if m.selected >= m.offset+m.pageSize {
		m.offset = m.selected - m.pageSize + 1
	}
}

func (m Model) View() string {
	r := m.result
	title := titleStyle.Render(fmt.Sprintf("MACROSS - %s %s, окна %d/%d", r.Symbol, r.Interval, r.ShortWindow, r.LongWindow))

	sections := []string{
		title,
		renderSummary(r.Summary),
		renderEquity(r.Portfolio.CumulativeReturns(), m.width-10),
		m.renderMarkers(),
	}
	if len(m.sweep) > 0 {
		sections = append(sections, renderSweep(m.sweep))
	}
	sections = append(sections, footerStyle.Render("Клавиши: ↑/↓ - навигация, PgUp/PgDn - страница, Q - выход"))

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func renderSummary(s report.Summary) string {
	returnStyle := lipgloss.NewStyle().Foreground(successColor)
	if s.TotalReturn < 0 {
		returnStyle = lipgloss.NewStyle().Foreground(errorColor)
	}

	content := strings.Builder{}
	fmt.Fprintf(&content, "  Баров: %d   Входов: %d   Выходов: %d\n", s.Bars, s.Entries, s.Exits)
	fmt.Fprintf(&content, "  Капитал: %s -> %s   Доходность: %s\n",
		report.Money(s.InitialCapital), report.Money(s.FinalTotal), returnStyle.Render(report.Percent(s.TotalReturn)))
	fmt.Fprintf(&content, "  Сумма доходностей: %s   Макс. просадка: %s",
		report.Percent(s.CumulativeReturn), report.Percent(s.MaxDrawdown))

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("ИТОГИ"),
		content.String(),
	))
}

func renderEquity(cumulative []float64, width int) string {
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("КРИВАЯ ДОХОДНОСТИ"),
		"  "+Sparkline(cumulative, width),
	))
}

func (m Model) renderMarkers() string {
	markers := m.result.Markers
	content := strings.Builder{}

	if len(markers) == 0 {
		content.WriteString("  Сделок нет\n")
	}

	end := min(len(markers), m.offset+m.pageSize)
	for i := m.offset; i < end; i++ {
		mk := markers[i]

		kindStyle := lipgloss.NewStyle().Foreground(successColor)
		if mk.Kind == report.KindExit {
			kindStyle = lipgloss.NewStyle().Foreground(errorColor)
		}

		line := fmt.Sprintf("  %s  %s  цена %s  SMA %s  накоплено %s",
			mk.Time.Format("2006-01-02 15:04"),
			kindStyle.Render(fmt.Sprintf("%-5s", mk.Kind)),
			report.Money(mk.Price),
			report.Money(mk.ShortAvg),
			report.Percent(mk.CumulativeReturn))

		// Выделяем выбранную строку
		if i == m.selected {
			line = selectedStyle.Render("> " + line[2:])
		}
		content.WriteString(line + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(fmt.Sprintf("СДЕЛКИ (%d)", len(markers))),
		content.String(),
	))
}

func renderSweep(results []sweep.Result) string {
	best, _ := sweep.Best(results)

	content := strings.Builder{}
	for i, r := range topByReturn(results, maxSweepRows) {
		style := lipgloss.NewStyle()
		if r.Pair == best.Pair {
			style = style.Foreground(warningColor).Bold(true)
		}
		line := fmt.Sprintf("  %2d. %3d/%-4d доходность %10s  просадка %8s  сделок %d",
			i+1, r.Pair.Short, r.Pair.Long,
			report.Percent(r.Summary.TotalReturn), report.Percent(r.Summary.MaxDrawdown), r.Summary.Entries)
		content.WriteString(style.Render(line) + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(fmt.Sprintf("ПЕРЕБОР ОКОН (%d)", len(results))),
		content.String(),
	))
}

// topByReturn первые n прогонов по убыванию доходности, без изменения исходного среза
func topByReturn(results []sweep.Result, n int) []sweep.Result {
	sorted := append([]sweep.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Summary.TotalReturn > sorted[j].Summary.TotalReturn
	})
	return sorted[:min(n, len(sorted))]
}

// Sparkline сжимает ряд до width символов; неопределенные значения пропускаются
func Sparkline(values []float64, width int) string {
	var defined []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 || width <= 0 {
		return ""
	}

	// Берем последнее значение каждого отрезка
	if len(defined) > width {
		step := float64(len(defined)) / float64(width)
		sampled := make([]float64, width)
		for i := range sampled {
			sampled[i] = defined[min(len(defined)-1, int(float64(i+1)*step)-1)]
		}
		defined = sampled
	}

	lo, hi := defined[0], defined[0]
	for _, v := range defined {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var b strings.Builder
	for _, v := range defined {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}
