// Package viewer implements the recorded-history browser TUI with time
// scrubbing, day navigation and per-metric sparkline windows.
package viewer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/chart"
	"github.com/luki/farmdash/internal/history"
	"github.com/luki/farmdash/internal/reading"
	"github.com/luki/farmdash/internal/store"
)

// ErrNoHistory is returned by Run when the data dir holds no recordings.
var ErrNoHistory = errors.New("no recorded history")

// Run launches the viewer over the CSV files in dir.
func Run(dir string, th alert.Thresholds) error {
	days, err := store.ListDays(dir)
	if err != nil || len(days) == 0 {
		return fmt.Errorf("%w in %s", ErrNoHistory, dir)
	}

	p := tea.NewProgram(
		New(dir, days, th),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	return err
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("22")
	colorTitleFg  = lipgloss.Color("156")
	colorBorder   = lipgloss.Color("65")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorAccent   = lipgloss.Color("214")
	colorCrit     = lipgloss.Color("196")
)

// ── Model ────────────────────────────────────────────────────────────

// Model is the viewer state. Build it with New.
type Model struct {
	dir    string
	th     alert.Thresholds
	days   []string // newest first
	dayIdx int
	rows   []store.Row
	cursor int
	scroll int
	width  int
	height int
	err    error

	timeSlots []time.Time                        // unique reading times, sorted
	series    map[reading.Metric][]history.Point // per metric, sorted
	byTime    map[int64]reading.Reading          // reading at each slot
}

// New loads the newest day.
func New(dir string, days []string, th alert.Thresholds) Model {
	m := Model{dir: dir, days: days, th: th}
	m.loadDay()
	return m
}

func (m *Model) loadDay() {
	rows, err := store.LoadDay(m.dir, m.days[m.dayIdx])
	m.err = err
	m.rows = rows
	m.scroll = 0
	m.cursor = 0

	m.series = make(map[reading.Metric][]history.Point)
	m.byTime = make(map[int64]reading.Reading)
	for _, row := range rows {
		r := row.Reading
		m.byTime[r.Timestamp.Unix()] = r
	}

	m.timeSlots = m.timeSlots[:0]
	for _, r := range m.byTime {
		m.timeSlots = append(m.timeSlots, r.Timestamp)
	}
	sort.Slice(m.timeSlots, func(i, j int) bool { return m.timeSlots[i].Before(m.timeSlots[j]) })

	for _, t := range m.timeSlots {
		r := m.byTime[t.Unix()]
		for _, mt := range reading.Metrics {
			if v := r.Value(mt); !math.IsNaN(v) {
				m.series[mt] = append(m.series[mt], history.Point{Value: v, Time: t})
			}
		}
	}

	if len(m.timeSlots) > 0 {
		m.cursor = len(m.timeSlots) - 1
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "left", "h":
			if m.cursor > 0 {
				m.cursor--
			}
		case "right", "l":
			if m.cursor < len(m.timeSlots)-1 {
				m.cursor++
			}
		case "shift+left", "H":
			m.cursor = max(m.cursor-10, 0)
		case "shift+right", "L":
			m.cursor = max(min(m.cursor+10, len(m.timeSlots)-1), 0)
		case "home":
			m.cursor = 0
		case "end":
			if len(m.timeSlots) > 0 {
				m.cursor = len(m.timeSlots) - 1
			}

		case "[":
			if m.dayIdx < len(m.days)-1 {
				m.dayIdx++
				m.loadDay()
			}
		case "]":
			if m.dayIdx > 0 {
				m.dayIdx--
				m.loadDay()
			}

		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}

	contentWidth := max(m.width-2, 40)

	var sections []string
	sections = append(sections, m.renderTitle(contentWidth))

	if m.err != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("ERROR: %v", m.err)))
	}

	if len(m.timeSlots) == 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(2, 0).
			Align(lipgloss.Center).
			Width(contentWidth).
			Render("No data for this day."))
	} else {
		sections = append(sections, m.renderCursorInfo(contentWidth))
		sections = append(sections, m.renderPanel(contentWidth))
	}

	sections = append(sections, m.renderFooter(contentWidth))

	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, sections...), "\n")
	visible := max(m.height, 5)
	scroll := min(m.scroll, max(len(lines)-visible, 0))
	end := min(scroll+visible, len(lines))
	return strings.Join(lines[scroll:end], "\n")
}

func (m Model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("FARMDASH HISTORY")

	dayText := lipgloss.NewStyle().
		Foreground(colorAccent).
		Bold(true).
		Render(m.days[m.dayIdx])

	nav := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  [ %d/%d ]", m.dayIdx+1, len(m.days)))

	dataInfo := ""
	if len(m.timeSlots) > 0 {
		first := m.timeSlots[0].Local().Format("15:04:05")
		last := m.timeSlots[len(m.timeSlots)-1].Local().Format("15:04:05")
		dataInfo = lipgloss.NewStyle().
			Foreground(colorDim).
			Render(fmt.Sprintf("  %s - %s  (%d readings)", first, last, len(m.timeSlots)))
	}

	right := dayText + nav + dataInfo
	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(right)-4, 1)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderCursorInfo(width int) string {
	if m.cursor < 0 || m.cursor >= len(m.timeSlots) {
		return ""
	}

	t := m.timeSlots[m.cursor]
	r := m.byTime[t.Unix()]

	ts := lipgloss.NewStyle().
		Foreground(colorAccent).
		Bold(true).
		Render(t.Local().Format("15:04:05"))

	pos := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  %d/%d", m.cursor+1, len(m.timeSlots)))

	status := lipgloss.NewStyle().Foreground(chart.ColorOk).Render(r.Prediction.Label())
	if r.Prediction.IrrigationNeeded() {
		status = lipgloss.NewStyle().Foreground(colorCrit).Bold(true).Render(r.Prediction.Label())
	}
	device := lipgloss.NewStyle().Foreground(colorDim).Render("  " + r.DeviceID + "  ")

	scrubber := m.renderScrubber(max(width-60, 10))

	return lipgloss.NewStyle().
		Padding(0, 1).
		Render("  " + ts + pos + device + status + "  " + scrubber)
}

func (m Model) renderScrubber(width int) string {
	if len(m.timeSlots) == 0 || width <= 0 {
		return ""
	}

	pos := 0
	if len(m.timeSlots) > 1 {
		pos = m.cursor * (width - 1) / (len(m.timeSlots) - 1)
	}
	pos = min(pos, width-1)

	dimS := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	curS := lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString(curS.Render("◆"))
			continue
		}
		slot := 0
		if len(m.timeSlots) > 1 && width > 1 {
			slot = i * (len(m.timeSlots) - 1) / (width - 1)
		}
		if slot > 0 && m.timeSlots[slot].Hour() != m.timeSlots[slot-1].Hour() {
			sb.WriteString(tickS.Render("│"))
			continue
		}
		sb.WriteString(dimS.Render("─"))
	}
	return sb.String()
}

func (m Model) renderPanel(totalWidth int) string {
	if m.cursor < 0 || m.cursor >= len(m.timeSlots) {
		return ""
	}
	cursorTime := m.timeSlots[m.cursor]

	innerWidth := max(totalWidth-4, 30)
	chartWidth := min(max(innerWidth-64, 15), 140)

	labelW := 16
	valW := 10

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var rows []string
	colLabel := lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Width(labelW).Render("metric")
	colVal := lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Width(valW).Align(lipgloss.Right).Render("value")
	colHist := lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(strings.Repeat(" ", chartWidth/2-3) + "history")
	rows = append(rows, colLabel+" "+colVal+"  "+colHist)
	rows = append(rows, lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(strings.Repeat("─", innerWidth)))

	for _, mt := range reading.Metrics {
		pts := m.series[mt]
		if len(pts) == 0 {
			continue
		}

		cur := valueAt(pts, cursorTime)
		b := bufferOf(pts)
		lo, hi := chart.Range(mt, b, m.th)
		window := sparkWindow(pts, cursorTime, chartWidth)

		label := lipgloss.NewStyle().
			Foreground(colorLabel).
			Bold(true).
			Width(labelW).
			Render(mt.Label())
		val := lipgloss.NewStyle().
			Width(valW).
			Align(lipgloss.Right).
			Render(chart.RenderValue(mt, cur, m.th))
		spark := frameL + chart.RenderSparklinePoints(window, chartWidth, lo, hi, mt, m.th) + frameR

		stats := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%7.1f", b.Avg())) +
			dimS.Render(" lo") + valS.Render(fmt.Sprintf("%7.1f", b.Min)) +
			dimS.Render(" pk") + valS.Render(fmt.Sprintf("%7.1f", b.Peak))

		var limitTag string
		if limit, upper, ok := alert.Limit(mt, m.th); ok {
			op := "<"
			if upper {
				op = ">"
			}
			limitTag = " " + lipgloss.NewStyle().Foreground(chart.ColorNear).Render(fmt.Sprintf("%s%.0f", op, limit))
		}

		rows = append(rows, label+" "+val+" "+spark+stats+limitTag)

		if timeline := chart.RenderTimeline(window, chartWidth); strings.TrimSpace(timeline) != "" {
			rows = append(rows, strings.Repeat(" ", labelW+valW+2)+" "+timeline)
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  h/l") + keyS.Render(":scrub") +
		dimS.Render("  H/L") + keyS.Render(":skip 10") +
		dimS.Render("  home/end") + keyS.Render(":jump") +
		dimS.Render("  [/]") + keyS.Render(":day") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}

// ── Helpers ──────────────────────────────────────────────────────────

// valueAt returns the value of the point closest to t. pts is sorted.
func valueAt(pts []history.Point, t time.Time) float64 {
	if len(pts) == 0 {
		return math.NaN()
	}
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Time.Before(t) })
	switch {
	case i == 0:
		return pts[0].Value
	case i == len(pts):
		return pts[len(pts)-1].Value
	case pts[i].Time.Sub(t) < t.Sub(pts[i-1].Time):
		return pts[i].Value
	}
	return pts[i-1].Value
}

// sparkWindow returns up to width points ending at the cursor time.
func sparkWindow(pts []history.Point, cursor time.Time, width int) []history.Point {
	end := sort.Search(len(pts), func(i int) bool { return pts[i].Time.After(cursor) })
	start := max(end-width, 0)
	return pts[start:end]
}

func bufferOf(pts []history.Point) *history.Buffer {
	b := history.NewBuffer(len(pts))
	for _, p := range pts {
		b.Push(p.Value, p.Time)
	}
	return b
}
