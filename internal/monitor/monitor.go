// Package monitor implements the live farm dashboard TUI: metric tiles with
// sparklines, the irrigation banner, alert badges and the alert history.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/chart"
	"github.com/luki/farmdash/internal/history"
	"github.com/luki/farmdash/internal/reading"
	"github.com/luki/farmdash/internal/refresh"
)

const historySize = 600

// Placeholder is shown until the first reading arrives.
const Placeholder = "No data yet. Start the simulation to see results."

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type snapshotMsg refresh.Snapshot

// ── Model ────────────────────────────────────────────────────────────

// Options configures the monitor.
type Options struct {
	Interval    time.Duration
	Thresholds  alert.Thresholds
	HistoryRows int
	RecordDir   string // shown in the title bar when recording
}

// Model is the BubbleTea model for the live monitor.
type Model struct {
	ctx     context.Context
	r       *refresh.Refresher
	opts    Options
	history *history.Store

	snap      refresh.Snapshot
	fetched   bool
	fetching  bool
	width     int
	height    int
	scroll    int
	startTime time.Time
	paused    bool
}

// New creates the initial model. Snapshots are taken with r.Once(ctx).
func New(ctx context.Context, r *refresh.Refresher, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.HistoryRows <= 0 {
		opts.HistoryRows = alert.HistoryRows
	}
	if opts.Thresholds == (alert.Thresholds{}) {
		opts.Thresholds = alert.DefaultThresholds()
	}
	return Model{
		ctx:       ctx,
		r:         r,
		opts:      opts,
		history:   history.NewStore(historySize),
		startTime: time.Now(),
		fetching:  true, // Init starts the first fetch
	}
}

// Run starts the TUI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, r *refresh.Refresher, opts Options) error {
	p := tea.NewProgram(New(ctx, r, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// ── Commands ─────────────────────────────────────────────────────────

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchCmd() tea.Cmd {
	r, ctx := m.r, m.ctx
	return func() tea.Msg {
		return snapshotMsg(r.Once(ctx))
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), m.tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
		case "r":
			if !m.fetching {
				m.fetching = true
				return m, m.fetchCmd()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.paused || m.fetching {
			return m, m.tickCmd()
		}
		m.fetching = true
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())

	case snapshotMsg:
		m.fetching = false
		m.fetched = true
		m.snap = refresh.Snapshot(msg)
		m.history.RecordAll(m.snap.Readings)
	}

	return m, nil
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("22")
	colorTitleFg  = lipgloss.Color("156")
	colorBorder   = lipgloss.Color("65")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorWarn     = lipgloss.Color("220")
	colorCrit     = lipgloss.Color("196")
	colorOk       = lipgloss.Color("78")
	colorPaused   = lipgloss.Color("196")
	colorHeader   = lipgloss.Color("243")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := max(m.width-2, 40)

	var sections []string
	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.snap.State == refresh.Error {
		sections = append(sections, m.renderError(contentWidth))
	}

	switch {
	case !m.fetched:
		sections = append(sections, m.renderPlaceholder(contentWidth, "Fetching data..."))
	case m.snap.Latest == nil:
		sections = append(sections, m.renderPlaceholder(contentWidth, Placeholder))
	default:
		sections = append(sections, m.renderTiles(contentWidth))
		sections = append(sections, m.renderBanner(contentWidth))
		if badges := m.renderBadges(); badges != "" {
			sections = append(sections, badges)
		}
		sections = append(sections, m.renderHistory(contentWidth))
	}

	sections = append(sections, m.renderFooter(contentWidth))

	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, sections...), "\n")
	visible := max(m.height, 5)
	scroll := min(m.scroll, max(len(lines)-visible, 0))
	end := min(scroll+visible, len(lines))
	return strings.Join(lines[scroll:end], "\n")
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("FARMDASH")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	statusParts := []string{dimS.Render(m.r.Source())}
	statusParts = append(statusParts, dimS.Render(fmt.Sprintf("up %s", fmtDuration(time.Since(m.startTime)))))

	if !m.snap.Time.IsZero() {
		statusParts = append(statusParts, dimS.Render("last "+m.snap.Time.Format("15:04:05")))
	}
	if m.paused {
		statusParts = append(statusParts, lipgloss.NewStyle().Foreground(colorPaused).Bold(true).Render("PAUSED"))
	}
	if m.opts.RecordDir != "" {
		statusParts = append(statusParts,
			lipgloss.NewStyle().Foreground(colorCrit).Render("REC")+dimS.Render(" "+m.opts.RecordDir))
	}

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)
	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(right)-4, 1)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

// ErrorText is the fetch warning shown for a failed cycle.
func ErrorText(s refresh.Snapshot) string {
	if code := s.StatusCode(); code != 0 {
		return fmt.Sprintf("Failed to fetch data (status %d): %v", code, s.Err)
	}
	return fmt.Sprintf("Failed to fetch data: %v", s.Err)
}

func (m Model) renderError(width int) string {
	return lipgloss.NewStyle().
		Foreground(colorCrit).
		Bold(true).
		Width(width).
		Padding(0, 1).
		Render(" ⚠ " + ErrorText(m.snap))
}

func (m Model) renderPlaceholder(width int, text string) string {
	return lipgloss.NewStyle().
		Foreground(colorDim).
		Width(width).
		Align(lipgloss.Center).
		Padding(2, 0).
		Render(text)
}

func (m Model) renderTiles(totalWidth int) string {
	perRow := 3
	switch {
	case totalWidth < 80:
		perRow = 1
	case totalWidth < 120:
		perRow = 2
	}
	tileWidth := totalWidth/perRow - 2
	sparkWidth := max(tileWidth-4, 10)

	var grid, row []string
	for _, mt := range reading.Metrics {
		row = append(row, m.renderTile(mt, tileWidth, sparkWidth))
		if len(row) == perRow {
			grid = append(grid, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		grid = append(grid, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, grid...)
}

func (m Model) renderTile(mt reading.Metric, width, sparkWidth int) string {
	th := m.opts.Thresholds
	v := m.snap.Latest.Value(mt)
	b := m.history.Get(mt)
	lo, hi := chart.Range(mt, b, th)

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	label := lipgloss.NewStyle().Bold(true).Foreground(colorLabel).Render(mt.Label())
	value := chart.RenderValue(mt, v, th)
	if lipgloss.Width(label)+lipgloss.Width(value)+1 < sparkWidth {
		label += strings.Repeat(" ", sparkWidth-lipgloss.Width(label)-lipgloss.Width(value)) + value
	} else {
		label += " " + value
	}

	var pts []history.Point
	if b != nil {
		pts = b.LastNPoints(sparkWidth)
	}
	lines := []string{
		label,
		chart.RenderSparklinePoints(pts, sparkWidth, lo, hi, mt, th),
	}

	if b != nil && len(b.Points) > 0 {
		stats := dimS.Render("avg ") + valS.Render(fmt.Sprintf("%.1f", b.Avg())) +
			dimS.Render("  lo ") + valS.Render(fmt.Sprintf("%.1f", b.Min)) +
			dimS.Render("  pk ") + valS.Render(fmt.Sprintf("%.1f", b.Peak))
		lines = append(lines, stats)
	} else {
		lines = append(lines, dimS.Render("no history"))
	}
	if _, _, ok := alert.Limit(mt, th); ok && !math.IsNaN(v) {
		lines = append(lines, chart.RenderThresholdScale(v, lo, hi, mt, th, sparkWidth))
	}

	border := colorBorder
	if alert.Breaches(mt, v, th) {
		border = colorCrit
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderBanner(width int) string {
	style := lipgloss.NewStyle().Bold(true).Width(width).Align(lipgloss.Center).Padding(0, 1)
	if m.snap.Alerts.Irrigation {
		return style.Background(colorCrit).Foreground(lipgloss.Color("231")).
			Render("▲ Irrigation Needed! Start irrigation immediately.")
	}
	return style.Foreground(colorOk).Render("✓ No irrigation needed")
}

func (m Model) renderBadges() string {
	var badges []string
	for _, a := range m.snap.Alerts.Active {
		if a.Kind == alert.IrrigationNeeded {
			continue
		}
		color := colorCrit
		if a.Kind == alert.UnknownPrediction {
			color = colorWarn
		}
		badges = append(badges, lipgloss.NewStyle().
			Foreground(color).
			Border(lipgloss.NormalBorder()).
			BorderForeground(color).
			Padding(0, 1).
			Render(a.Message))
	}
	if len(badges) == 0 {
		return ""
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, badges...)
}

func (m Model) renderHistory(width int) string {
	rows := m.snap.History(m.opts.HistoryRows)

	const (
		devW    = 14
		tsW     = 22
		numW    = 14
		statusW = 18
	)
	hdr := lipgloss.NewStyle().Foreground(colorHeader)
	cell := func(s string, w int, right bool) string {
		st := lipgloss.NewStyle().Width(w)
		if right {
			st = st.Align(lipgloss.Right)
		}
		return st.Render(truncate(s, w))
	}

	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(colorLabel).Render("Alert History") +
			hdr.Render(fmt.Sprintf("  last %d readings", len(rows))),
		hdr.Render(cell("device_id", devW, false) + " " + cell("timestamp", tsW, false) + " " +
			cell("soilMoisture", numW, true) + " " + cell("temperature", numW, true) + "  " + cell("Status", statusW, false)),
		lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(strings.Repeat("─", min(width-4, devW+tsW+2*numW+statusW+5))),
	}

	th := m.opts.Thresholds
	for _, r := range rows {
		status := lipgloss.NewStyle().Foreground(colorOk)
		if r.Status == reading.PredictionIrrigate.Label() {
			status = lipgloss.NewStyle().Foreground(colorCrit).Bold(true)
		}
		lines = append(lines,
			cell(r.DeviceID, devW, false)+" "+
				dimIfEmpty(cell(r.Timestamp, tsW, false))+" "+
				lipgloss.NewStyle().Width(numW).Align(lipgloss.Right).Render(chart.RenderValue(reading.SoilMoisture, r.SoilMoisture, th))+" "+
				lipgloss.NewStyle().Width(numW).Align(lipgloss.Right).Render(chart.RenderValue(reading.Temperature, r.Temperature, th))+"  "+
				status.Render(r.Status))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	sw := func(c lipgloss.Color) string { return lipgloss.NewStyle().Foreground(c).Render("██") }
	legend := sw(chart.ColorOk) + dimS.Render(" ok ") +
		sw(chart.ColorNear) + dimS.Render(" near limit ") +
		sw(chart.ColorAlert) + dimS.Render(" alert ") +
		sw(chart.ColorNeutral) + dimS.Render(" no limit")

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  r") + keyS.Render(":refresh") +
		dimS.Render("  j/k") + keyS.Render(":scroll") +
		dimS.Render("  p") + keyS.Render(":pause")

	gap := max(width-lipgloss.Width(legend)-lipgloss.Width(keys)-4, 1)

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + strings.Repeat(" ", gap) + keys)
}

func dimIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return lipgloss.NewStyle().Foreground(colorDim).Render("—")
	}
	return s
}

func truncate(s string, w int) string {
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w <= 3 {
		return string(r[:w])
	}
	return string(r[:w-1]) + "…"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
