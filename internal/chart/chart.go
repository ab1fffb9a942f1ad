// Package chart renders sparklines, timelines and threshold scales for
// metric series, coloured by how close a value is to its alert limit.
package chart

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/history"
	"github.com/luki/farmdash/internal/reading"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const (
	ColorOk      = lipgloss.Color("78")  // soft green
	ColorNear    = lipgloss.Color("220") // yellow
	ColorAlert   = lipgloss.Color("196") // red
	ColorNeutral = lipgloss.Color("75")  // metrics without a limit
	colorEmpty   = lipgloss.Color("236")
	colorTick    = lipgloss.Color("239")
)

// nearBand is the fraction of the limit treated as "approaching".
const nearBand = 0.10

// Level classifies a value against its metric's limit.
type Level int

const (
	LevelNone Level = iota // no limit for this metric
	LevelOk
	LevelNear
	LevelAlert
)

// Classify returns the level of v for metric m.
func Classify(m reading.Metric, v float64, th alert.Thresholds) Level {
	limit, upper, ok := alert.Limit(m, th)
	if !ok || math.IsNaN(v) {
		return LevelNone
	}
	if alert.Breaches(m, v, th) {
		return LevelAlert
	}
	if upper && v >= limit*(1-nearBand) {
		return LevelNear
	}
	if !upper && v <= limit*(1+nearBand) {
		return LevelNear
	}
	return LevelOk
}

// LevelColor maps a level to its colour.
func LevelColor(l Level) lipgloss.Color {
	switch l {
	case LevelAlert:
		return ColorAlert
	case LevelNear:
		return ColorNear
	case LevelOk:
		return ColorOk
	}
	return ColorNeutral
}

// ValueColor is LevelColor(Classify(m, v, th)).
func ValueColor(m reading.Metric, v float64, th alert.Thresholds) lipgloss.Color {
	return LevelColor(Classify(m, v, th))
}

// Range returns a display range covering the buffer and the metric's limit
// with some padding.
func Range(m reading.Metric, b *history.Buffer, th alert.Thresholds) (lo, hi float64) {
	if b == nil || len(b.Points) == 0 {
		lo, hi = 0, 1
	} else {
		lo, hi = b.Min, b.Peak
	}
	if limit, _, ok := alert.Limit(m, th); ok {
		lo = math.Min(lo, limit)
		hi = math.Max(hi, limit)
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	lo -= pad
	hi += pad
	if lo < 0 && (b == nil || b.Min >= 0) {
		lo = 0
	}
	return lo, hi
}

// RenderSparkline renders plain values without timestamps.
func RenderSparkline(values []float64, width int, rangeMin, rangeMax float64, m reading.Metric, th alert.Thresholds) string {
	if width <= 0 {
		return ""
	}
	pts := make([]history.Point, len(values))
	for i, v := range values {
		pts[i] = history.Point{Value: v}
	}
	return RenderSparklinePoints(pts, width, rangeMin, rangeMax, m, th)
}

// RenderSparklinePoints renders a sparkline with a tick at each minute
// boundary of the point timestamps.
func RenderSparklinePoints(points []history.Point, width int, rangeMin, rangeMax float64, m reading.Metric, th alert.Thresholds) string {
	if width <= 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(colorEmpty)
	if len(points) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)
	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < padLen; i++ {
		sb.WriteString(dim.Render("╌"))
	}

	tickStyle := lipgloss.NewStyle().Foreground(colorTick)

	for i, p := range points {
		if minuteTick(points, i) {
			sb.WriteString(tickStyle.Render("│"))
			continue
		}

		norm := (p.Value - rangeMin) / span
		norm = math.Max(0, math.Min(1, norm))
		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}

		level := Classify(m, p.Value, th)
		style := lipgloss.NewStyle().Foreground(LevelColor(level))
		if level == LevelAlert {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}

	return sb.String()
}

// minuteTick reports whether point i starts a new minute. Readings arrive
// every few seconds, so only the first point of each minute is marked.
func minuteTick(points []history.Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() || i == 0 || points[i-1].Time.IsZero() {
		return false
	}
	return !p.Time.Truncate(time.Minute).Equal(points[i-1].Time.Truncate(time.Minute))
}

// RenderTimeline renders HH:MM labels under the sparkline at minute ticks.
func RenderTimeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)

	line := make([]rune, width)
	for i := range line {
		line[i] = ' '
	}

	lastEnd := -1
	for i, p := range points {
		if !minuteTick(points, i) {
			continue
		}
		label := p.Time.Format("15:04")
		start := padLen + i - 2
		if start < 0 {
			start = 0
		}
		end := start + len(label)
		if end > width || (lastEnd >= 0 && start <= lastEnd) {
			continue
		}
		for j, ch := range label {
			line[start+j] = ch
		}
		lastEnd = end
	}

	return lipgloss.NewStyle().Foreground(colorTick).Render(string(line))
}

// RenderThresholdScale renders a bar with the metric's limit marked and the
// current value as a diamond.
func RenderThresholdScale(current, rangeMin, rangeMax float64, m reading.Metric, th alert.Thresholds, width int) string {
	if width <= 0 {
		return ""
	}

	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		p := int(float64(width-1) * (v - rangeMin) / span)
		if p < 0 {
			return 0
		}
		if p >= width {
			return width - 1
		}
		return p
	}

	limitPos := -1
	limit, _, hasLimit := alert.Limit(m, th)
	if hasLimit {
		limitPos = pos(limit)
	}
	curPos := -1
	if !math.IsNaN(current) {
		curPos = pos(current)
	}
	// Keep both markers visible when they share a cell: the limit moves to
	// the side it lies on relative to the value.
	if limitPos >= 0 && limitPos == curPos && width > 1 {
		switch {
		case limit < current && limitPos > 0, limitPos == width-1:
			limitPos--
		default:
			limitPos++
		}
	}

	dot := lipgloss.NewStyle().Foreground(colorEmpty)
	mark := lipgloss.NewStyle().Foreground(ColorNear)
	cur := lipgloss.NewStyle().Foreground(ValueColor(m, current, th)).Bold(true)

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch i {
		case curPos:
			sb.WriteString(cur.Render("◆"))
		case limitPos:
			sb.WriteString(mark.Render("▪"))
		default:
			sb.WriteString(dot.Render("·"))
		}
	}
	return sb.String()
}

// FormatValue formats v with the metric's unit. NaN renders as a dash.
func FormatValue(m reading.Metric, v float64) string {
	if math.IsNaN(v) {
		return "—"
	}
	prec := 1
	if m == reading.CO2 || m == reading.Light {
		prec = 0
	}
	s := strconv.FormatFloat(v, 'f', prec, 64)
	switch u := m.Unit(); u {
	case "":
		return s
	case "°C", "%":
		return s + u
	default:
		return s + " " + u
	}
}

// RenderValue renders FormatValue coloured by level.
func RenderValue(m reading.Metric, v float64, th alert.Thresholds) string {
	level := Classify(m, v, th)
	style := lipgloss.NewStyle().Foreground(LevelColor(level))
	if level == LevelAlert {
		style = style.Bold(true)
	}
	return style.Render(FormatValue(m, v))
}
