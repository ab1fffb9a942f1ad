package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/reading"
	"github.com/luki/farmdash/internal/refresh"
	"github.com/luki/farmdash/internal/source"
)

type fixedFetcher struct {
	batch source.Batch
	err   error
}

func (f fixedFetcher) Name() string { return "fixed" }

func (f fixedFetcher) Fetch(context.Context) (source.Batch, error) { return f.batch, f.err }

func newModel(t *testing.T, f source.Fetcher) (Model, *refresh.Refresher) {
	t.Helper()
	r := refresh.New(f, refresh.Options{Log: zerolog.Nop()})
	m := New(context.Background(), r, Options{Interval: time.Second})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 150, Height: 200})
	return next.(Model), r
}

func apply(m Model, snap refresh.Snapshot) Model {
	next, _ := m.Update(snapshotMsg(snap))
	return next.(Model)
}

func TestViewWithReadings(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var rs []reading.Reading
	for i := 4; i >= 0; i-- {
		r := reading.Empty()
		r.DeviceID = "esp32-001"
		r.Timestamp = base.Add(time.Duration(i) * 10 * time.Second)
		r.RawTimestamp = r.Timestamp.Format(time.RFC3339)
		r.Temperature = 30 + float64(i)*1.5
		r.Humidity = 40
		r.SoilMoisture = 22 - float64(i)
		r.Prediction = reading.PredictionIrrigate
		rs = append(rs, r)
	}

	m, r := newModel(t, fixedFetcher{batch: source.Batch{Readings: rs}})
	m = apply(m, r.Once(context.Background()))

	out := m.View()
	for _, want := range []string{
		"FARMDASH",
		"Temperature", "Humidity", "Soil Moisture", "Light", "Rain",
		"36.0°C",
		"Irrigation Needed!",
		"High temperature",
		"Low soil moisture",
		"Alert History",
		"esp32-001",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(out, Placeholder) {
		t.Error("placeholder shown with data")
	}
	if !m.snap.Alerts.Has(alert.HighTemperature) || len(m.snap.History(alert.HistoryRows)) != 5 {
		t.Errorf("snapshot alerts = %+v", m.snap.Alerts)
	}
	if got := len(m.history.Get(reading.Temperature).Points); got != 5 {
		t.Errorf("temperature history has %d points, want 5", got)
	}
	t.Logf("\n%s", out)
}

func TestViewNoData(t *testing.T) {
	m, r := newModel(t, fixedFetcher{})
	if !strings.Contains(m.View(), "Fetching data") {
		t.Error("expected fetching state before first snapshot")
	}
	m = apply(m, r.Once(context.Background()))
	if out := m.View(); !strings.Contains(out, Placeholder) {
		t.Errorf("expected placeholder, got:\n%s", out)
	}
}

func TestViewError(t *testing.T) {
	m, r := newModel(t, fixedFetcher{err: &source.StatusError{Code: 500}})
	m = apply(m, r.Once(context.Background()))

	out := m.View()
	if !strings.Contains(out, "status 500") {
		t.Errorf("error box missing status code:\n%s", out)
	}
	if !strings.Contains(out, Placeholder) {
		t.Error("failed fetch should show the empty state")
	}
}

func TestPauseAndScroll(t *testing.T) {
	m, _ := newModel(t, fixedFetcher{})
	key := func(s string) {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
		m = next.(Model)
	}
	key("p")
	if !m.paused {
		t.Error("p should pause")
	}
	key("j")
	key("j")
	key("k")
	if m.scroll != 1 {
		t.Errorf("scroll = %d, want 1", m.scroll)
	}
	key("p")
	if m.paused {
		t.Error("p should resume")
	}
}

func TestErrorText(t *testing.T) {
	s := refresh.Snapshot{State: refresh.Error, Err: source.ErrTransport}
	if got := ErrorText(s); got != "Failed to fetch data: transport failure" {
		t.Errorf("ErrorText = %q", got)
	}
}

func TestNoFetchWhileFirstFetchRuns(t *testing.T) {
	r := refresh.New(fixedFetcher{}, refresh.Options{Log: zerolog.Nop()})
	m := New(context.Background(), r, Options{Interval: 10 * time.Millisecond})

	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("tick should reschedule itself")
	}
	if msg := cmd(); msg != nil {
		if _, ok := msg.(tickMsg); !ok {
			t.Errorf("tick during first fetch returned %T, want only the next tick", msg)
		}
	}

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = next.(Model)
	if cmd != nil {
		t.Error("r during first fetch started another fetch")
	}

	m = apply(m, r.Once(context.Background()))
	if _, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}); cmd == nil {
		t.Error("r after the first snapshot should fetch")
	}
}
