package history

import (
	"math"
	"testing"
	"time"

	"github.com/luki/farmdash/internal/reading"
)

func TestHistory(t *testing.T) {
	h := NewBuffer(5)

	now := time.Now()
	for i := 0; i < 7; i++ {
		h.Push(float64(30+i), now.Add(time.Duration(i)*time.Second))
	}

	if len(h.Points) != 5 {
		t.Errorf("expected 5 points, got %d", len(h.Points))
	}
	if h.Last() != 36.0 {
		t.Errorf("Last(): got %f, want 36.0", h.Last())
	}
	if h.Min != 30.0 {
		t.Errorf("Min: got %f, want 30.0", h.Min)
	}
	if h.Peak != 36.0 {
		t.Errorf("Peak: got %f, want 36.0", h.Peak)
	}
	if got := h.Avg(); got != 34.0 {
		t.Errorf("Avg: got %f, want 34.0", got)
	}

	vals := h.LastN(3)
	if len(vals) != 3 || vals[2] != 36 {
		t.Errorf("LastN(3): got %v", vals)
	}
}

func TestPushSkipsNaNAndStale(t *testing.T) {
	h := NewBuffer(10)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if h.Push(math.NaN(), base) {
		t.Error("NaN should not be stored")
	}
	h.Push(20, base)
	if h.Push(21, base) {
		t.Error("same timestamp should not be stored twice")
	}
	if h.Push(19, base.Add(-time.Minute)) {
		t.Error("older timestamp should not be stored")
	}
	if !math.IsNaN(NewBuffer(1).Last()) || !math.IsNaN(NewBuffer(1).Avg()) {
		t.Error("empty buffer should report NaN")
	}
	if len(h.Points) != 1 {
		t.Errorf("got %d points, want 1", len(h.Points))
	}
}

func TestLastNPoints(t *testing.T) {
	h := NewBuffer(100)
	base := time.Date(2026, 2, 21, 14, 0, 0, 0, time.Local)

	for i := 0; i < 120; i++ {
		h.Push(float64(30+i%10), base.Add(time.Duration(i)*time.Second))
	}

	pts := h.LastNPoints(5)
	if len(pts) != 5 {
		t.Fatalf("LastNPoints(5): got %d, want 5", len(pts))
	}
	for _, p := range pts {
		if p.Time.IsZero() {
			t.Error("expected non-zero timestamp")
		}
	}

	last := pts[len(pts)-1]
	if last.Time != base.Add(119*time.Second) {
		t.Errorf("last point time: got %v, want %v", last.Time, base.Add(119*time.Second))
	}
}

func TestRecordAll(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(sec int, temp float64) reading.Reading {
		r := reading.Empty()
		r.Timestamp = base.Add(time.Duration(sec) * time.Second)
		r.Temperature = temp
		return r
	}
	s := NewStore(50)

	// newest first, as delivered by a refresh
	if n := s.RecordAll([]reading.Reading{mk(20, 22), mk(10, 21), mk(0, 20)}); n != 3 {
		t.Errorf("first RecordAll added %d, want 3", n)
	}
	// overlapping batch only adds the new reading
	if n := s.RecordAll([]reading.Reading{mk(30, 23), mk(20, 22), mk(10, 21)}); n != 1 {
		t.Errorf("second RecordAll added %d, want 1", n)
	}

	temps := s.Get(reading.Temperature).LastN(10)
	if len(temps) != 4 || temps[0] != 20 || temps[3] != 23 {
		t.Errorf("temperature series = %v", temps)
	}
	if s.Get(reading.Humidity) != nil && len(s.Get(reading.Humidity).Points) != 0 {
		t.Error("missing humidity should not produce points")
	}
}
