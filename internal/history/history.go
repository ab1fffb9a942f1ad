// Package history keeps in-memory ring buffers of metric values with
// min/peak/avg statistics for sparkline rendering.
package history

import (
	"math"
	"time"

	"github.com/luki/farmdash/internal/reading"
)

// Point is a single value in a series.
type Point struct {
	Value float64
	Time  time.Time
}

// Buffer is a fixed-capacity series for one metric.
type Buffer struct {
	Points []Point
	Max    int // capacity
	Min    float64
	Peak   float64
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		Points: make([]Point, 0, capacity),
		Max:    capacity,
		Min:    math.MaxFloat64,
		Peak:   -math.MaxFloat64,
	}
}

// Push appends v. NaN values are ignored, as are points not newer than the
// last one when both carry a time.
func (b *Buffer) Push(v float64, t time.Time) bool {
	if math.IsNaN(v) {
		return false
	}
	if n := len(b.Points); n > 0 && !t.IsZero() && !b.Points[n-1].Time.IsZero() && !t.After(b.Points[n-1].Time) {
		return false
	}

	p := Point{Value: v, Time: t}
	if len(b.Points) >= b.Max {
		copy(b.Points, b.Points[1:])
		b.Points[len(b.Points)-1] = p
	} else {
		b.Points = append(b.Points, p)
	}

	if v < b.Min {
		b.Min = v
	}
	if v > b.Peak {
		b.Peak = v
	}
	return true
}

// Last returns the most recent value, or NaN if empty.
func (b *Buffer) Last() float64 {
	if len(b.Points) == 0 {
		return math.NaN()
	}
	return b.Points[len(b.Points)-1].Value
}

// Avg returns the mean of the stored points, or NaN if empty.
func (b *Buffer) Avg() float64 {
	if len(b.Points) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, p := range b.Points {
		sum += p.Value
	}
	return sum / float64(len(b.Points))
}

// LastN returns the last n values.
func (b *Buffer) LastN(n int) []float64 {
	pts := b.LastNPoints(n)
	if pts == nil {
		return nil
	}
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.Value
	}
	return vals
}

// LastNPoints returns a copy of the last n points.
func (b *Buffer) LastNPoints(n int) []Point {
	if n <= 0 || len(b.Points) == 0 {
		return nil
	}
	start := len(b.Points) - n
	if start < 0 {
		start = 0
	}
	out := make([]Point, len(b.Points[start:]))
	copy(out, b.Points[start:])
	return out
}

// Store holds one buffer per metric.
type Store struct {
	Data     map[reading.Metric]*Buffer
	Capacity int
}

func NewStore(capacity int) *Store {
	return &Store{
		Data:     make(map[reading.Metric]*Buffer),
		Capacity: capacity,
	}
}

// Record adds one value for metric m.
func (s *Store) Record(m reading.Metric, v float64, t time.Time) bool {
	b, ok := s.Data[m]
	if !ok {
		b = NewBuffer(s.Capacity)
		s.Data[m] = b
	}
	return b.Push(v, t)
}

// RecordAll adds every metric of a newest-first batch in chronological order.
// Readings already seen are skipped by timestamp. It returns how many
// readings contributed at least one point.
func (s *Store) RecordAll(rs []reading.Reading) int {
	added := 0
	for i := len(rs) - 1; i >= 0; i-- {
		r := rs[i]
		if r.Timestamp.IsZero() {
			continue
		}
		stored := false
		for _, m := range reading.Metrics {
			if s.Record(m, r.Value(m), r.Timestamp) {
				stored = true
			}
		}
		if stored {
			added++
		}
	}
	return added
}

// Get returns the buffer for m, or nil.
func (s *Store) Get(m reading.Metric) *Buffer {
	return s.Data[m]
}
