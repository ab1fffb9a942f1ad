// Package reading defines the normalised smart-farm sensor reading and the
// coercion rules that turn loosely typed source rows into one.
package reading

import (
	"math"
	"sort"
	"time"
)

// Reading is one timestamped set of sensor values from a device.
// Numeric fields missing from the source row are NaN.
type Reading struct {
	DeviceID     string
	Timestamp    time.Time // zero if the source timestamp could not be parsed
	RawTimestamp string    // timestamp exactly as the source encoded it
	Temperature  float64   // °C
	Humidity     float64   // %
	SoilMoisture float64   // %
	Light        float64   // lux
	Rain         float64
	CO2          float64 // ppm
	Prediction   Prediction
}

// Empty returns a reading with every metric marked missing.
func Empty() Reading {
	nan := math.NaN()
	return Reading{
		Temperature:  nan,
		Humidity:     nan,
		SoilMoisture: nan,
		Light:        nan,
		Rain:         nan,
		CO2:          nan,
	}
}

// Value returns the value of metric m.
func (r Reading) Value(m Metric) float64 {
	switch m {
	case Temperature:
		return r.Temperature
	case Humidity:
		return r.Humidity
	case SoilMoisture:
		return r.SoilMoisture
	case Light:
		return r.Light
	case Rain:
		return r.Rain
	case CO2:
		return r.CO2
	}
	return math.NaN()
}

func (r *Reading) set(m Metric, v float64) {
	switch m {
	case Temperature:
		r.Temperature = v
	case Humidity:
		r.Humidity = v
	case SoilMoisture:
		r.SoilMoisture = v
	case Light:
		r.Light = v
	case Rain:
		r.Rain = v
	case CO2:
		r.CO2 = v
	}
}

// Has reports whether metric m was present in the source row.
func (r Reading) Has(m Metric) bool {
	return !math.IsNaN(r.Value(m))
}

// Key identifies the reading within a source: device plus raw timestamp.
func (r Reading) Key() string {
	return r.DeviceID + "/" + r.RawTimestamp
}

// SortNewestFirst orders readings by timestamp, newest first. Readings whose
// timestamp could not be parsed sort after all dated ones, keeping their order.
func SortNewestFirst(rs []Reading) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].Timestamp, rs[j].Timestamp
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.After(b)
	})
}

// Newest returns at most n readings from the front of a newest-first slice.
// n <= 0 means no limit.
func Newest(rs []Reading, n int) []Reading {
	if n <= 0 || len(rs) <= n {
		return rs
	}
	return rs[:n]
}
