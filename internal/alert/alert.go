// Package alert derives threshold alerts and the irrigation state from the
// newest reading, and builds the status rows of the alert history table.
package alert

import (
	"fmt"

	"github.com/luki/farmdash/internal/reading"
)

// Default thresholds. Comparisons are strict: a temperature of exactly
// 35 °C does not raise an alert.
const (
	DefaultTempHigh        = 35.0
	DefaultHumidityLow     = 30.0
	DefaultSoilMoistureLow = 20.0

	// HistoryRows is how many rows the alert history table shows.
	HistoryRows = 20
)

// Thresholds holds the alert limits.
type Thresholds struct {
	TempHigh        float64
	HumidityLow     float64
	SoilMoistureLow float64
}

// DefaultThresholds returns the stock limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TempHigh:        DefaultTempHigh,
		HumidityLow:     DefaultHumidityLow,
		SoilMoistureLow: DefaultSoilMoistureLow,
	}
}

// Kind identifies an alert condition.
type Kind string

const (
	HighTemperature   Kind = "high_temperature"
	LowHumidity       Kind = "low_humidity"
	LowSoilMoisture   Kind = "low_soil_moisture"
	IrrigationNeeded  Kind = "irrigation_needed"
	UnknownPrediction Kind = "unknown_prediction"
)

// Kinds lists every alert kind in display order.
var Kinds = []Kind{HighTemperature, LowHumidity, LowSoilMoisture, IrrigationNeeded, UnknownPrediction}

// Alert is one active condition.
type Alert struct {
	Kind      Kind
	Metric    reading.Metric
	Value     float64
	Threshold float64
	Message   string
}

// Alerts is the evaluation of one reading.
type Alerts struct {
	Active     []Alert
	Irrigation bool
}

// Has reports whether an alert of kind k is active.
func (a Alerts) Has(k Kind) bool {
	for _, al := range a.Active {
		if al.Kind == k {
			return true
		}
	}
	return false
}

// Evaluate checks the latest reading against th. Missing metrics (NaN)
// never raise an alert since every comparison with NaN is false.
func Evaluate(r reading.Reading, th Thresholds) Alerts {
	var out Alerts

	if r.Temperature > th.TempHigh {
		out.Active = append(out.Active, Alert{
			Kind:      HighTemperature,
			Metric:    reading.Temperature,
			Value:     r.Temperature,
			Threshold: th.TempHigh,
			Message:   fmt.Sprintf("High temperature: %.1f°C (above %.0f°C)", r.Temperature, th.TempHigh),
		})
	}
	if r.Humidity < th.HumidityLow {
		out.Active = append(out.Active, Alert{
			Kind:      LowHumidity,
			Metric:    reading.Humidity,
			Value:     r.Humidity,
			Threshold: th.HumidityLow,
			Message:   fmt.Sprintf("Low humidity: %.1f%% (below %.0f%%)", r.Humidity, th.HumidityLow),
		})
	}
	if r.SoilMoisture < th.SoilMoistureLow {
		out.Active = append(out.Active, Alert{
			Kind:      LowSoilMoisture,
			Metric:    reading.SoilMoisture,
			Value:     r.SoilMoisture,
			Threshold: th.SoilMoistureLow,
			Message:   fmt.Sprintf("Low soil moisture: %.1f%% (below %.0f%%)", r.SoilMoisture, th.SoilMoistureLow),
		})
	}

	switch r.Prediction {
	case reading.PredictionIrrigate:
		out.Irrigation = true
		out.Active = append(out.Active, Alert{
			Kind:    IrrigationNeeded,
			Message: "Irrigation Needed! Start irrigation immediately.",
		})
	case reading.PredictionUnknown:
		out.Active = append(out.Active, Alert{
			Kind:    UnknownPrediction,
			Message: "Unrecognised ml_prediction value, treated as no irrigation.",
		})
	}

	return out
}

// Breaches reports whether v is past the limit for metric m under th.
// Metrics without a limit never breach.
func Breaches(m reading.Metric, v float64, th Thresholds) bool {
	switch m {
	case reading.Temperature:
		return v > th.TempHigh
	case reading.Humidity:
		return v < th.HumidityLow
	case reading.SoilMoisture:
		return v < th.SoilMoistureLow
	}
	return false
}

// Limit returns the threshold for m and whether it is an upper bound.
// ok is false for metrics that have no threshold.
func Limit(m reading.Metric, th Thresholds) (limit float64, upper, ok bool) {
	switch m {
	case reading.Temperature:
		return th.TempHigh, true, true
	case reading.Humidity:
		return th.HumidityLow, false, true
	case reading.SoilMoisture:
		return th.SoilMoistureLow, false, true
	}
	return 0, false, false
}

// Row is one line of the alert history table.
type Row struct {
	DeviceID     string
	Timestamp    string
	SoilMoisture float64
	Temperature  float64
	Status       string
}

// History returns the status rows for the first n readings of a
// newest-first slice.
func History(rs []reading.Reading, n int) []Row {
	rs = reading.Newest(rs, n)
	rows := make([]Row, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, Row{
			DeviceID:     r.DeviceID,
			Timestamp:    r.RawTimestamp,
			SoilMoisture: r.SoilMoisture,
			Temperature:  r.Temperature,
			Status:       r.Prediction.Label(),
		})
	}
	return rows
}
