package server

import (
	"math"
	"time"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/reading"
	"github.com/luki/farmdash/internal/refresh"
)

// ReadingView is the JSON form of a reading. Missing metrics are null.
type ReadingView struct {
	DeviceID        string     `json:"device_id"`
	Timestamp       string     `json:"timestamp"`
	Time            *time.Time `json:"time,omitempty"`
	Temperature     *float64   `json:"temperature"`
	Humidity        *float64   `json:"humidity"`
	SoilMoisture    *float64   `json:"soilMoisture"`
	Light           *float64   `json:"light"`
	Rain            *float64   `json:"rain"`
	CO2             *float64   `json:"co2"`
	MLPrediction    string     `json:"ml_prediction"`
	PredictionLabel string     `json:"status"`
}

type AlertView struct {
	Kind      alert.Kind `json:"kind"`
	Metric    string     `json:"metric,omitempty"`
	Value     *float64   `json:"value,omitempty"`
	Threshold *float64   `json:"threshold,omitempty"`
	Message   string     `json:"message"`
}

// SnapshotView is the JSON form of a refresh snapshot.
type SnapshotView struct {
	Time       time.Time    `json:"time"`
	Source     string       `json:"source"`
	State      string       `json:"state"`
	Error      string       `json:"error,omitempty"`
	StatusCode int          `json:"status_code,omitempty"`
	Skipped    int          `json:"skipped"`
	Count      int          `json:"count"`
	Latest     *ReadingView `json:"latest"`
	Irrigation bool         `json:"irrigation_needed"`
	Alerts     []AlertView  `json:"alerts"`
}

type HistoryRowView struct {
	DeviceID     string   `json:"device_id"`
	Timestamp    string   `json:"timestamp"`
	SoilMoisture *float64 `json:"soilMoisture"`
	Temperature  *float64 `json:"temperature"`
	Status       string   `json:"Status"`
}

func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func readingView(r reading.Reading) ReadingView {
	v := ReadingView{
		DeviceID:        r.DeviceID,
		Timestamp:       r.RawTimestamp,
		Temperature:     num(r.Temperature),
		Humidity:        num(r.Humidity),
		SoilMoisture:    num(r.SoilMoisture),
		Light:           num(r.Light),
		Rain:            num(r.Rain),
		CO2:             num(r.CO2),
		MLPrediction:    r.Prediction.Encode(),
		PredictionLabel: r.Prediction.Label(),
	}
	if !r.Timestamp.IsZero() {
		t := r.Timestamp
		v.Time = &t
	}
	return v
}

// NewSnapshotView is the JSON form served by /api/snapshot and /ws.
func NewSnapshotView(s refresh.Snapshot) SnapshotView {
	v := SnapshotView{
		Time:       s.Time,
		Source:     s.Source,
		State:      s.State.String(),
		StatusCode: s.StatusCode(),
		Skipped:    s.Skipped,
		Count:      len(s.Readings),
		Irrigation: s.Alerts.Irrigation,
		Alerts:     make([]AlertView, 0, len(s.Alerts.Active)),
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	if s.Latest != nil {
		rv := readingView(*s.Latest)
		v.Latest = &rv
	}
	for _, a := range s.Alerts.Active {
		av := AlertView{Kind: a.Kind, Message: a.Message}
		if a.Kind != alert.IrrigationNeeded && a.Kind != alert.UnknownPrediction {
			av.Metric = a.Metric.Key()
			av.Value = num(a.Value)
			av.Threshold = num(a.Threshold)
		}
		v.Alerts = append(v.Alerts, av)
	}
	return v
}

func historyView(rows []alert.Row) []HistoryRowView {
	out := make([]HistoryRowView, 0, len(rows))
	for _, r := range rows {
		out = append(out, HistoryRowView{
			DeviceID:     r.DeviceID,
			Timestamp:    r.Timestamp,
			SoilMoisture: num(r.SoilMoisture),
			Temperature:  num(r.Temperature),
			Status:       r.Status,
		})
	}
	return out
}
