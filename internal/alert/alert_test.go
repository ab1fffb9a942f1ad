package alert

import (
	"math"
	"testing"

	"github.com/luki/farmdash/internal/reading"
)

func latest(temp, hum, soil float64, p reading.Prediction) reading.Reading {
	r := reading.Empty()
	r.Temperature = temp
	r.Humidity = hum
	r.SoilMoisture = soil
	r.Prediction = p
	return r
}

func TestEvaluateThresholds(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name string
		r    reading.Reading
		want []Kind
	}{
		{"all nominal", latest(25, 50, 40, reading.PredictionNone), nil},
		{"temperature 36 alerts", latest(36, 50, 40, reading.PredictionNone), []Kind{HighTemperature}},
		{"temperature 35 does not", latest(35, 50, 40, reading.PredictionNone), nil},
		{"humidity 29.9 alerts", latest(25, 29.9, 40, reading.PredictionNone), []Kind{LowHumidity}},
		{"humidity 30 does not", latest(25, 30, 40, reading.PredictionNone), nil},
		{"soil 19 alerts", latest(25, 50, 19, reading.PredictionNone), []Kind{LowSoilMoisture}},
		{"soil 20 does not", latest(25, 50, 20, reading.PredictionNone), nil},
		{"irrigate", latest(25, 50, 40, reading.PredictionIrrigate), []Kind{IrrigationNeeded}},
		{"unknown prediction", latest(25, 50, 40, reading.PredictionUnknown), []Kind{UnknownPrediction}},
		{"everything", latest(40, 10, 5, reading.PredictionIrrigate), []Kind{HighTemperature, LowHumidity, LowSoilMoisture, IrrigationNeeded}},
		{"missing metrics", latest(math.NaN(), math.NaN(), math.NaN(), reading.PredictionNone), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.r, th)
			if len(got.Active) != len(tt.want) {
				t.Fatalf("got %d alerts %+v, want %v", len(got.Active), got.Active, tt.want)
			}
			for i, k := range tt.want {
				if got.Active[i].Kind != k {
					t.Errorf("alert %d: got %s, want %s", i, got.Active[i].Kind, k)
				}
			}
			if got.Irrigation != tt.r.Prediction.IrrigationNeeded() {
				t.Errorf("Irrigation = %v", got.Irrigation)
			}
		})
	}
}

func TestEvaluateCustomThresholds(t *testing.T) {
	th := Thresholds{TempHigh: 30, HumidityLow: 40, SoilMoistureLow: 25}
	got := Evaluate(latest(31, 39, 24, reading.PredictionNone), th)
	for _, k := range []Kind{HighTemperature, LowHumidity, LowSoilMoisture} {
		if !got.Has(k) {
			t.Errorf("expected %s", k)
		}
	}
}

func TestBreachesAndLimit(t *testing.T) {
	th := DefaultThresholds()
	if !Breaches(reading.Temperature, 35.1, th) || Breaches(reading.Temperature, 35, th) {
		t.Error("temperature breach is strict above 35")
	}
	if !Breaches(reading.SoilMoisture, 19.9, th) {
		t.Error("soil moisture 19.9 should breach")
	}
	if Breaches(reading.CO2, 5000, th) {
		t.Error("co2 has no threshold")
	}
	if l, upper, ok := Limit(reading.Humidity, th); !ok || upper || l != 30 {
		t.Errorf("Limit(humidity) = %v %v %v", l, upper, ok)
	}
	if _, _, ok := Limit(reading.Light, th); ok {
		t.Error("light has no limit")
	}
}

func TestHistoryRows(t *testing.T) {
	var rs []reading.Reading
	for i := 0; i < 25; i++ {
		r := latest(20, 50, float64(i), reading.PredictionNone)
		r.DeviceID = "esp32-001"
		if i%2 == 0 {
			r.Prediction, _ = reading.ParsePrediction("True")
		}
		rs = append(rs, r)
	}

	rows := History(rs, HistoryRows)
	if len(rows) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(rows))
	}
	if rows[0].Status != "Irrigation Needed" || rows[1].Status != "No Irrigation" {
		t.Errorf("status labels: %q, %q", rows[0].Status, rows[1].Status)
	}
	if rows[19].SoilMoisture != 19 {
		t.Errorf("last row soil = %v", rows[19].SoilMoisture)
	}

	if got := History(nil, HistoryRows); len(got) != 0 {
		t.Errorf("no readings should give no rows, got %d", len(got))
	}
}
