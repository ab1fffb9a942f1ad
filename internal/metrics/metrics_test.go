package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/reading"
)

func TestObserveRefresh(t *testing.T) {
	c := New("test")
	now := time.Unix(1700000000, 0)

	c.ObserveRefresh(ResultReady, 200*time.Millisecond, 12, 2, now)
	c.ObserveRefresh(ResultError, time.Second, 0, 0, now)
	c.ObserveRefresh(ResultReady, 100*time.Millisecond, 10, 1, now)

	if got := testutil.ToFloat64(c.Refreshes.WithLabelValues(ResultReady)); got != 2 {
		t.Errorf("ready refreshes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.SkippedRows); got != 3 {
		t.Errorf("skipped = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Readings); got != 10 {
		t.Errorf("readings = %v, want 10", got)
	}
	if got := testutil.ToFloat64(c.LastRefresh); got != 1700000000 {
		t.Errorf("last refresh = %v", got)
	}
	if n := testutil.CollectAndCount(c.FetchDuration); n != 1 {
		t.Errorf("histogram series = %d", n)
	}
}

func TestObserveLatest(t *testing.T) {
	c := New("test")
	r := reading.Empty()
	r.Temperature = 36
	r.SoilMoisture = 15
	r.Prediction = reading.PredictionIrrigate

	c.ObserveLatest(&r, alert.Evaluate(r, alert.DefaultThresholds()))

	if got := testutil.ToFloat64(c.Latest.WithLabelValues("temperature")); got != 36 {
		t.Errorf("temperature gauge = %v", got)
	}
	// humidity, light, rain, co2 are NaN and not exported
	if n := testutil.CollectAndCount(c.Latest); n != 2 {
		t.Errorf("latest series = %d, want 2", n)
	}
	if got := testutil.ToFloat64(c.Alerts.WithLabelValues(string(alert.HighTemperature))); got != 1 {
		t.Errorf("high temperature alert = %v", got)
	}
	if got := testutil.ToFloat64(c.Alerts.WithLabelValues(string(alert.LowHumidity))); got != 0 {
		t.Errorf("low humidity alert = %v", got)
	}

	c.ObserveLatest(nil, alert.Alerts{})
	if n := testutil.CollectAndCount(c.Latest); n != 0 {
		t.Errorf("latest series after clear = %d", n)
	}
}

func TestHandler(t *testing.T) {
	c := New("test")
	c.ObserveRefresh(ResultNoData, 0, 0, 0, time.Now())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `farmdash_refreshes_total{result="no_data",source="test"} 1`) {
		t.Errorf("metrics output missing refresh counter:\n%s", body)
	}
}
