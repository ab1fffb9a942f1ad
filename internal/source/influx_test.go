package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/config"
)

func TestInfluxFlux(t *testing.T) {
	client := influxdb2.NewClient("http://localhost:8086", "token")
	defer client.Close()

	s := NewInflux(client, config.InfluxConfig{Org: "farm", Bucket: "sensors", Measurement: "readings", Window: 24 * time.Hour}, 200, zerolog.Nop())
	q := s.Flux()
	t.Logf("\n%s", q)

	for _, want := range []string{
		`from(bucket: "sensors")`,
		`range(start: -86400s)`,
		`r._measurement == "readings"`,
		`pivot(rowKey: ["_time"]`,
		`sort(columns: ["_time"], desc: true)`,
		`limit(n: 200)`,
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q", want)
		}
	}
}

func TestRecordRow(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := query.NewFluxRecord(0, map[string]interface{}{
		"result":        "_result",
		"table":         int64(0),
		"_start":        ts.Add(-time.Hour),
		"_stop":         ts,
		"_time":         ts,
		"_measurement":  "readings",
		"device_id":     "esp32-001",
		"temperature":   21.5,
		"soilMoisture":  int64(18),
		"ml_prediction": "1",
	})

	row := recordRow(rec)
	if _, ok := row["_measurement"]; ok {
		t.Error("bookkeeping column leaked into row")
	}
	if row["timestamp"] != ts {
		t.Errorf("timestamp = %v", row["timestamp"])
	}

	b := normalize([]map[string]any{row}, zerolog.Nop())
	r := b.Readings[0]
	if r.DeviceID != "esp32-001" || r.Temperature != 21.5 || r.SoilMoisture != 18 || !r.Prediction.IrrigationNeeded() {
		t.Errorf("reading = %+v", r)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, ts)
	}
}

func TestInfluxFetch(t *testing.T) {
	csv := "#datatype,string,long,dateTime:RFC3339,string,double,double\r\n" +
		"#group,false,false,false,false,false,false\r\n" +
		"#default,_result,,,,,\r\n" +
		",result,table,_time,device_id,temperature,soilMoisture\r\n" +
		",,0,2026-03-01T12:01:00Z,esp32-001,36.5,18\r\n" +
		",,0,2026-03-01T12:00:00Z,esp32-001,21.5,40\r\n" +
		"\r\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/query" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte(csv))
	}))
	defer srv.Close()

	client := influxdb2.NewClient(srv.URL, "token")
	defer client.Close()

	s := NewInflux(client, config.InfluxConfig{Org: "farm", Bucket: "sensors", Measurement: "readings", Window: time.Hour}, 10, zerolog.Nop())
	b, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(b.Readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(b.Readings))
	}
	if b.Readings[0].Temperature != 36.5 || b.Readings[1].SoilMoisture != 40 {
		t.Errorf("readings = %+v", b.Readings)
	}
}
