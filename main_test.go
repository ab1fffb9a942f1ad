package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/reading"
	"github.com/luki/farmdash/internal/refresh"
	"github.com/luki/farmdash/internal/source"
)

func readySnapshot() refresh.Snapshot {
	r := reading.Empty()
	r.DeviceID = "esp32-001"
	r.RawTimestamp = "1700000000"
	r.Timestamp = time.Unix(1700000000, 0)
	r.Temperature = 36
	r.Humidity = 50
	r.SoilMoisture = 18
	r.Prediction = reading.PredictionIrrigate
	return refresh.Snapshot{
		Time:     time.Unix(1700000005, 0),
		Source:   "http:test",
		Readings: []reading.Reading{r},
		Latest:   &r,
		Alerts:   alert.Evaluate(r, alert.DefaultThresholds()),
		State:    refresh.Ready,
	}
}

func TestPrintOnceText(t *testing.T) {
	var buf bytes.Buffer
	if err := printOnce(&buf, readySnapshot(), nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	t.Logf("\n%s", out)
	for _, want := range []string{"esp32-001", "36.0°C", "Irrigation Needed!", "ready"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestPrintOnceJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printOnce(&buf, readySnapshot(), []string{"--json"}); err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	if err := json.Unmarshal(buf.Bytes(), &v); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, buf.String())
	}
	if v["state"] != "ready" {
		t.Errorf("state = %v", v["state"])
	}
}

func TestPrintOnceStates(t *testing.T) {
	var buf bytes.Buffer
	if err := printOnce(&buf, refresh.Snapshot{State: refresh.NoData}, nil); err != nil {
		t.Fatalf("no data should not fail: %v", err)
	}
	if !strings.Contains(buf.String(), "No data yet") {
		t.Errorf("missing placeholder:\n%s", buf.String())
	}

	buf.Reset()
	failed := refresh.Snapshot{State: refresh.Error, Err: fmt.Errorf("fetch: %w", &source.StatusError{Code: 500, Status: "500 Internal Server Error"})}
	if err := printOnce(&buf, failed, nil); err == nil {
		t.Error("expected the fetch error")
	}
	if !strings.Contains(buf.String(), "500") {
		t.Errorf("missing status code:\n%s", buf.String())
	}
}
