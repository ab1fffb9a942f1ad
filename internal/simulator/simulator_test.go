package simulator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/reading"
)

type memPublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (p *memPublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, payload)
	return nil
}

func TestGeneratorReadingsNormalise(t *testing.T) {
	g := NewGenerator("esp32-001", 42)
	base := time.Unix(1700000000, 0)

	sawIrrigate, sawNone := false, false
	for i := 0; i < 200; i++ {
		payload, err := json.Marshal(g.Next(base.Add(time.Duration(i) * 5 * time.Second)))
		if err != nil {
			t.Fatal(err)
		}
		var row map[string]any
		json.Unmarshal(payload, &row)

		r, err := reading.FromMap(row)
		if err != nil {
			t.Fatalf("message %d does not normalise: %v\n%s", i, err, payload)
		}
		if r.Prediction == reading.PredictionUnknown {
			t.Fatalf("message %d has unknown prediction: %s", i, payload)
		}
		if r.SoilMoisture < 0 || r.SoilMoisture > 100 || r.Temperature < 10 || r.Temperature > 45 {
			t.Errorf("message %d out of range: %+v", i, r)
		}
		if r.Prediction.IrrigationNeeded() {
			sawIrrigate = true
		} else {
			sawNone = true
		}
	}
	if !sawIrrigate || !sawNone {
		t.Errorf("expected both prediction states, irrigate=%v none=%v", sawIrrigate, sawNone)
	}
}

func TestRunStopsAfterDuration(t *testing.T) {
	pub := &memPublisher{}
	n, err := Run(context.Background(), NewGenerator("sim", 1), pub,
		Options{Topic: "farm/readings", Interval: 10 * time.Millisecond, Duration: 55 * time.Millisecond},
		zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if n < 2 || n != len(pub.msgs) {
		t.Errorf("published %d (recorded %d)", n, len(pub.msgs))
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args     []string
		dur, ivl time.Duration
		wantErr  bool
	}{
		{nil, time.Minute, 5 * time.Second, false},
		{[]string{"90"}, 90 * time.Second, 5 * time.Second, false},
		{[]string{"2m", "500ms"}, 2 * time.Minute, 500 * time.Millisecond, false},
		{[]string{"0", "1"}, 0, time.Second, false},
		{[]string{"soon"}, 0, 0, true},
		{[]string{"1m", "0"}, 0, 0, true},
	}
	for _, tt := range tests {
		d, i, err := ParseArgs(tt.args, time.Minute, 5*time.Second)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseArgs(%v) err = %v", tt.args, err)
			continue
		}
		if !tt.wantErr && (d != tt.dur || i != tt.ivl) {
			t.Errorf("ParseArgs(%v) = %v, %v; want %v, %v", tt.args, d, i, tt.dur, tt.ivl)
		}
	}
}
