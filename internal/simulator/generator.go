// Package simulator publishes synthetic farm readings to MQTT so the
// dashboard has something to show without real hardware.
package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	irrigateBelow = 22.0 // soil moisture that triggers the valve
	irrigateUntil = 45.0 // soil moisture that stops it
	gainPerTick   = 3.5  // soil moisture added per tick while irrigating
	decayPerTick  = 0.8  // soil moisture lost per tick otherwise
)

// predictionEncodings are the ways field devices report the flag. The
// generator rotates through them so consumers see every variant.
var predictionEncodings = [2][]any{
	{"0", 0, "0.0", false, "False", "false"},
	{"1", 1, "1.0", true, "True", "true"},
}

// Generator produces a random walk of plausible readings for one device.
// Safe for concurrent use.
type Generator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	deviceID   string
	seq        int
	irrigating bool

	temperature, humidity, soil, light, co2 float64
}

func NewGenerator(deviceID string, seed int64) *Generator {
	return &Generator{
		rng:         rand.New(rand.NewSource(seed)),
		deviceID:    deviceID,
		temperature: 26,
		humidity:    55,
		soil:        35,
		light:       800,
		co2:         420,
	}
}

// Next advances the walk and returns one message body.
func (g *Generator) Next(now time.Time) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.temperature = clamp(g.temperature+g.rng.NormFloat64()*0.6, 10, 45)
	g.humidity = clamp(g.humidity+g.rng.NormFloat64()*1.5, 15, 95)
	g.light = clamp(g.light+g.rng.NormFloat64()*60, 0, 2000)
	g.co2 = clamp(g.co2+g.rng.NormFloat64()*8, 350, 1200)

	if g.irrigating {
		g.soil += gainPerTick
		if g.soil >= irrigateUntil {
			g.irrigating = false
		}
	} else {
		g.soil -= decayPerTick + g.rng.Float64()*0.4
		if g.soil < irrigateBelow {
			g.irrigating = true
		}
	}
	g.soil = clamp(g.soil, 0, 100)

	rain := 0.0
	if g.rng.Float64() < 0.1 {
		rain = 1
	}

	flag := 0
	if g.irrigating {
		flag = 1
	}
	enc := predictionEncodings[flag]
	pred := enc[g.seq%len(enc)]
	g.seq++

	return map[string]any{
		"device_id":     g.deviceID,
		"timestamp":     now.Unix(),
		"temperature":   round1(g.temperature),
		"humidity":      round1(g.humidity),
		"soilMoisture":  round1(g.soil),
		"light":         math.Round(g.light),
		"rain":          rain,
		"co2":           math.Round(g.co2),
		"ml_prediction": pred,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
