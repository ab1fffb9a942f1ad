package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("FARMDASH_SOURCE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != SourceDynamoDB {
		t.Errorf("Source = %q", cfg.Source)
	}
	if cfg.DynamoDB.Table != "SmartFarmData" || cfg.DynamoDB.Region != "us-east-1" {
		t.Errorf("DynamoDB = %+v", cfg.DynamoDB)
	}
	if cfg.Refresh.Interval != 10*time.Second {
		t.Errorf("Interval = %v", cfg.Refresh.Interval)
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("HTTP timeout = %v", cfg.HTTP.Timeout)
	}
	if cfg.Thresholds.TempHigh != 35 || cfg.Thresholds.HumidityLow != 30 || cfg.Thresholds.SoilMoistureLow != 20 {
		t.Errorf("Thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Refresh.HistoryRows != 20 {
		t.Errorf("HistoryRows = %d", cfg.Refresh.HistoryRows)
	}
}

func TestLoadHTTPSource(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("FARMDASH_SOURCE", "HTTP")
	t.Setenv("API_ENDPOINT", "https://api.example.com/prod/readings")
	t.Setenv("API_TIMEOUT", "3")
	t.Setenv("TEMP_HIGH", "32.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != SourceHTTP {
		t.Errorf("Source = %q", cfg.Source)
	}
	if cfg.HTTP.Timeout != 3*time.Second {
		t.Errorf("API_TIMEOUT in plain seconds: got %v", cfg.HTTP.Timeout)
	}
	if cfg.Thresholds.TempHigh != 32.5 {
		t.Errorf("TempHigh = %v", cfg.Thresholds.TempHigh)
	}
	if !strings.HasPrefix(cfg.SourceLabel(), "http:") {
		t.Errorf("SourceLabel = %q", cfg.SourceLabel())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"http without endpoint", map[string]string{"FARMDASH_SOURCE": "http", "API_ENDPOINT": ""}, "API_ENDPOINT"},
		{"unknown source", map[string]string{"FARMDASH_SOURCE": "csv"}, "unknown FARMDASH_SOURCE"},
		{"bad int", map[string]string{"FETCH_LIMIT": "lots"}, "FETCH_LIMIT"},
		{"bad bool", map[string]string{"RECORD": "maybe"}, "RECORD"},
		{"bad duration", map[string]string{"REFRESH_INTERVAL": "soon"}, "REFRESH_INTERVAL"},
		{"mongo without uri", map[string]string{"FARMDASH_SOURCE": "mongo", "MONGODB_URI": ""}, "MONGODB_URI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATA_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	c := MQTTConfig{BrokerHost: "broker", BrokerPort: 8883, UseTLS: true}
	if got := c.BrokerURL(); got != "ssl://broker:8883" {
		t.Errorf("BrokerURL = %q", got)
	}
}

func TestBreakerOpenForCappedByInterval(t *testing.T) {
	tests := []struct {
		openFor, interval, want time.Duration
	}{
		{0, 10 * time.Second, 5 * time.Second},
		{30 * time.Second, 10 * time.Second, 5 * time.Second},
		{2 * time.Second, 10 * time.Second, 2 * time.Second},
		{3 * time.Second, 0, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := breakerOpenFor(tt.openFor, tt.interval); got != tt.want {
			t.Errorf("breakerOpenFor(%v, %v) = %v, want %v", tt.openFor, tt.interval, got, tt.want)
		}
	}

	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("BREAKER_OPEN_FOR", "30s")
	t.Setenv("REFRESH_INTERVAL", "10s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.BreakerOpenFor != 5*time.Second {
		t.Errorf("BreakerOpenFor = %v, want 5s", cfg.HTTP.BreakerOpenFor)
	}
}
