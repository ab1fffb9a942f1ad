// Package config loads farmdash settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/luki/farmdash/internal/alert"
)

// Source kinds.
const (
	SourceDynamoDB = "dynamodb"
	SourceHTTP     = "http"
	SourceInflux   = "influx"
	SourceMongo    = "mongo"
	SourceMQTT     = "mqtt"
)

// Config holds all application configuration.
type Config struct {
	Source     string
	Refresh    RefreshConfig
	Thresholds alert.Thresholds
	DynamoDB   DynamoDBConfig
	HTTP       HTTPSourceConfig
	Influx     InfluxConfig
	Mongo      MongoConfig
	MQTT       MQTTConfig
	Server     ServerConfig
	Logging    LoggingConfig
	DataDir    string
	Record     bool
}

// RefreshConfig controls the polling loop.
type RefreshConfig struct {
	Interval    time.Duration
	Timeout     time.Duration // upper bound for one fetch cycle
	FetchLimit  int           // most recent N readings kept per cycle
	HistoryRows int
}

// DynamoDBConfig selects the scanned table.
type DynamoDBConfig struct {
	Region   string
	Table    string
	Endpoint string // optional, e.g. a local DynamoDB
}

// HTTPSourceConfig configures the JSON endpoint and its circuit breaker.
type HTTPSourceConfig struct {
	Endpoint        string
	Timeout         time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// InfluxConfig configures the InfluxDB v2 source.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	Window      time.Duration
}

// MongoConfig configures the MongoDB source.
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// MQTTConfig configures the live feed source and the simulator.
type MQTTConfig struct {
	BrokerHost string
	BrokerPort int
	BrokerUser string
	BrokerPass string
	UseTLS     bool
	Topic      string
	ClientID   string
	DeviceID   string // device id used by the simulator
}

// ServerConfig configures the headless HTTP service.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string
	Format string // json or console
	Output string // stdout, stderr or a file path
}

// BrokerURL returns the MQTT broker URL.
func (c MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.BrokerHost, c.BrokerPort)
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	e := &envReader{}
	dataDir := e.str("DATA_DIR", defaultDataDir())

	cfg := &Config{
		Source: strings.ToLower(e.str("FARMDASH_SOURCE", SourceDynamoDB)),
		Refresh: RefreshConfig{
			Interval:    e.duration("REFRESH_INTERVAL", 10*time.Second),
			Timeout:     e.duration("REFRESH_TIMEOUT", 8*time.Second),
			FetchLimit:  e.integer("FETCH_LIMIT", 200),
			HistoryRows: e.integer("HISTORY_ROWS", alert.HistoryRows),
		},
		Thresholds: alert.Thresholds{
			TempHigh:        e.float("TEMP_HIGH", alert.DefaultTempHigh),
			HumidityLow:     e.float("HUMIDITY_LOW", alert.DefaultHumidityLow),
			SoilMoistureLow: e.float("SOIL_MOISTURE_LOW", alert.DefaultSoilMoistureLow),
		},
		DynamoDB: DynamoDBConfig{
			Region:   e.str("AWS_REGION", "us-east-1"),
			Table:    e.str("DYNAMODB_TABLE", "SmartFarmData"),
			Endpoint: e.str("DYNAMODB_ENDPOINT", ""),
		},
		HTTP: HTTPSourceConfig{
			Endpoint:        e.str("API_ENDPOINT", ""),
			Timeout:         e.duration("API_TIMEOUT", 5*time.Second),
			BreakerFailures: e.integer("BREAKER_FAILURES", 5),
			BreakerOpenFor:  e.duration("BREAKER_OPEN_FOR", 0),
		},
		Influx: InfluxConfig{
			URL:         e.str("INFLUX_URL", "http://localhost:8086"),
			Token:       e.str("INFLUX_TOKEN", ""),
			Org:         e.str("INFLUX_ORG", "farm"),
			Bucket:      e.str("INFLUX_BUCKET", "sensors"),
			Measurement: e.str("INFLUX_MEASUREMENT", "smart_farm"),
			Window:      e.duration("INFLUX_WINDOW", 24*time.Hour),
		},
		Mongo: MongoConfig{
			URI:            e.str("MONGODB_URI", ""),
			Database:       e.str("MONGODB_DATABASE", "farm"),
			Collection:     e.str("MONGODB_COLLECTION", "readings"),
			ConnectTimeout: e.duration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerHost: e.str("BROKER_HOST", "localhost"),
			BrokerPort: e.integer("BROKER_PORT", 1883),
			BrokerUser: e.str("BROKER_USER", ""),
			BrokerPass: e.str("BROKER_PASS", ""),
			UseTLS:     e.boolean("BROKER_TLS", false),
			Topic:      e.str("MQTT_TOPIC", "farm/readings"),
			ClientID:   e.str("MQTT_CLIENT_ID", ""),
			DeviceID:   e.str("SIM_DEVICE_ID", "esp32-001"),
		},
		Server: ServerConfig{
			Port:           e.str("PORT", "8080"),
			ReadTimeout:    e.duration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   e.duration("WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    e.duration("IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Logging: LoggingConfig{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "console"),
			Output: e.str("LOG_OUTPUT", filepath.Join(dataDir, "farmdash.log")),
		},
		DataDir: dataDir,
		Record:  e.boolean("RECORD", true),
	}

	if err := e.err(); err != nil {
		return nil, err
	}
	cfg.HTTP.BreakerOpenFor = breakerOpenFor(cfg.HTTP.BreakerOpenFor, cfg.Refresh.Interval)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings required by the selected source.
func (c *Config) Validate() error {
	if c.Refresh.Interval <= 0 {
		return errors.New("REFRESH_INTERVAL must be positive")
	}
	if c.Refresh.HistoryRows <= 0 {
		return errors.New("HISTORY_ROWS must be positive")
	}

	switch c.Source {
	case SourceDynamoDB:
		if c.DynamoDB.Table == "" {
			return errors.New("DYNAMODB_TABLE is required")
		}
	case SourceHTTP:
		if c.HTTP.Endpoint == "" {
			return errors.New("API_ENDPOINT is required for the http source")
		}
		if c.HTTP.Timeout <= 0 {
			return errors.New("API_TIMEOUT must be positive")
		}
	case SourceInflux:
		if c.Influx.Token == "" {
			return errors.New("INFLUX_TOKEN is required for the influx source")
		}
	case SourceMongo:
		if c.Mongo.URI == "" {
			return errors.New("MONGODB_URI is required for the mongo source")
		}
	case SourceMQTT:
		if c.MQTT.Topic == "" {
			return errors.New("MQTT_TOPIC is required for the mqtt source")
		}
	default:
		return fmt.Errorf("unknown FARMDASH_SOURCE %q", c.Source)
	}
	return nil
}

// SourceLabel describes the configured source for title bars and logs.
func (c *Config) SourceLabel() string {
	switch c.Source {
	case SourceDynamoDB:
		return "dynamodb:" + c.DynamoDB.Table
	case SourceHTTP:
		return "http:" + c.HTTP.Endpoint
	case SourceInflux:
		return "influx:" + c.Influx.Bucket + "/" + c.Influx.Measurement
	case SourceMongo:
		return "mongo:" + c.Mongo.Database + "." + c.Mongo.Collection
	case SourceMQTT:
		return "mqtt:" + c.MQTT.Topic
	}
	return c.Source
}

// breakerOpenFor keeps an open breaker from outlasting the next scheduled
// refresh, so a recovered endpoint is read on the following cycle. Zero
// means half the interval.
func breakerOpenFor(openFor, interval time.Duration) time.Duration {
	limit := interval / 2
	if limit <= 0 {
		return openFor
	}
	if openFor <= 0 || openFor > limit {
		return limit
	}
	return openFor
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".farmdash"
	}
	return filepath.Join(home, ".farmdash")
}

// envReader collects parse errors so Load can report every bad variable.
type envReader struct {
	errs []error
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func (e *envReader) boolean(key string, def bool) bool {
	switch strings.TrimSpace(os.Getenv(key)) {
	case "":
		return def
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	}
	e.errs = append(e.errs, fmt.Errorf("invalid %s: expected true/false or 1/0", key))
	return def
}

// duration accepts Go durations ("5s", "2m") or plain seconds.
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	e.errs = append(e.errs, fmt.Errorf("invalid %s: %q is not a duration", key, v))
	return def
}

func (e *envReader) list(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
