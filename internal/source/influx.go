package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/config"
)

// Influx reads one measurement over a trailing window, pivoted so that each
// timestamp becomes one row with a column per field.
type Influx struct {
	query       api.QueryAPI
	bucket      string
	measurement string
	window      time.Duration
	limit       int
	log         zerolog.Logger
}

// NewInflux uses client's query API for cfg.Org.
func NewInflux(client influxdb2.Client, cfg config.InfluxConfig, limit int, log zerolog.Logger) *Influx {
	return &Influx{
		query:       client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: cfg.Measurement,
		window:      cfg.Window,
		limit:       limit,
		log:         log,
	}
}

func (s *Influx) Name() string { return "influx:" + s.bucket + "/" + s.measurement }

// Flux returns the query sent on every fetch.
func (s *Influx) Flux() string {
	window := int64(s.window / time.Second)
	if window < 1 {
		window = 1
	}
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", s.bucket)
	fmt.Fprintf(&b, "  |> range(start: -%ds)\n", window)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q)\n", s.measurement)
	b.WriteString("  |> pivot(rowKey: [\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")\n")
	b.WriteString("  |> group()\n")
	b.WriteString("  |> sort(columns: [\"_time\"], desc: true)\n")
	if s.limit > 0 {
		fmt.Fprintf(&b, "  |> limit(n: %d)\n", s.limit)
	}
	return b.String()
}

func (s *Influx) Fetch(ctx context.Context) (Batch, error) {
	res, err := s.query.Query(ctx, s.Flux())
	if err != nil {
		return Batch{}, fmt.Errorf("%w: flux query: %v", ErrTransport, err)
	}
	defer res.Close()

	var rows []map[string]any
	for res.Next() {
		rows = append(rows, recordRow(res.Record()))
	}
	if err := res.Err(); err != nil {
		return Batch{}, fmt.Errorf("%w: flux result: %v", ErrDecode, err)
	}
	return normalize(rows, s.log), nil
}

// recordRow turns a pivoted Flux record into a raw row. Columns starting with
// an underscore are Flux bookkeeping, except _time which becomes timestamp.
func recordRow(rec *query.FluxRecord) map[string]any {
	row := make(map[string]any, len(rec.Values()))
	for k, v := range rec.Values() {
		if strings.HasPrefix(k, "_") || k == "result" || k == "table" {
			continue
		}
		row[k] = v
	}
	if _, ok := row["timestamp"]; !ok {
		if t := rec.Time(); !t.IsZero() {
			row["timestamp"] = t
		}
	}
	return row
}
