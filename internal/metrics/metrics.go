// Package metrics exposes refresh and reading metrics for Prometheus.
package metrics

import (
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/reading"
)

const namespace = "farmdash"

// Refresh results.
const (
	ResultReady  = "ready"
	ResultNoData = "no_data"
	ResultError  = "error"
)

// Collector owns a private registry so tests and multiple instances do not
// collide on the global one.
type Collector struct {
	reg *prometheus.Registry

	Refreshes     *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	SkippedRows   prometheus.Counter
	Readings      prometheus.Gauge
	Latest        *prometheus.GaugeVec
	Alerts        *prometheus.GaugeVec
	LastRefresh   prometheus.Gauge
}

func New(source string) *Collector {
	labels := prometheus.Labels{"source": source}
	c := &Collector{
		reg: prometheus.NewRegistry(),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "refreshes_total",
			Help:        "Refresh cycles by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "fetch_duration_seconds",
			Help:        "Time spent fetching from the source.",
			ConstLabels: labels,
			Buckets:     []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		SkippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "skipped_rows_total",
			Help:        "Rows dropped because a field was not numeric.",
			ConstLabels: labels,
		}),
		Readings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "readings",
			Help:        "Readings returned by the last refresh.",
			ConstLabels: labels,
		}),
		Latest: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "latest_value",
			Help:        "Metric values of the newest reading.",
			ConstLabels: labels,
		}, []string{"metric"}),
		Alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "alert_active",
			Help:        "1 when the alert is active for the newest reading.",
			ConstLabels: labels,
		}, []string{"kind"}),
		LastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_refresh_timestamp_seconds",
			Help:        "Unix time of the last refresh.",
			ConstLabels: labels,
		}),
	}
	c.reg.MustRegister(
		c.Refreshes, c.FetchDuration, c.SkippedRows, c.Readings, c.Latest, c.Alerts, c.LastRefresh,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry is the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// ObserveRefresh records one refresh cycle.
func (c *Collector) ObserveRefresh(result string, took time.Duration, readings, skipped int, at time.Time) {
	c.Refreshes.WithLabelValues(result).Inc()
	c.FetchDuration.Observe(took.Seconds())
	c.Readings.Set(float64(readings))
	c.SkippedRows.Add(float64(skipped))
	c.LastRefresh.Set(float64(at.Unix()))
}

// ObserveLatest publishes the newest reading and its alerts. A nil reading
// clears the value gauges. Missing metrics are not exported.
func (c *Collector) ObserveLatest(r *reading.Reading, a alert.Alerts) {
	c.Latest.Reset()
	if r != nil {
		for _, m := range reading.Metrics {
			if v := r.Value(m); !math.IsNaN(v) {
				c.Latest.WithLabelValues(m.Key()).Set(v)
			}
		}
	}
	for _, k := range alert.Kinds {
		v := 0.0
		if a.Has(k) {
			v = 1
		}
		c.Alerts.WithLabelValues(string(k)).Set(v)
	}
}
