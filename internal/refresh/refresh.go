// Package refresh runs the fetch, normalise and evaluate cycle on a schedule.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/metrics"
	"github.com/luki/farmdash/internal/reading"
	"github.com/luki/farmdash/internal/source"
)

// State is the outcome of one cycle.
type State int

const (
	NoData State = iota
	Ready
	Error
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Error:
		return "error"
	}
	return "no_data"
}

// Snapshot is everything the presentation layers need from one cycle.
type Snapshot struct {
	Time     time.Time
	Source   string
	Readings []reading.Reading // newest first
	Latest   *reading.Reading
	Alerts   alert.Alerts
	State    State
	Err      error
	Skipped  int
	Took     time.Duration
}

// StatusCode returns the HTTP status of a failed fetch, or 0.
func (s Snapshot) StatusCode() int {
	var se *source.StatusError
	if errors.As(s.Err, &se) {
		return se.Code
	}
	return 0
}

// History returns the alert history table rows.
func (s Snapshot) History(n int) []alert.Row {
	return alert.History(s.Readings, n)
}

// Sink receives every snapshot after it is built.
type Sink interface {
	Publish(Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) Publish(s Snapshot) { f(s) }

// Options configures a Refresher. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration
	Limit      int
	Thresholds alert.Thresholds
	Metrics    *metrics.Collector
	Sinks      []Sink
	Log        zerolog.Logger
}

// Refresher owns one source. Cycles never overlap when driven by Run.
type Refresher struct {
	f    source.Fetcher
	opts Options
	now  func() time.Time
}

func New(f source.Fetcher, opts Options) *Refresher {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Thresholds == (alert.Thresholds{}) {
		opts.Thresholds = alert.DefaultThresholds()
	}
	return &Refresher{f: f, opts: opts, now: time.Now}
}

// AddSink registers s for subsequent cycles. Not safe to call while Run is
// active.
func (r *Refresher) AddSink(s Sink) {
	r.opts.Sinks = append(r.opts.Sinks, s)
}

// Source is the fetcher's name.
func (r *Refresher) Source() string { return r.f.Name() }

// Once runs a single cycle. Failures are reported in the snapshot, never
// retried.
func (r *Refresher) Once(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := r.now()
	batch, err := r.f.Fetch(ctx)
	snap := Snapshot{
		Time:    start,
		Source:  r.f.Name(),
		Took:    r.now().Sub(start),
		Skipped: batch.Skipped,
	}

	switch {
	case err != nil:
		snap.State = Error
		snap.Err = err
		r.opts.Log.Warn().Err(err).Str("source", snap.Source).Msg("fetch failed")
	case len(batch.Readings) == 0:
		snap.State = NoData
	default:
		rs := make([]reading.Reading, len(batch.Readings))
		copy(rs, batch.Readings)
		reading.SortNewestFirst(rs)
		snap.Readings = reading.Newest(rs, r.opts.Limit)
		snap.Latest = &snap.Readings[0]
		snap.Alerts = alert.Evaluate(*snap.Latest, r.opts.Thresholds)
		snap.State = Ready
	}

	if snap.Skipped > 0 {
		r.opts.Log.Warn().Int("skipped", snap.Skipped).Msg("malformed rows skipped")
	}
	r.opts.Log.Debug().
		Str("state", snap.State.String()).
		Int("readings", len(snap.Readings)).
		Dur("took", snap.Took).
		Msg("refresh")

	if m := r.opts.Metrics; m != nil {
		m.ObserveRefresh(snap.State.String(), snap.Took, len(snap.Readings), snap.Skipped, snap.Time)
		if snap.State != Error {
			m.ObserveLatest(snap.Latest, snap.Alerts)
		}
	}
	for _, s := range r.opts.Sinks {
		s.Publish(snap)
	}
	return snap
}

// Run calls Once immediately and then every interval until ctx is done,
// passing each snapshot to fn. A slow cycle delays the next tick instead of
// overlapping it.
func (r *Refresher) Run(ctx context.Context, interval time.Duration, fn func(Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap := r.Once(ctx)
		if fn != nil {
			fn(snap)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
