// Package source retrieves the most recent sensor rows from a data store or
// API and normalises them into readings.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/reading"
)

// Fetch errors. Transport and status failures are shown to the user as a
// warning with an empty result; the next refresh is the only retry.
var (
	ErrTransport = errors.New("transport failure")
	ErrDecode    = errors.New("malformed response")
)

// StatusError is returned when an endpoint answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Batch is the normalised result of one fetch.
type Batch struct {
	Readings []reading.Reading
	Skipped  int // rows dropped because a field could not be coerced
}

// Fetcher is implemented by every data source.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) (Batch, error)
}

// normalize converts raw rows, skipping (and logging) the ones that fail.
func normalize(rows []map[string]any, log zerolog.Logger) Batch {
	b := Batch{Readings: make([]reading.Reading, 0, len(rows))}
	for i, row := range rows {
		r, err := reading.FromMap(row)
		if err != nil {
			b.Skipped++
			log.Warn().Err(err).Int("row", i).Msg("skipping malformed row")
			continue
		}
		b.Readings = append(b.Readings, r)
	}
	return b
}
