package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/luki/farmdash/internal/config"
)

// maxBody bounds how much of a response is read.
const maxBody = 16 << 20

// maxEnvelopeDepth bounds how many nested "body" string layers are decoded.
const maxEnvelopeDepth = 2

// defaultOpenFor replaces a zero BreakerOpenFor, which gobreaker would read
// as a full minute.
const defaultOpenFor = 5 * time.Second

// HTTP fetches readings with a single GET. The response is a JSON array of
// rows, or an envelope object whose "body" holds the array or the array
// encoded as a JSON string. Order is not assumed.
type HTTP struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	log      zerolog.Logger

	mu      sync.Mutex
	lastErr error // most recent failure counted by the breaker
}

// NewHTTP builds the source with its own circuit breaker.
func NewHTTP(cfg config.HTTPSourceConfig, log zerolog.Logger) *HTTP {
	failures := cfg.BreakerFailures
	if failures < 1 {
		failures = 1
	}
	openFor := cfg.BreakerOpenFor
	if openFor <= 0 {
		openFor = defaultOpenFor
	}
	h := &HTTP{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log,
	}
	h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "http-source",
		Timeout: openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures)
		},
		// A status error means the endpoint answered. It is reported every
		// cycle but never opens the breaker.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || errors.As(err, &se)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return h
}

func (h *HTTP) Name() string { return "http:" + h.endpoint }

// Fetch performs the GET and decodes the rows.
func (h *HTTP) Fetch(ctx context.Context) (Batch, error) {
	res, err := h.breaker.Execute(func() (interface{}, error) {
		return h.get(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			if last := h.lastFailure(); last != nil {
				return Batch{}, fmt.Errorf("%w: %s: %w, last failure: %w", ErrTransport, h.endpoint, err, last)
			}
			return Batch{}, fmt.Errorf("%w: %s: %w", ErrTransport, h.endpoint, err)
		}
		var se *StatusError
		if !errors.As(err, &se) {
			h.mu.Lock()
			h.lastErr = err
			h.mu.Unlock()
		}
		return Batch{}, err
	}

	rows, err := DecodeRows(res.([]byte))
	if err != nil {
		return Batch{}, err
	}
	return normalize(rows, h.log), nil
}

func (h *HTTP) lastFailure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *HTTP) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrTransport, h.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	h.log.Debug().Int("bytes", len(body)).Dur("took", time.Since(start)).Msg("fetched")
	return body, nil
}

// DecodeRows decodes a JSON array of objects, unwrapping a {"body": ...}
// envelope whose body is either the array or a JSON string containing it.
// Numbers are kept as json.Number. An empty body, as sent with 204, holds
// no rows.
func DecodeRows(data []byte) ([]map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return decodeRows(data, 0)
}

func decodeRows(data []byte, depth int) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch x := v.(type) {
	case []any:
		return objects(x)
	case map[string]any:
		inner, ok := x["body"]
		if !ok {
			return nil, fmt.Errorf("%w: object without body", ErrDecode)
		}
		switch b := inner.(type) {
		case []any:
			return objects(b)
		case string:
			if depth >= maxEnvelopeDepth {
				return nil, fmt.Errorf("%w: envelope nested too deep", ErrDecode)
			}
			return decodeRows([]byte(b), depth+1)
		case nil:
			return nil, nil
		}
		return nil, fmt.Errorf("%w: body is %T", ErrDecode, inner)
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: expected array, got %T", ErrDecode, v)
}

func objects(items []any) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", ErrDecode, i, it)
		}
		rows = append(rows, m)
	}
	return rows, nil
}
