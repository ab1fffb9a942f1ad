package reading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	deviceKeys     = []string{"device_id", "deviceId", "device"}
	timestampKeys  = []string{"timestamp", "ts", "time"}
	predictionKeys = []string{"ml_prediction", "prediction", "mlPrediction"}
)

// ErrNotNumeric is wrapped by FieldError when a value cannot become a float.
var ErrNotNumeric = errors.New("not a number")

// FieldError reports a present field whose value could not be coerced.
type FieldError struct {
	Field string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s=%v: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// FromMap normalises one loosely typed source row. Missing metrics become
// NaN; an unrecognised prediction leaves PredictionUnknown without failing
// the row. A present metric that is not numeric fails with *FieldError.
func FromMap(row map[string]any) (Reading, error) {
	r := Empty()

	if v, _, ok := lookup(row, deviceKeys); ok && v != nil {
		r.DeviceID = toString(v)
	}

	if v, _, ok := lookup(row, timestampKeys); ok && v != nil {
		r.Timestamp, r.RawTimestamp = ParseTimestamp(v)
	}

	for _, m := range Metrics {
		v, key, ok := lookup(row, m.keys())
		if !ok {
			continue
		}
		f, err := Float(v)
		if err != nil {
			return Reading{}, &FieldError{Field: key, Value: v, Err: err}
		}
		r.set(m, f)
	}

	if v, _, ok := lookup(row, predictionKeys); ok {
		r.Prediction, _ = ParsePrediction(v)
	}

	return r, nil
}

func lookup(row map[string]any, keys []string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok {
			return v, k, true
		}
	}
	return nil, "", false
}

// Float coerces a numeric encoding to float64. Decimal types from the table
// and document stores arrive as fmt.Stringer values and are parsed from their
// exact decimal text. nil yields NaN.
func Float(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	case fmt.Stringer:
		return parseFloat(x.String())
	}
	return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return f, nil
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
}

// epochMillisCutoff separates epoch seconds from epoch milliseconds.
const epochMillisCutoff = 1e11

// ParseTimestamp accepts epoch seconds (or milliseconds) as a number or
// numeric string, or a formatted date string. It always returns the raw text;
// the time is zero when the value could not be interpreted.
func ParseTimestamp(v any) (time.Time, string) {
	if t, ok := v.(time.Time); ok {
		return t, t.Format(time.RFC3339)
	}

	raw := strings.TrimSpace(toString(v))
	if raw == "" {
		return time.Time{}, ""
	}

	if f, err := Float(v); err == nil && !math.IsNaN(f) {
		return fromEpoch(f), raw
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, raw
		}
	}
	return time.Time{}, raw
}

func fromEpoch(f float64) time.Time {
	if math.Abs(f) >= epochMillisCutoff {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
