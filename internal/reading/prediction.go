package reading

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Prediction is the model's irrigation decision attached to a reading.
type Prediction int

const (
	PredictionUnknown Prediction = iota
	PredictionNone
	PredictionIrrigate
)

// ErrUnknownPrediction is returned for ml_prediction values outside the
// accepted encodings. Callers display such readings as "no irrigation".
var ErrUnknownPrediction = errors.New("unrecognised ml_prediction value")

// The accepted string encodings. Matching is exact: "TRUE" is not accepted.
var (
	irrigateStrings = map[string]bool{"1": true, "1.0": true, "True": true, "true": true}
	noneStrings     = map[string]bool{"0": true, "0.0": true, "False": true, "false": true}
)

// ParsePrediction maps an ml_prediction value to a Prediction.
//
// Irrigate: "1", "1.0", "True", "true", numeric 1, boolean true.
// None:     "0", "0.0", "False", "false", numeric 0, boolean false.
// Anything else, including nil, yields PredictionUnknown and ErrUnknownPrediction.
func ParsePrediction(v any) (Prediction, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return PredictionIrrigate, nil
		}
		return PredictionNone, nil
	case string:
		return parsePredictionString(x)
	case json.Number:
		return parsePredictionString(string(x))
	case float64:
		return parsePredictionFloat(x)
	case float32:
		return parsePredictionFloat(float64(x))
	case int:
		return parsePredictionFloat(float64(x))
	case int32:
		return parsePredictionFloat(float64(x))
	case int64:
		return parsePredictionFloat(float64(x))
	case uint8:
		return parsePredictionFloat(float64(x))
	case fmt.Stringer:
		return parsePredictionString(x.String())
	}
	return PredictionUnknown, fmt.Errorf("%w: %v", ErrUnknownPrediction, v)
}

func parsePredictionString(s string) (Prediction, error) {
	switch {
	case irrigateStrings[s]:
		return PredictionIrrigate, nil
	case noneStrings[s]:
		return PredictionNone, nil
	}
	return PredictionUnknown, fmt.Errorf("%w: %q", ErrUnknownPrediction, s)
}

func parsePredictionFloat(f float64) (Prediction, error) {
	switch f {
	case 1:
		return PredictionIrrigate, nil
	case 0:
		return PredictionNone, nil
	}
	return PredictionUnknown, fmt.Errorf("%w: %s", ErrUnknownPrediction, strconv.FormatFloat(f, 'f', -1, 64))
}

// IrrigationNeeded reports whether the prediction asks for irrigation.
func (p Prediction) IrrigationNeeded() bool {
	return p == PredictionIrrigate
}

// Label is the status shown next to a reading.
func (p Prediction) Label() string {
	if p.IrrigationNeeded() {
		return "Irrigation Needed"
	}
	return "No Irrigation"
}

// Encode returns the canonical storage form: "1", "0" or "" when unknown.
func (p Prediction) Encode() string {
	switch p {
	case PredictionIrrigate:
		return "1"
	case PredictionNone:
		return "0"
	}
	return ""
}

func (p Prediction) String() string {
	switch p {
	case PredictionIrrigate:
		return "irrigate"
	case PredictionNone:
		return "none"
	}
	return "unknown"
}
