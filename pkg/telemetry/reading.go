// Package telemetry defines the sensor reading model and the parsing of
// the two wire shapes it arrives in: a JSON object on the HTTP path and a
// comma-separated line on the broker path.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrValidation indicates a malformed or incomplete payload. It is always
// caller-caused and never retried.
var ErrValidation = errors.New("invalid telemetry payload")

// Fields lists the six sensor fields in wire order. The CSV shape on the
// broker path must carry exactly these, in this order.
var Fields = []string{"air_temp", "humidity", "water_temp", "water_level", "ph", "tds"}

// Reading is one sensor snapshot. ID and RecordedAt are assigned by the
// store at insert time and are zero on readings built from a payload.
type Reading struct {
	ID         int64     `json:"id,omitempty"`
	AirTemp    float64   `json:"air_temp"`
	Humidity   float64   `json:"humidity"`
	WaterTemp  float64   `json:"water_temp"`
	WaterLevel float64   `json:"water_level"`
	PH         float64   `json:"ph"`
	TDS        float64   `json:"tds"`
	RecordedAt time.Time `json:"timestamp,omitempty"`
}

// Values returns the six sensor values in wire order.
func (r Reading) Values() []float64 {
	return []float64{r.AirTemp, r.Humidity, r.WaterTemp, r.WaterLevel, r.PH, r.TDS}
}

func (r *Reading) setField(name string, v float64) {
	switch name {
	case "air_temp":
		r.AirTemp = v
	case "humidity":
		r.Humidity = v
	case "water_temp":
		r.WaterTemp = v
	case "water_level":
		r.WaterLevel = v
	case "ph":
		r.PH = v
	case "tds":
		r.TDS = v
	}
}

// ParseJSON builds a Reading from a JSON object. All six fields must be
// present and numeric; JSON numbers and numeric strings are accepted, as the
// ESP32 firmware has shipped both over time. Extra fields are ignored.
func ParseJSON(raw []byte) (Reading, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Reading{}, fmt.Errorf("%w: not a JSON object: %v", ErrValidation, err)
	}

	var r Reading
	for _, name := range Fields {
		field, ok := payload[name]
		if !ok {
			return Reading{}, fmt.Errorf("%w: missing field %q", ErrValidation, name)
		}
		v, err := parseNumber(field)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: field %q: %v", ErrValidation, name, err)
		}
		r.setField(name, v)
	}
	return r, nil
}

// ParseLine builds a Reading from a comma-separated decimal line as
// published on the telemetry topic. Exactly six fields, fixed order.
func ParseLine(line string) (Reading, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != len(Fields) {
		return Reading{}, fmt.Errorf("%w: expected %d comma-separated fields, got %d",
			ErrValidation, len(Fields), len(parts))
	}

	var r Reading
	for i, name := range Fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: field %q: %q is not numeric", ErrValidation, name, parts[i])
		}
		r.setField(name, v)
	}
	return r, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", s)
		}
		return f, nil
	}
	return 0, errors.New("not a number")
}
