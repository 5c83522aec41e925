// Package reading decodes sensor readings stored as JSON lines. Each line
// carries a timestamp and either a single measurement or a
// temperature/humidity pair, matching the data and temphum table layouts.
package reading

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Kind names one of the fixed table layouts.
type Kind string

const (
	KindData    Kind = "data"    // dt + meas
	KindTempHum Kind = "temphum" // dt + temp + hum
	KindStatus  Kind = "status"  // device status record
)

// Kinds lists every known layout in a stable order.
var Kinds = []Kind{KindData, KindTempHum, KindStatus}

// ParseKind validates a layout name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown table kind %q (known: %v)", s, Kinds)
}

// Reading is one timestamped sample. Exactly one of Meas or the Temp/Hum pair
// is set on a well-formed reading.
type Reading struct {
	Time time.Time `json:"dt"`
	Meas *float64  `json:"meas,omitempty"`
	Temp *float64  `json:"temp,omitempty"`
	Hum  *float64  `json:"hum,omitempty"`
}

// Measurement builds a data reading.
func Measurement(t time.Time, meas float64) Reading {
	return Reading{Time: t, Meas: &meas}
}

// TempHum builds a temphum reading.
func TempHum(t time.Time, temp, hum float64) Reading {
	return Reading{Time: t, Temp: &temp, Hum: &hum}
}

// Kind reports the layout the reading fits, or "" when it fits none.
func (r Reading) Kind() Kind {
	switch {
	case r.Meas != nil && r.Temp == nil && r.Hum == nil:
		return KindData
	case r.Meas == nil && r.Temp != nil && r.Hum != nil:
		return KindTempHum
	default:
		return ""
	}
}

// ErrCorrupt is returned when a line is not a well-formed reading.
var ErrCorrupt = errors.New("corrupt line")

// Decoder turns one line into a Reading.
type Decoder interface {
	Decode(line []byte) (Reading, error)
}

// JSONDecoder decodes JSON-lines readings.
type JSONDecoder struct{}

// NewJSONDecoder creates a new JSONDecoder instance
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

// Decode parses a line. Every failure wraps ErrCorrupt so callers can count
// and skip bad lines.
func (d *JSONDecoder) Decode(line []byte) (Reading, error) {
	var r Reading
	if err := json.Unmarshal(line, &r); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Time.IsZero() {
		return Reading{}, fmt.Errorf("%w: missing dt", ErrCorrupt)
	}
	if r.Kind() == "" {
		return Reading{}, fmt.Errorf("%w: want meas or temp and hum", ErrCorrupt)
	}
	return r, nil
}

// Encode renders a reading as a single JSON line without the trailing newline.
func Encode(r Reading) ([]byte, error) {
	return json.Marshal(r)
}
