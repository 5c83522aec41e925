package pgdb

import (
	"fmt"
	"time"

	"github.com/gurre/cloudlab/reading"
)

// layouts maps each table kind to the column list appended to CREATE TABLE.
// Every layout is keyed by its dt timestamp.
var layouts = map[reading.Kind]string{
	reading.KindData: `(
	dt timestamp PRIMARY KEY,
	meas real
)`,
	reading.KindTempHum: `(
	dt timestamp PRIMARY KEY,
	temp real,
	hum real
)`,
	reading.KindStatus: `(
	dt timestamp PRIMARY KEY,
	TimeStamp timestamp,
	Record bigint,
	OSVersion varchar(32),
	OSSignature real,
	LastSystemScan timestamp,
	PortStatus1 boolean
)`,
}

// Layout returns the column definition for a kind.
func Layout(kind reading.Kind) (string, error) {
	layout, ok := layouts[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q (known: %v)", ErrUnknownKind, kind, reading.Kinds)
	}
	return layout, nil
}

// Status is one row of the status layout.
type Status struct {
	Time           time.Time
	TimeStamp      time.Time
	Record         int64
	OSVersion      string
	OSSignature    float32
	LastSystemScan time.Time
	PortStatus1    bool
}
