package pgdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gurre/cloudlab/reading"
	"github.com/lib/pq"
)

// InsertMeasurement adds a row to a data table. The row is committed by the
// next Commit.
func (d *DB) InsertMeasurement(ctx context.Context, table string, dt time.Time, meas float64) error {
	return d.insert(ctx, table, "(dt, meas) VALUES ($1, $2)", dt, meas)
}

// InsertTempHum adds a row to a temphum table.
func (d *DB) InsertTempHum(ctx context.Context, table string, dt time.Time, temp, hum float64) error {
	return d.insert(ctx, table, "(dt, temp, hum) VALUES ($1, $2, $3)", dt, temp, hum)
}

// InsertStatus adds a row to a status table.
func (d *DB) InsertStatus(ctx context.Context, table string, s Status) error {
	return d.insert(ctx, table,
		"(dt, TimeStamp, Record, OSVersion, OSSignature, LastSystemScan, PortStatus1) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		s.Time, s.TimeStamp, s.Record, s.OSVersion, s.OSSignature, s.LastSystemScan, s.PortStatus1)
}

// InsertReading adds a reading to the table matching its layout.
func (d *DB) InsertReading(ctx context.Context, table string, r reading.Reading) error {
	return d.insertReading(ctx, table, r, "")
}

// skipExisting keeps reloaded rows from failing on the dt primary key.
const skipExisting = " ON CONFLICT (dt) DO NOTHING"

func (d *DB) insertReading(ctx context.Context, table string, r reading.Reading, suffix string) error {
	switch r.Kind() {
	case reading.KindData:
		return d.insert(ctx, table, "(dt, meas) VALUES ($1, $2)"+suffix, r.Time, *r.Meas)
	case reading.KindTempHum:
		return d.insert(ctx, table, "(dt, temp, hum) VALUES ($1, $2, $3)"+suffix, r.Time, *r.Temp, *r.Hum)
	default:
		return fmt.Errorf("reading at %s fits no table layout", r.Time.Format(time.RFC3339))
	}
}

func (d *DB) insert(ctx context.Context, table, tail string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := "INSERT INTO " + pq.QuoteIdentifier(table) + " " + tail
	if err := d.execLocked(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// SelectAll returns every row of a table.
func (d *DB) SelectAll(ctx context.Context, table string) (*Result, error) {
	return d.ExecuteSQL(ctx, "SELECT * FROM "+pq.QuoteIdentifier(table))
}

// ReadingWriter writes batches of readings into one table, committing after
// each batch. Rows whose dt already exists are left untouched, so a resumed
// load may replay part of a source safely.
type ReadingWriter struct {
	mu    sync.Mutex
	db    *DB
	table string
	kind  reading.Kind
}

// NewReadingWriter creates a writer for table, which must have the layout of
// kind.
func NewReadingWriter(db *DB, table string, kind reading.Kind) *ReadingWriter {
	return &ReadingWriter{db: db, table: table, kind: kind}
}

// WriteBatch inserts the readings and commits them together. A failure
// discards the whole batch.
func (w *ReadingWriter) WriteBatch(ctx context.Context, batch []reading.Reading) error {
	if len(batch) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range batch {
		if r.Kind() != w.kind {
			_ = w.db.Rollback()
			return fmt.Errorf("reading at %s does not fit %s table %s", r.Time.Format(time.RFC3339), w.kind, w.table)
		}
		if err := w.db.insertReading(ctx, w.table, r, skipExisting); err != nil {
			return err
		}
	}
	return w.db.Commit()
}

// Flush commits anything still pending.
func (w *ReadingWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.db.Commit()
}
