// Package metrics collects counters during a load and produces the final
// report printed to stdout and optionally uploaded to S3.
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/gurre/cloudlab/aws"
)

// Metrics collects load counters. Counters are updated atomically and may be
// recorded from any worker.
type Metrics struct {
	mu sync.RWMutex

	rowsRead     int64 // Lines decoded into readings
	rowsWritten  int64 // Readings written to every writer
	batches      int64 // Batches written
	errors       int64 // Errors encountered
	corruptCount int64 // Lines that failed to decode
	skipped      int64 // Readings of the wrong layout

	writeTime time.Duration // Total time spent in writers
	startTime time.Time
}

// NewMetrics creates a Metrics instance whose clock starts now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordError counts a failure.
func (m *Metrics) RecordError() { atomic.AddInt64(&m.errors, 1) }

// RecordWriteTime adds d to the time spent writing.
func (m *Metrics) RecordWriteTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeTime += d
}

// Tally holds counts kept aside until they are known to stand, such as the
// work of one stream attempt that may still be retried.
type Tally struct {
	Read      int64
	Written   int64
	Batches   int64
	Corrupt   int64
	Skipped   int64
	WriteTime time.Duration
}

// Add folds t into the counters.
func (m *Metrics) Add(t Tally) {
	atomic.AddInt64(&m.rowsRead, t.Read)
	atomic.AddInt64(&m.rowsWritten, t.Written)
	atomic.AddInt64(&m.batches, t.Batches)
	atomic.AddInt64(&m.corruptCount, t.Corrupt)
	atomic.AddInt64(&m.skipped, t.Skipped)
	m.RecordWriteTime(t.WriteTime)
}


// Report is the summary of a load.
type Report struct {
	RunID        string        `json:"runId"`
	Table        string        `json:"table"`
	DryRun       bool          `json:"dryRun,omitempty"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime"`
	RowsRead     int64         `json:"rowsRead"`
	RowsWritten  int64         `json:"rowsWritten"`
	Batches      int64         `json:"batches"`
	CorruptCount int64         `json:"corruptCount"`
	SkippedCount int64         `json:"skippedCount"`
	ErrorCount   int64         `json:"errorCount"`
	Duration     time.Duration `json:"duration"`
	WriteTime    time.Duration `json:"writeTime"`
	Throughput   float64       `json:"throughput"` // rows written per second
}

// GenerateReport snapshots the counters into a Report.
func (m *Metrics) GenerateReport(runID, table string, dryRun bool) Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)

	written := atomic.LoadInt64(&m.rowsWritten)
	var throughput float64
	if duration > 0 {
		throughput = float64(written) / duration.Seconds()
	}

	m.mu.RLock()
	writeTime := m.writeTime
	m.mu.RUnlock()

	return Report{
		RunID:        runID,
		Table:        table,
		DryRun:       dryRun,
		StartTime:    m.startTime,
		EndTime:      endTime,
		RowsRead:     atomic.LoadInt64(&m.rowsRead),
		RowsWritten:  written,
		Batches:      atomic.LoadInt64(&m.batches),
		CorruptCount: atomic.LoadInt64(&m.corruptCount),
		SkippedCount: atomic.LoadInt64(&m.skipped),
		ErrorCount:   atomic.LoadInt64(&m.errors),
		Duration:     duration,
		WriteTime:    writeTime,
		Throughput:   throughput,
	}
}

// MarshalJSON renders durations as strings such as "1.5s".
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration  string `json:"duration"`
		WriteTime string `json:"writeTime"`
	}{
		Alias:     Alias(r),
		Duration:  r.Duration.String(),
		WriteTime: r.WriteTime.String(),
	})
}

// String is the console form of the report.
func (r Report) String() string {
	verb := "Load"
	if r.DryRun {
		verb = "Dry run"
	}
	return fmt.Sprintf(
		"%s of %s completed in %s\n"+
			"Rows read: %d\n"+
			"Rows written: %d in %d batches\n"+
			"Corrupt lines: %d\n"+
			"Skipped readings: %d\n"+
			"Throughput: %.2f rows/sec",
		verb, r.Table, r.Duration,
		r.RowsRead,
		r.RowsWritten, r.Batches,
		r.CorruptCount,
		r.SkippedCount,
		r.Throughput,
	)
}

// S3Uploader writes reports to S3 as JSON objects.
type S3Uploader struct {
	client aws.S3Client
}

// NewS3Uploader creates an uploader using client.
func NewS3Uploader(client aws.S3Client) *S3Uploader {
	return &S3Uploader{client: client}
}

// UploadReport stores report at uri (s3://bucket/key).
func (u *S3Uploader) UploadReport(ctx context.Context, uri string, report Report) error {
	bucket, key, err := aws.ParseS3URI(uri)
	if err != nil {
		return fmt.Errorf("invalid report location: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	contentType := "application/json"
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	}); err != nil {
		return fmt.Errorf("failed to upload report to %s: %w", uri, err)
	}
	return nil
}
