// Package loader runs a pool of workers that stream JSON-lines reading
// objects from S3, decode them and write them in batches to PostgreSQL and
// any other configured writer, checkpointing progress as it goes.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gurre/cloudlab/aws"
	"github.com/gurre/cloudlab/checkpoint"
	"github.com/gurre/cloudlab/config"
	"github.com/gurre/cloudlab/metrics"
	"github.com/gurre/cloudlab/notify"
	"github.com/gurre/cloudlab/reading"
	"github.com/gurre/s3streamer"
	"go.uber.org/zap"
)

// Streamer calls fn for every line of an S3 object starting at offset. The
// offset handed to fn is relative to the offset the stream started at.
type Streamer = s3streamer.Streamer

// ErrInterrupted is returned by Run when Shutdown stopped the load before
// every source was loaded.
var ErrInterrupted = errors.New("load interrupted")

// Writer receives batches of decoded readings.
type Writer interface {
	WriteBatch(ctx context.Context, batch []reading.Reading) error
	Flush(ctx context.Context) error
}

// ReportUploader stores the final report.
type ReportUploader interface {
	UploadReport(ctx context.Context, uri string, report metrics.Report) error
}

// Notifier announces a finished load. notify.Publisher satisfies it.
type Notifier interface {
	Post(ctx context.Context, subject, message string) (notify.Result, error)
}

// WorkerStatus tracks one worker for progress logging.
type WorkerStatus struct {
	LastErrorTime time.Time
	StartTime     time.Time
	LastActive    time.Time
	LastError     error
	CurrentSource string
	RowsWritten   int64
	BatchesCount  int64
	ID            int
}

// checkpointInterval is how many batches pass between checkpoint saves
// within one source.
const checkpointInterval = 10

// maxStreamRetries bounds attempts per source object.
const maxStreamRetries = 3

var (
	// retryDelay is the wait before stream attempt n (n >= 1).
	retryDelay = func(n int) time.Duration { return time.Duration(1<<uint(n)) * time.Second }
	// progressInterval is how often progress is logged.
	progressInterval = 5 * time.Second
)

// Loader orchestrates one load run.
type Loader struct {
	cfg      *config.LoadConfig
	streamer Streamer
	decoder  reading.Decoder
	writers  []Writer
	store    checkpoint.Store
	uploader ReportUploader
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	runID    string

	workerStatus map[int]*WorkerStatus
	statusMu     sync.RWMutex

	stopping chan struct{}
	stopOnce sync.Once
}

// New creates a Loader. writers may be empty for a dry run; uploader may be
// nil when no report location is configured.
func New(
	cfg *config.LoadConfig,
	streamer Streamer,
	decoder reading.Decoder,
	writers []Writer,
	store checkpoint.Store,
	uploader ReportUploader,
	log *zap.Logger,
) *Loader {
	runID := uuid.NewString()
	return &Loader{
		cfg:          cfg,
		streamer:     streamer,
		decoder:      decoder,
		writers:      writers,
		store:        store,
		uploader:     uploader,
		metrics:      metrics.NewMetrics(),
		log:          log.With(zap.String("run_id", runID), zap.String("table", cfg.TableName)),
		runID:        runID,
		workerStatus: make(map[int]*WorkerStatus),
		stopping:     make(chan struct{}),
	}
}

// Shutdown asks a running load to stop taking new work. Sources already
// streaming stop at the next batch boundary after checkpointing it. Safe to
// call more than once.
func (l *Loader) Shutdown() {
	l.stopOnce.Do(func() { close(l.stopping) })
}

func (l *Loader) stopRequested() bool {
	select {
	case <-l.stopping:
		return true
	default:
		return false
	}
}

// NotifyWith sends the report summary through n after a successful run.
func (l *Loader) NotifyWith(n Notifier) { l.notifier = n }

// RunID identifies this run in logs and the report.
func (l *Loader) RunID() string { return l.runID }

// Run loads every source and returns the final report. Sources already
// marked complete in the checkpoint are skipped.
func (l *Loader) Run(ctx context.Context) (metrics.Report, error) {
	tracker, err := checkpoint.NewTracker(ctx, l.store, l.cfg.TableName)
	if err != nil {
		return metrics.Report{}, err
	}

	sources := dedupe(l.cfg.Sources)
	tasks := make(chan string)
	results := make(chan error, len(sources))
	var wg sync.WaitGroup

	// A failed worker stops the others and the dispatcher.
	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()
	go l.reportProgress(workCtx)

	workers := min(l.cfg.MaxWorkers, len(sources))
	l.log.Info("starting load",
		zap.Int("sources", len(sources)),
		zap.Int("workers", workers),
		zap.Bool("dry_run", l.cfg.DryRun))

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			l.initWorker(workerID)
			if err := l.worker(workCtx, workerID, tasks, tracker); err != nil {
				results <- fmt.Errorf("worker %d failed: %w", workerID, err)
				stopWork()
			}
		}(i)
	}

dispatch:
	for _, src := range sources {
		select {
		case tasks <- src:
		case <-l.stopping:
			break dispatch
		case <-workCtx.Done():
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()
	close(results)
	stopWork()

	var errs []error
	for err := range results {
		errs = append(errs, err)
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	} else if l.stopRequested() {
		errs = append(errs, ErrInterrupted)
	}

	if err := l.flush(ctx); err != nil {
		errs = append(errs, err)
	}

	report := l.metrics.GenerateReport(l.runID, l.cfg.TableName, l.cfg.DryRun)
	if len(errs) > 0 {
		return report, fmt.Errorf("load failed: %w", errors.Join(errs...))
	}

	if l.cfg.ReportURI != "" && l.uploader != nil {
		if err := l.uploader.UploadReport(ctx, l.cfg.ReportURI, report); err != nil {
			return report, fmt.Errorf("failed to upload report: %w", err)
		}
		l.log.Info("report uploaded", zap.String("uri", l.cfg.ReportURI))
	}

	if l.notifier != nil {
		// The rows are committed; a failed announcement does not fail the load.
		if _, err := l.notifier.Post(ctx, "readings-load "+l.cfg.TableName, report.String()); err != nil {
			l.log.Warn("failed to send load notification", zap.Error(err))
		}
	}
	return report, nil
}

func (l *Loader) flush(ctx context.Context) error {
	var errs []error
	for _, w := range l.writers {
		if err := w.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to flush writers: %w", err)
	}
	return nil
}

// worker loads sources from tasks until the channel closes.
func (l *Loader) worker(ctx context.Context, id int, tasks <-chan string, tracker *checkpoint.Tracker) error {
	for src := range tasks {
		if l.stopRequested() {
			return nil
		}
		l.updateWorkerStatus(id, func(s *WorkerStatus) { s.CurrentSource = src })

		if _, done := tracker.Position(src); done {
			l.log.Info("source already loaded", zap.String("source", src))
			continue
		}
		err := l.loadSource(ctx, id, src, tracker)
		if errors.Is(err, errStopped) {
			l.log.Info("source interrupted", zap.String("source", src))
			return nil
		}
		if err != nil {
			l.recordError(id, err)
			return err
		}
	}
	return nil
}

// errStopped ends a stream at a batch boundary once Shutdown was called.
var errStopped = errors.New("stopped")

// loadSource streams one object with retries. Each attempt restarts from
// the last checkpointed offset with an empty batch; counts of a failed
// attempt past that checkpoint are dropped.
func (l *Loader) loadSource(ctx context.Context, id int, src string, tracker *checkpoint.Tracker) error {
	bucket, key, err := aws.ParseS3URI(src)
	if err != nil {
		return err
	}

	var streamErr error
	for attempt := 0; attempt < maxStreamRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
			l.log.Warn("retrying source",
				zap.String("source", src),
				zap.Int("attempt", attempt+1),
				zap.Error(streamErr))
		}

		offset, _ := tracker.Position(src)
		streamErr = l.stream(ctx, id, src, bucket, key, offset, tracker)
		if streamErr == nil || errors.Is(streamErr, errStopped) {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.recordError(id, streamErr)
	}
	if errors.Is(streamErr, errStopped) {
		return streamErr
	}
	if streamErr != nil {
		return fmt.Errorf("failed to load %s after %d attempts: %w", src, maxStreamRetries, streamErr)
	}

	if l.cfg.DryRun {
		return nil
	}
	if err := tracker.Complete(ctx, src); err != nil {
		return err
	}
	l.log.Info("source loaded", zap.String("source", src))
	return nil
}

// stream is one pass over a source object. Checkpoints record the offset
// just past the last line of a written batch, so a resume starts with the
// first line not yet written. Counts are folded into the run metrics at each
// checkpoint and when the pass completes. After Shutdown the pass ends at the
// next batch boundary.
func (l *Loader) stream(ctx context.Context, id int, src, bucket, key string, offset int64, tracker *checkpoint.Tracker) error {
	batch := make([]reading.Reading, 0, l.cfg.BatchSize)
	var pending metrics.Tally
	var next int64
	var batchesSinceCheckpoint int
	var stopped bool

	err := l.streamer.Stream(ctx, bucket, key, offset, func(line []byte, lineOffset int64) error {
		if stopped {
			return errStopped
		}
		next = offset + lineOffset + int64(len(line)) + 1

		r, err := l.decoder.Decode(line)
		if errors.Is(err, reading.ErrCorrupt) {
			pending.Corrupt++
			l.log.Debug("corrupt line", zap.String("source", src), zap.Int64("offset", offset+lineOffset), zap.Error(err))
			return nil
		}
		if err != nil {
			return err
		}
		if r.Kind() != l.cfg.Kind {
			pending.Skipped++
			return nil
		}

		pending.Read++
		batch = append(batch, r)
		if len(batch) < l.cfg.BatchSize {
			return nil
		}

		batchesSinceCheckpoint++
		save := batchesSinceCheckpoint >= checkpointInterval
		if err := l.writeBatch(ctx, id, src, batch, next, save, tracker, &pending); err != nil {
			return err
		}
		if save {
			batchesSinceCheckpoint = 0
		}
		batch = batch[:0]

		if l.stopRequested() {
			stopped = true
			return l.saveProgress(ctx, tracker, src, next, &pending)
		}
		return nil
	})
	if errors.Is(err, errStopped) {
		return errStopped
	}
	if err != nil {
		return err
	}

	if len(batch) > 0 {
		if err := l.writeBatch(ctx, id, src, batch, next, true, tracker, &pending); err != nil {
			return err
		}
	}
	l.metrics.Add(pending)
	return nil
}

// writeBatch hands batch to every writer and counts it in pending, then
// checkpoints when save is set. Dry runs write nothing and save nothing.
func (l *Loader) writeBatch(ctx context.Context, id int, src string, batch []reading.Reading,
	next int64, save bool, tracker *checkpoint.Tracker, pending *metrics.Tally) error {
	if l.cfg.DryRun {
		return nil
	}

	start := time.Now()
	for _, w := range l.writers {
		if err := w.WriteBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to write batch from %s: %w", src, err)
		}
	}
	pending.WriteTime += time.Since(start)
	pending.Written += int64(len(batch))
	pending.Batches++

	l.updateWorkerStatus(id, func(s *WorkerStatus) {
		s.RowsWritten += int64(len(batch))
		s.BatchesCount++
	})

	if save {
		return l.saveProgress(ctx, tracker, src, next, pending)
	}
	return nil
}

// saveProgress makes next the resume point of src and folds pending into the
// run metrics.
func (l *Loader) saveProgress(ctx context.Context, tracker *checkpoint.Tracker, src string, next int64, pending *metrics.Tally) error {
	if !l.cfg.DryRun {
		if err := tracker.Advance(ctx, src, next); err != nil {
			return err
		}
	}
	l.metrics.Add(*pending)
	*pending = metrics.Tally{}
	return nil
}

func (l *Loader) initWorker(id int) {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	now := time.Now()
	l.workerStatus[id] = &WorkerStatus{ID: id, StartTime: now, LastActive: now}
}

func (l *Loader) updateWorkerStatus(id int, fn func(*WorkerStatus)) {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	if status, ok := l.workerStatus[id]; ok {
		fn(status)
		status.LastActive = time.Now()
	}
}

// Status returns a copy of every worker's status.
func (l *Loader) Status() []WorkerStatus {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	out := make([]WorkerStatus, 0, len(l.workerStatus))
	for _, s := range l.workerStatus {
		out = append(out, *s)
	}
	return out
}

func (l *Loader) recordError(id int, err error) {
	l.metrics.RecordError()
	l.updateWorkerStatus(id, func(s *WorkerStatus) {
		s.LastError = err
		s.LastErrorTime = time.Now()
	})
}

// reportProgress logs totals until ctx ends.
func (l *Loader) reportProgress(ctx context.Context) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var rows, batches int64
			active := 0
			for _, s := range l.Status() {
				if time.Since(s.LastActive) < 2*progressInterval {
					active++
				}
				rows += s.RowsWritten
				batches += s.BatchesCount
			}
			l.log.Info("progress",
				zap.Int64("rows_written", rows),
				zap.Int64("batches", batches),
				zap.Int("active_workers", active))
		case <-ctx.Done():
			return
		}
	}
}

func dedupe(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
