package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nmslite/snmppoller/internal/collector"
	"github.com/nmslite/snmppoller/internal/globals"
)

// Copier is the subset of *pgxpool.Pool the batch writer needs
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// FlushObserver is told about every flush attempt
type FlushObserver interface {
	ObserveFlush(rows int, elapsed time.Duration, err error)
}

type noopFlushObserver struct{}

func (noopFlushObserver) ObserveFlush(int, time.Duration, error) {}

var sampleColumns = []string{"timestamp", "target", "cycle_id", "oid", "kind", "value_text", "value_num"}

// BatchWriter buffers samples and writes them with the COPY protocol,
// either when a batch fills up or on the flush interval
type BatchWriter struct {
	copier   Copier
	observer FlushObserver
	logger   *slog.Logger

	batchSize     int
	flushInterval time.Duration
	maxBufferSize int

	submitCh      chan collector.Sample
	requeueBuffer []collector.Sample
	currentBatch  []collector.Sample

	// owned by the Run goroutine
	consecutiveFailures int
	maxConsecutiveFails int
}

// NewBatchWriter creates a BatchWriter. observer may be nil.
func NewBatchWriter(copier Copier, cfg globals.MetricsConfig, observer FlushObserver, logger *slog.Logger) *BatchWriter {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	flushInterval := cfg.FlushInterval()
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	maxFails := cfg.MaxConsecutiveFails
	if maxFails <= 0 {
		maxFails = 5
	}
	if observer == nil {
		observer = noopFlushObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchWriter{
		copier:              copier,
		observer:            observer,
		logger:              logger.With("component", "batch_writer"),
		batchSize:           batchSize,
		flushInterval:       flushInterval,
		maxBufferSize:       batchSize * 10,
		submitCh:            make(chan collector.Sample, batchSize*2),
		requeueBuffer:       make([]collector.Sample, 0, batchSize),
		currentBatch:        make([]collector.Sample, 0, batchSize),
		maxConsecutiveFails: maxFails,
	}
}

// Submit queues a sample. It blocks while the queue is full, which pushes
// back on the scheduler workers.
func (bw *BatchWriter) Submit(ctx context.Context, s collector.Sample) error {
	select {
	case bw.submitCh <- s:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit cancelled: %w", ctx.Err())
	}
}

// Run is the writer loop. On cancellation whatever is queued is flushed
// one last time.
func (bw *BatchWriter) Run(ctx context.Context) error {
	bw.logger.Info("batch writer starting",
		"batch_size", bw.batchSize,
		"flush_interval", bw.flushInterval,
	)

	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.logger.Info("batch writer shutting down, flushing remaining data")
			bw.drain()
			if err := bw.flush(context.Background()); err != nil {
				bw.logger.Error("final flush failed", "error", err)
			}
			return ctx.Err()

		case s := <-bw.submitCh:
			bw.currentBatch = append(bw.currentBatch, s)
			if len(bw.currentBatch) >= bw.batchSize {
				if err := bw.flush(ctx); err != nil {
					bw.logger.Error("flush on batch size failed", "error", err)
				}
			}

		case <-ticker.C:
			if len(bw.currentBatch) > 0 || len(bw.requeueBuffer) > 0 {
				if err := bw.flush(ctx); err != nil {
					bw.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}
}

func (bw *BatchWriter) drain() {
	for {
		select {
		case s := <-bw.submitCh:
			bw.currentBatch = append(bw.currentBatch, s)
		default:
			return
		}
	}
}

// flush writes the requeued samples followed by the current batch
func (bw *BatchWriter) flush(ctx context.Context) error {
	if len(bw.currentBatch) == 0 && len(bw.requeueBuffer) == 0 {
		return nil
	}

	batch := bw.currentBatch
	bw.currentBatch = make([]collector.Sample, 0, bw.batchSize)
	if len(bw.requeueBuffer) > 0 {
		bw.logger.Info("including requeued samples in flush", "requeued_count", len(bw.requeueBuffer))
		batch = append(bw.requeueBuffer, batch...)
		bw.requeueBuffer = make([]collector.Sample, 0, bw.batchSize)
	}

	start := time.Now()
	err := bw.writeBatch(ctx, batch)
	elapsed := time.Since(start)
	bw.observer.ObserveFlush(len(batch), elapsed, err)

	if err != nil {
		bw.consecutiveFailures++
		bw.logger.Error("batch write failed",
			"error", err,
			"batch_size", len(batch),
			"consecutive_failures", bw.consecutiveFailures,
			"duration_ms", elapsed.Milliseconds(),
		)
		if bw.consecutiveFailures < bw.maxConsecutiveFails {
			bw.requeue(batch)
		} else {
			bw.logger.Error("max consecutive failures reached, dropping batch",
				"consecutive_failures", bw.consecutiveFailures,
				"dropped_count", len(batch),
			)
		}
		return err
	}

	bw.consecutiveFailures = 0
	bw.logger.Debug("batch written successfully",
		"batch_size", len(batch),
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}

func (bw *BatchWriter) writeBatch(ctx context.Context, batch []collector.Sample) error {
	n, err := bw.copier.CopyFrom(ctx, pgx.Identifier{"snmp_samples"}, sampleColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			return sampleRow(batch[i]), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("COPY operation failed: %w", err)
	}
	if n != int64(len(batch)) {
		return fmt.Errorf("COPY count mismatch: expected %d, got %d", len(batch), n)
	}
	return nil
}

func sampleRow(s collector.Sample) []any {
	var num *float64
	if v, ok := s.Number(); ok {
		num = &v
	}
	return []any{s.Timestamp, s.Target, s.CycleID, s.OID, s.Kind.String(), s.Text(), num}
}

// requeue keeps a failed batch for the next flush, up to maxBufferSize
func (bw *BatchWriter) requeue(batch []collector.Sample) {
	available := bw.maxBufferSize - len(bw.requeueBuffer)
	if available <= 0 {
		bw.logger.Warn("requeue buffer full, dropping batch",
			"buffer_size", len(bw.requeueBuffer),
			"dropped_count", len(batch),
		)
		return
	}

	toRequeue := batch
	if len(batch) > available {
		toRequeue = batch[:available]
		bw.logger.Warn("partial requeue due to buffer limit",
			"requested", len(batch),
			"requeued", len(toRequeue),
			"dropped", len(batch)-len(toRequeue),
		)
	}
	bw.requeueBuffer = append(bw.requeueBuffer, toRequeue...)
	bw.logger.Info("batch requeued for retry",
		"requeued_count", len(toRequeue),
		"buffer_size", len(bw.requeueBuffer),
	)
}
