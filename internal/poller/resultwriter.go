package poller

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/nmslite/snmppoller/internal/collector"
	"github.com/nmslite/snmppoller/internal/request"
)

// SampleSink accepts samples for persistence
type SampleSink interface {
	Submit(ctx context.Context, s collector.Sample) error
}

// ResultWriter keeps the latest value of every OID per target and forwards
// each sample to the sink when one is configured
type ResultWriter struct {
	logger *slog.Logger
	sink   SampleSink

	mu     sync.RWMutex
	latest map[string]map[string]collector.Sample
}

// NewResultWriter creates a ResultWriter. sink may be nil, in which case
// samples are only cached.
func NewResultWriter(logger *slog.Logger, sink SampleSink) *ResultWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultWriter{
		logger: logger.With("component", "result_writer"),
		sink:   sink,
		latest: make(map[string]map[string]collector.Sample),
	}
}

// Write records the samples of one cycle. Samples of a partial cycle are
// kept; OIDs the cycle did not answer retain their previous value.
func (w *ResultWriter) Write(ctx context.Context, res *collector.Result) {
	if res == nil || len(res.Samples) == 0 {
		return
	}

	w.mu.Lock()
	values, ok := w.latest[res.Target]
	if !ok {
		values = make(map[string]collector.Sample, len(res.Samples))
		w.latest[res.Target] = values
	}
	for _, s := range res.Samples {
		values[s.OID] = s
	}
	w.mu.Unlock()

	if w.sink == nil {
		return
	}
	for _, s := range res.Samples {
		if err := w.sink.Submit(ctx, s); err != nil {
			w.logger.Error("failed to submit sample",
				"target", res.Target,
				"cycle_id", res.CycleID.String(),
				"oid", s.OID,
				"error", err,
			)
			return
		}
	}
	w.logger.Debug("cycle samples submitted",
		"target", res.Target,
		"cycle_id", res.CycleID.String(),
		"count", len(res.Samples),
	)
}

// Latest returns the newest sample of every OID seen for target, in OID
// order. ok is false when the target has never produced a sample.
func (w *ResultWriter) Latest(target string) (samples []collector.Sample, ok bool) {
	w.mu.RLock()
	values, ok := w.latest[target]
	if ok {
		samples = make([]collector.Sample, 0, len(values))
		for _, s := range values {
			samples = append(samples, s)
		}
	}
	w.mu.RUnlock()

	slices.SortFunc(samples, func(a, b collector.Sample) int {
		return request.CompareOID(a.OID, b.OID)
	})
	return samples, ok
}
