// Package metrics exposes poll cycle, requester and persistence metrics
// through a dedicated Prometheus registry.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/nmslite/snmppoller/internal/requester"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "snmppoller"

// Metrics implements collector.Observer and poller.Observer
type Metrics struct {
	registry *prometheus.Registry

	requesterDuration *prometheus.HistogramVec
	requesterFailures *prometheus.CounterVec
	cycles            *prometheus.CounterVec
	cycleDuration     *prometheus.HistogramVec
	samples           *prometheus.CounterVec
	pendingTables     *prometheus.GaugeVec
	firstPasses       *prometheus.CounterVec
	targetUp          *prometheus.GaugeVec
	rowsWritten       prometheus.Counter
	flushFailures     prometheus.Counter
	flushDuration     prometheus.Histogram
}

// New creates the metrics and registers them, with the Go runtime and
// process collectors, on a fresh registry
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requesterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "requester_duration_seconds",
			Help:      "Time spent executing one requester of a poll cycle",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target", "group", "strategy"}),
		requesterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requester_failures_total",
			Help:      "Total number of failed requester executions",
		}, []string{"target", "group", "strategy", "reason"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by outcome",
		}, []string{"target", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent running a full poll cycle",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_collected_total",
			Help:      "Total number of values collected",
		}, []string{"target"}),
		pendingTables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tables",
			Help:      "Number of tables still awaiting discovery",
		}, []string{"target"}),
		firstPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_discovery_total",
			Help:      "Total number of table discovery passes by outcome",
		}, []string{"target", "result"}),
		targetUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_up",
			Help:      "Whether the target is below the down threshold (1) or down (0)",
		}, []string{"target"}),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Total number of sample rows copied to the database",
		}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Total number of failed batch writes",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing one batch of samples",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requesterDuration,
		m.requesterFailures,
		m.cycles,
		m.cycleDuration,
		m.samples,
		m.pendingTables,
		m.firstPasses,
		m.targetUp,
		m.rowsWritten,
		m.flushFailures,
		m.flushDuration,
	)
	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequester(target, group string, strategy requester.Strategy, elapsed time.Duration, err error) {
	m.requesterDuration.WithLabelValues(target, group, strategy.String()).Observe(elapsed.Seconds())
	if err != nil {
		m.requesterFailures.WithLabelValues(target, group, strategy.String(), failureReason(err)).Inc()
	}
}

func (m *Metrics) ObserveCycle(target string, elapsed time.Duration, success bool, samples int) {
	result := "success"
	if !success {
		result = "partial"
	}
	m.cycles.WithLabelValues(target, result).Inc()
	m.cycleDuration.WithLabelValues(target).Observe(elapsed.Seconds())
	m.samples.WithLabelValues(target).Add(float64(samples))
}

func (m *Metrics) ObserveFirstPass(target string, pending int, err error) {
	result := "complete"
	if err != nil {
		result = "incomplete"
	}
	m.firstPasses.WithLabelValues(target, result).Inc()
	m.pendingTables.WithLabelValues(target).Set(float64(pending))
}

func (m *Metrics) ObserveTargetState(target string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.targetUp.WithLabelValues(target).Set(v)
}

func (m *Metrics) ObserveFlush(rows int, elapsed time.Duration, err error) {
	m.flushDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.flushFailures.Inc()
		return
	}
	m.rowsWritten.Add(float64(rows))
}

// failureReason keeps the reason label to a fixed set
func failureReason(err error) string {
	var cerr *requester.CycleError
	switch {
	case errors.Is(err, requester.ErrTimeout):
		return "timeout"
	case errors.Is(err, requester.ErrSessionClosed):
		return "session_closed"
	case errors.As(err, &cerr) && cerr.Code > 0:
		return "agent"
	case errors.As(err, &cerr) && cerr.Code == requester.ErrCodeRender:
		return "render"
	}
	return "transport"
}
