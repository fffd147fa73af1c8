package ctrace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for a tracer and its reporters.
// A nil *Metrics records nothing.
type Metrics struct {
	spansStarted     prometheus.Counter
	spansFinished    prometheus.Counter
	activeSpans      prometheus.Gauge
	spanDuration     prometheus.Histogram
	recordsReported  *prometheus.CounterVec
	reportErrors     prometheus.Counter
	collectorDropped *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered. Registering twice with the same registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		spansStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ctrace_spans_started_total",
			Help: "Total number of spans started",
		}),
		spansFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "ctrace_spans_finished_total",
			Help: "Total number of spans finished",
		}),
		activeSpans: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ctrace_spans_unfinished",
			Help: "Number of spans started but not yet finished",
		}),
		spanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctrace_span_duration_seconds",
			Help:    "Duration of finished spans in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to 26s
		}),
		recordsReported: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ctrace_records_reported_total",
			Help: "Total number of encoded span records handed to a reporter",
		}, []string{"event"}),
		reportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ctrace_report_errors_total",
			Help: "Total number of records a reporter failed to accept",
		}),
		collectorDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ctrace_collector_dropped_total",
			Help: "Total number of records dropped by a full collector",
		}, []string{"collector"}),
	}
}

func (m *Metrics) spanStarted() {
	if m == nil {
		return
	}
	m.spansStarted.Inc()
	m.activeSpans.Inc()
}

func (m *Metrics) spanFinished(s *Span) {
	if m == nil {
		return
	}
	m.spansFinished.Inc()
	m.activeSpans.Dec()
	m.spanDuration.Observe(s.Duration().Seconds())
}

// recordReported counts a record by lifecycle event: start, log or finish.
func (m *Metrics) recordReported(event string) {
	if m == nil {
		return
	}
	m.recordsReported.WithLabelValues(event).Inc()
}

func (m *Metrics) reportFailed() {
	if m == nil {
		return
	}
	m.reportErrors.Inc()
}

func (m *Metrics) collectorDrop(name string) {
	if m == nil {
		return
	}
	m.collectorDropped.WithLabelValues(name).Inc()
}
