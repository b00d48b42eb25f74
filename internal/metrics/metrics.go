// Package metrics exposes Prometheus instruments for ingestion and view
// synthesis.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lpagg"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	ApplyDuration    prometheus.Histogram
	BalanceFailures  prometheus.Counter
	FeedErrors       *prometheus.CounterVec
	ViewSyncs        *prometheus.CounterVec
	LastEventTime    prometheus.Gauge
	CheckpointHeight prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Events handled by kind and outcome",
		}, []string{"kind", "outcome"}),
		ApplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "apply_duration_seconds",
			Help:      "Time spent persisting bucket updates for one swap",
			Buckets:   prometheus.DefBuckets,
		}),
		BalanceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "balance_failures_total",
			Help:      "Balance queries that failed or timed out",
		}),
		FeedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "errors_total",
			Help:      "Feed records that could not be handled",
		}, []string{"source"}),
		ViewSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "views",
			Name:      "syncs_total",
			Help:      "View synthesis runs by result",
		}, []string{"result"}),
		LastEventTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "last_event_timestamp_seconds",
			Help:      "Timestamp of the last applied swap",
		}),
		CheckpointHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "checkpoint_block",
			Help:      "Last block committed by the chain feed",
		}),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Event(kind, outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveApply(d time.Duration) {
	if m == nil {
		return
	}
	m.ApplyDuration.Observe(d.Seconds())
}

func (m *Metrics) BalanceFailed() {
	if m == nil {
		return
	}
	m.BalanceFailures.Inc()
}

func (m *Metrics) FeedError(source string) {
	if m == nil {
		return
	}
	m.FeedErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) ViewSync(result string) {
	if m == nil {
		return
	}
	m.ViewSyncs.WithLabelValues(result).Inc()
}

func (m *Metrics) EventTime(ts int64) {
	if m == nil {
		return
	}
	m.LastEventTime.Set(float64(ts))
}

func (m *Metrics) Checkpoint(block uint64) {
	if m == nil {
		return
	}
	m.CheckpointHeight.Set(float64(block))
}
