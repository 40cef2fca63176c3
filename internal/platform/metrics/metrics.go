// Package metrics holds the Prometheus collectors of the heatmap service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heatmap"

// Metrics holds all collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	ActionsIngestedTotal prometheus.Counter
	ActionsDroppedTotal  prometheus.Counter

	RecordsReducedTotal prometheus.Counter
	ReduceDuration      prometheus.Histogram
	HeatmapBuckets      prometheus.Histogram

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheErrorsTotal prometheus.Counter

	ConsumerMessagesTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. Passing a fresh
// prometheus.NewRegistry keeps tests independent of the global registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActionsIngestedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "actions_total",
			Help:      "Total number of playback actions stored",
		}),
		ActionsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duplicate_actions_total",
			Help:      "Total number of uploaded actions ignored as duplicates",
		}),
		RecordsReducedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reduce",
			Name:      "records_total",
			Help:      "Total number of playback records coalesced into heatmaps",
		}),
		ReduceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reduce",
			Name:      "duration_seconds",
			Help:      "Histogram of heatmap computation durations",
			Buckets:   prometheus.DefBuckets,
		}),
		HeatmapBuckets: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reduce",
			Name:      "buckets",
			Help:      "Number of buckets in computed heatmaps",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of heatmap cache hits",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of heatmap cache misses",
		}),
		CacheErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total number of failed cache operations",
		}),
		ConsumerMessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Total number of consumed playback events by outcome",
		}, []string{"outcome"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveIngest(inserted, uploaded int) {
	if m == nil {
		return
	}
	m.ActionsIngestedTotal.Add(float64(inserted))
	if uploaded > inserted {
		m.ActionsDroppedTotal.Add(float64(uploaded - inserted))
	}
}

func (m *Metrics) ObserveReduce(records, buckets int, took time.Duration) {
	if m == nil {
		return
	}
	m.RecordsReducedTotal.Add(float64(records))
	m.HeatmapBuckets.Observe(float64(buckets))
	m.ReduceDuration.Observe(took.Seconds())
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) CacheError() {
	if m != nil {
		m.CacheErrorsTotal.Inc()
	}
}

func (m *Metrics) ConsumerMessage(outcome string) {
	if m != nil {
		m.ConsumerMessagesTotal.WithLabelValues(outcome).Inc()
	}
}
