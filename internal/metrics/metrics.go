// Package metrics exposes Prometheus instrumentation for list synchronization.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks synchronizer activity.
type Metrics struct {
	eventsReceived  *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	reducerOps      *prometheus.CounterVec
	pagesFetched    prometheus.Counter
	pageErrors      prometheus.Counter
	stalePages      prometheus.Counter
	resyncs         *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	collectionSize  prometheus.Gauge
	channelHandlers prometheus.Gauge
	connected       prometheus.Gauge
}

// New registers the synchronizer metrics on reg. A nil registerer yields
// metrics that are tracked but never exported, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_events_received_total",
			Help: "Notifications received from the tenant channel, by action",
		}, []string{"action"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_events_dropped_total",
			Help: "Notifications or reducer inputs dropped, by reason",
		}, []string{"reason"}),
		reducerOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_reducer_operations_total",
			Help: "Reducer operations applied, by operation",
		}, []string{"op"}),
		pagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "livesync_pages_fetched_total",
			Help: "Snapshot pages merged into a collection",
		}),
		pageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "livesync_page_errors_total",
			Help: "Snapshot page fetches that failed",
		}),
		stalePages: factory.NewCounter(prometheus.CounterOpts{
			Name: "livesync_stale_pages_discarded_total",
			Help: "Snapshot pages discarded because the filter changed while in flight",
		}),
		resyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_resyncs_total",
			Help: "Full collection resynchronizations, by trigger",
		}, []string{"trigger"}),
		fetchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livesync_page_fetch_duration_seconds",
			Help:    "Snapshot page fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		collectionSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livesync_collection_size",
			Help: "Tickets currently held in the collection",
		}),
		channelHandlers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livesync_channel_handlers",
			Help: "Handlers registered on the tenant channel",
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livesync_channel_connected",
			Help: "1 when the tenant channel is connected",
		}),
	}
}

// EventReceived counts a decoded notification.
func (m *Metrics) EventReceived(action string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(action).Inc()
}

// EventDropped counts rejected input.
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

// ReducerOp counts an applied reducer operation.
func (m *Metrics) ReducerOp(op string) {
	if m == nil {
		return
	}
	m.reducerOps.WithLabelValues(op).Inc()
}

// PageFetched records a merged page and its fetch latency in seconds.
func (m *Metrics) PageFetched(seconds float64) {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
	m.fetchLatency.Observe(seconds)
}

// PageFailed counts a failed page fetch.
func (m *Metrics) PageFailed() {
	if m == nil {
		return
	}
	m.pageErrors.Inc()
}

// StalePageDiscarded counts a page dropped by the generation check.
func (m *Metrics) StalePageDiscarded() {
	if m == nil {
		return
	}
	m.stalePages.Inc()
}

// Resync counts a full reset and re-fetch.
func (m *Metrics) Resync(trigger string) {
	if m == nil {
		return
	}
	m.resyncs.WithLabelValues(trigger).Inc()
}

// CollectionSize sets the current collection length.
func (m *Metrics) CollectionSize(n int) {
	if m == nil {
		return
	}
	m.collectionSize.Set(float64(n))
}

// ChannelHandlers sets the number of registered channel handlers.
func (m *Metrics) ChannelHandlers(n int) {
	if m == nil {
		return
	}
	m.channelHandlers.Set(float64(n))
}

// Connected records channel connectivity.
func (m *Metrics) Connected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
