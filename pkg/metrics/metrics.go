// Package metrics exposes watch delivery counters to Prometheus.
//
// A Collector implements watcher.Recorder and owns its own registry, so
// several collectors can coexist in one process (and in tests).
//
// Example usage:
//
//	m := metrics.New()
//	h, src, err := watcher.Watch(roots, watcher.Options{Recorder: m}, log)
//	...
//	http.Handle("/metrics", m.Handler())
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

const namespace = "fswatch"

// Collector counts batches, events, drops and notifications.
type Collector struct {
	registry *prometheus.Registry

	batches       prometheus.Counter
	records       prometheus.Counter
	events        *prometheus.CounterVec
	dropped       prometheus.Counter
	notifications *prometheus.CounterVec
	filtered      prometheus.Counter
	lastEventID   prometheus.Gauge
}

var _ watcher.Recorder = (*Collector)(nil)

// New creates a Collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newCollector(reg)
}

func newCollector(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "batches_total",
			Help:      "Total number of native callback batches received",
		}),
		records: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "records_total",
			Help:      "Total number of native records received",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_total",
			Help:      "Total number of events queued for the consumer",
		}, []string{"kind"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_dropped_total",
			Help:      "Total number of events discarded because the queue was full",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "notifications_total",
			Help:      "Total number of structural notifications raised",
		}, []string{"kind"}),
		filtered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "events_filtered_total",
			Help:      "Total number of events suppressed by ignore patterns",
		}),
		lastEventID: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "last_event_id",
			Help:      "Newest event ID persisted as resume checkpoint",
		}),
	}
}

// BatchReceived implements watcher.Recorder.
func (c *Collector) BatchReceived(records int) {
	c.batches.Inc()
	c.records.Add(float64(records))
}

// EventDelivered implements watcher.Recorder.
func (c *Collector) EventDelivered(kind watcher.EventKind) {
	c.events.WithLabelValues(kind.String()).Inc()
}

// EventsDropped implements watcher.Recorder.
func (c *Collector) EventsDropped(n int) {
	c.dropped.Add(float64(n))
}

// NotificationRaised implements watcher.Recorder.
func (c *Collector) NotificationRaised(kind watcher.NotificationKind) {
	c.notifications.WithLabelValues(kind.String()).Inc()
}

// EventFiltered counts an event suppressed before output.
func (c *Collector) EventFiltered() {
	c.filtered.Inc()
}

// CheckpointSaved records the event ID most recently persisted.
func (c *Collector) CheckpointSaved(id watcher.EventID) {
	c.lastEventID.Set(float64(id))
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry: c.registry,
	})
}
