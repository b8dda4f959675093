// Package metrics exposes sync queue activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/queue"
)

const namespace = "syncq"

// QueueSizer reports current queue lengths.
type QueueSizer interface {
	PendingCount() int
	FailedCount() int
}

// Collector records drain outcomes. It implements queue.Observer.
type Collector struct {
	registry *prometheus.Registry

	drains        *prometheus.CounterVec
	actions       *prometheus.CounterVec
	drainDuration prometheus.Histogram
	inProgress    prometheus.Gauge
	progress      prometheus.Gauge
}

var _ queue.Observer = (*Collector)(nil)

// New creates a Collector on its own registry, together with the Go and
// process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drains_total",
			Help:      "Completed drain passes by result.",
		}, []string{"result"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Action attempts by outcome.",
		}, []string{"outcome"}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Wall time of drain passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drain_in_progress",
			Help:      "1 while a drain pass is running.",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drain_current_action",
			Help:      "1-based position of the action being attempted.",
		}),
	}

	c.registry.MustRegister(
		c.drains,
		c.actions,
		c.drainDuration,
		c.inProgress,
		c.progress,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

// TrackQueues registers gauges that read queue sizes at scrape time.
func (c *Collector) TrackQueues(q QueueSizer) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_actions",
			Help:      "Actions waiting in the pending queue.",
		}, func() float64 { return float64(q.PendingCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dead_letter_actions",
			Help:      "Actions in the dead-letter queue.",
		}, func() float64 { return float64(q.FailedCount()) }),
	)
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// DrainStarted implements queue.Observer.
func (c *Collector) DrainStarted(int) {
	c.inProgress.Set(1)
	c.progress.Set(0)
}

// DrainProgress implements queue.Observer.
func (c *Collector) DrainProgress(p queue.Progress) {
	c.progress.Set(float64(p.Current))
}

// DrainCompleted implements queue.Observer.
func (c *Collector) DrainCompleted(r queue.DrainResult) {
	c.inProgress.Set(0)
	c.progress.Set(0)

	result := "ok"
	if r.Error != "" {
		result = "aborted"
	}
	c.drains.WithLabelValues(result).Inc()
	c.actions.WithLabelValues("succeeded").Add(float64(r.Succeeded))
	c.actions.WithLabelValues("requeued").Add(float64(r.Requeued))
	c.actions.WithLabelValues("dead_lettered").Add(float64(r.DeadLettered))
	c.drainDuration.Observe(r.Duration.Seconds())
}
