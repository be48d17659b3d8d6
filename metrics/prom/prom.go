// Package prom exports engine metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/imgprefetch/engine"
)

// Adapter implements engine.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	started  prometheus.Counter
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	evicts   *prometheus.CounterVec
	entries  prometheus.Gauge
	bytes    prometheus.Gauge
	pending  prometheus.Gauge
	inflight prometheus.Gauge
	limit    prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "fetches_started_total",
			Help:        "Fetch attempts started",
			ConstLabels: constLabels,
		}),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "fetches_total",
				Help:        "Finished fetch attempts by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "fetch_duration_seconds",
				Help:        "Fetch attempt duration by outcome",
				Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache removals by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "entries",
			Help:        "Number of cache entries in any state",
			ConstLabels: constLabels,
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "loaded_bytes",
			Help:        "Estimated bytes of loaded entries",
			ConstLabels: constLabels,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "queue_pending",
			Help:        "Entries waiting for dispatch",
			ConstLabels: constLabels,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "fetches_in_flight",
			Help:        "Fetches currently running",
			ConstLabels: constLabels,
		}),
		limit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "concurrency_limit",
			Help:        "In-flight ceiling for the current device/network tiers",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.started, a.outcomes, a.latency, a.evicts,
		a.entries, a.bytes, a.pending, a.inflight, a.limit)
	return a
}

// FetchStarted increments the started counter.
func (a *Adapter) FetchStarted() { a.started.Inc() }

// FetchDone records the outcome and duration of one attempt.
func (a *Adapter) FetchDone(o engine.Outcome, took time.Duration) {
	l := o.String()
	a.outcomes.WithLabelValues(l).Inc()
	a.latency.WithLabelValues(l).Observe(took.Seconds())
}

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r engine.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates gauges for the number of entries and loaded bytes.
func (a *Adapter) Size(entries int, bytes int64) {
	a.entries.Set(float64(entries))
	a.bytes.Set(float64(bytes))
}

// Queue updates the dispatcher gauges.
func (a *Adapter) Queue(pending, inflight, limit int) {
	a.pending.Set(float64(pending))
	a.inflight.Set(float64(inflight))
	a.limit.Set(float64(limit))
}

// Compile-time check: ensure Adapter implements engine.Metrics.
var _ engine.Metrics = (*Adapter)(nil)
