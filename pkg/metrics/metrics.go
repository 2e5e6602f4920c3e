// Package metrics provides Prometheus instrumentation for sqlpool's object
// pools and statement caches.
//
// # Overview
//
// Event counters are package-level and registered once through promauto.
// Point-in-time sizes (idle and active objects) are read at scrape time by a
// GaugeCollector, so pools never push gauge updates on their hot path.
//
// # Basic Usage
//
//	// Count a borrow served from the idle set
//	metrics.Borrows.WithLabelValues("main", "secondary", metrics.OutcomeIdle).Inc()
//
//	// Track how long a borrower waited
//	timer := metrics.NewTimer("borrow")
//	obj, err := p.BorrowObject(ctx)
//	metrics.BorrowWait.WithLabelValues("main", "secondary").Observe(timer.Stop().Seconds())
//
//	// Expose a pool's gauge
//	prometheus.MustRegister(metrics.NewGaugeCollector("main", func() (int, int) {
//	    g := p.Gauge()
//	    return g.Idle, g.Active
//	}))
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sqlpool"

// Borrow outcomes.
const (
	OutcomeIdle     = "idle"
	OutcomeCreated  = "created"
	OutcomeOverflow = "overflow"
	OutcomeClosed   = "closed"
	OutcomeCanceled = "canceled"
	OutcomeFailed   = "failed"
)

var (
	// Borrows counts completed borrow attempts.
	// Labels: pool, tier (primary/secondary), outcome
	//
	// Example:
	//	metrics.Borrows.WithLabelValues("main", "primary", metrics.OutcomeCreated).Inc()
	Borrows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "borrows_total",
			Help:      "Total number of borrow attempts by outcome",
		},
		[]string{"pool", "tier", "outcome"},
	)

	// ObjectsCreated counts objects made by a factory on behalf of a pool.
	ObjectsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "objects_created_total",
			Help:      "Total number of pooled objects created",
		},
		[]string{"pool", "tier"},
	)

	// ObjectsDestroyed counts objects handed back to the factory for destruction.
	ObjectsDestroyed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "objects_destroyed_total",
			Help:      "Total number of pooled objects destroyed",
		},
		[]string{"pool", "tier"},
	)

	// EvictionRuns counts eviction sweeps that actually inspected the pool.
	EvictionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "eviction_runs_total",
			Help:      "Total number of eviction sweeps",
		},
		[]string{"pool", "tier"},
	)

	// BorrowWait tracks how long borrowers spend blocked, in seconds.
	BorrowWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "borrow_wait_seconds",
			Help:      "Time spent waiting for a pooled object",
			Buckets: []float64{
				1e-6, // 1μs - uncontended
				1e-5,
				1e-4,
				1e-3, // 1ms - short queue
				1e-2,
				1e-1,
				1, // 1s - starved
				10,
			},
		},
		[]string{"pool", "tier"},
	)

	// StatementCache counts statement cache lookups.
	// Labels: result (hit/miss)
	StatementCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statements",
			Name:      "cache_lookups_total",
			Help:      "Total number of prepared statement cache lookups",
		},
		[]string{"result"},
	)
)

// GaugeFunc reports the current idle and active object counts.
type GaugeFunc func() (idle, active int)

// GaugeCollector is a prometheus.Collector that samples a pool's gauge at
// scrape time.
type GaugeCollector struct {
	read   GaugeFunc
	idle   *prometheus.Desc
	active *prometheus.Desc
}

// NewGaugeCollector creates a collector for the named pool. Register it with
// a prometheus.Registerer; it is not registered automatically.
func NewGaugeCollector(pool string, read GaugeFunc) *GaugeCollector {
	labels := prometheus.Labels{"pool": pool}
	return &GaugeCollector{
		read: read,
		idle: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "idle_objects"),
			"Number of idle pooled objects",
			nil, labels,
		),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "active_objects"),
			"Number of borrowed pooled objects",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *GaugeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.idle
	ch <- c.active
}

// Collect implements prometheus.Collector.
func (c *GaugeCollector) Collect(ch chan<- prometheus.Metric) {
	idle, active := c.read()
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(idle))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(active))
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
