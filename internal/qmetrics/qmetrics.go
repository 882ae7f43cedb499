// Package qmetrics wires the table's internal counters to Prometheus.
// A *Collector is optional everywhere it's accepted: a nil receiver makes
// every method a no-op, so a caller that doesn't want metrics pays
// nothing for them on the hot path.
package qmetrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the gauges and counters exported for one table
// instance. Construct with New and register with Register; both steps
// are optional.
type Collector struct {
	UsedSlots          prometheus.Gauge
	Tombstones         prometheus.Gauge
	Migrations         prometheus.Counter
	RetiredPending     prometheus.Gauge
	ParticipantsActive prometheus.Gauge
}

// New creates a Collector with metrics namespaced under namespace (e.g.
// "quorum"). The returned Collector is not yet registered with any
// registry; call Register to expose it via an HTTP handler.
func New(namespace string) *Collector {
	return &Collector{
		UsedSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "used_slots",
			Help:      "Number of writes that made a key present in the active store.",
		}),
		Tombstones: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tombstones",
			Help:      "Number of successful removes on the active store.",
		}),
		Migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Number of store migrations completed.",
		}),
		RetiredPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retired_pending",
			Help:      "Headers retired but not yet safe to reclaim, summed across participants.",
		}),
		ParticipantsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_active",
			Help:      "Number of registered EBR participants holding a reservation slot.",
		}),
	}
}

// Register registers every metric in c with reg. Safe to call with a nil
// c (returns nil immediately).
func (c *Collector) Register(reg prometheus.Registerer) error {
	if c == nil {
		return nil
	}
	collectors := []prometheus.Collector{
		c.UsedSlots, c.Tombstones, c.Migrations, c.RetiredPending, c.ParticipantsActive,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) SetUsed(n float64) {
	if c == nil {
		return
	}
	c.UsedSlots.Set(n)
}

func (c *Collector) SetTombstones(n float64) {
	if c == nil {
		return
	}
	c.Tombstones.Set(n)
}

func (c *Collector) IncMigrations() {
	if c == nil {
		return
	}
	c.Migrations.Inc()
}

func (c *Collector) SetRetiredPending(n float64) {
	if c == nil {
		return
	}
	c.RetiredPending.Set(n)
}

func (c *Collector) SetParticipantsActive(n float64) {
	if c == nil {
		return
	}
	c.ParticipantsActive.Set(n)
}
