package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "follow"

// Metrics 关注计数一致性相关指标
type Metrics struct {
	reconcileItems      *prometheus.CounterVec
	failedRelationships prometheus.Counter
	stuckCancellations  prometheus.Gauge
	consumedEvents      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		reconcileItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "reconcile",
				Name:      "items_total",
				Help:      "Relationships visited by reconciliation steps, by step and outcome.",
			}, []string{"step", "outcome"},
		),
		failedRelationships: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "reconcile",
				Name:      "failed_relationships_total",
				Help:      "Relationships moved to FAILED after exhausting increase retries.",
			},
		),
		stuckCancellations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "reconcile",
				Name:      "stuck_cancellations",
				Help:      "CANCELLED relationships whose retry count reached the ceiling in the last pass.",
			},
		),
		consumedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "consumer",
				Name:      "events_total",
				Help:      "Follower events handled by the consumer, by event type and outcome.",
			}, []string{"event_type", "outcome"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.reconcileItems.Describe(ch)
	m.failedRelationships.Describe(ch)
	m.stuckCancellations.Describe(ch)
	m.consumedEvents.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.reconcileItems.Collect(ch)
	m.failedRelationships.Collect(ch)
	m.stuckCancellations.Collect(ch)
	m.consumedEvents.Collect(ch)
}

func (m *Metrics) reconcileItem(step, outcome string) {
	if m == nil {
		return
	}
	m.reconcileItems.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) relationshipFailed() {
	if m == nil {
		return
	}
	m.failedRelationships.Inc()
}

func (m *Metrics) setStuckCancellations(n int) {
	if m == nil {
		return
	}
	m.stuckCancellations.Set(float64(n))
}

func (m *Metrics) eventConsumed(eventType, outcome string) {
	if m == nil {
		return
	}
	m.consumedEvents.WithLabelValues(eventType, outcome).Inc()
}
