// Package metrics exposes Prometheus collectors for the workflow engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flow"

// Metrics holds the engine collectors. A nil *Metrics is valid and records
// nothing, so components can run without a registry.
type Metrics struct {
	instancesStarted  *prometheus.CounterVec
	instancesFinished *prometheus.CounterVec
	stepTransitions   *prometheus.CounterVec
	triggerMatches    *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	notifications     *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		instancesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_started_total",
			Help:      "Workflow instances started, by workflow.",
		}, []string{"workflow"}),
		instancesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_finished_total",
			Help:      "Workflow instances that reached a terminal status.",
		}, []string{"status"}),
		stepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_transitions_total",
			Help:      "Instance step status transitions, by step type and new status.",
		}, []string{"type", "status"}),
		triggerMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_matches_total",
			Help:      "Triggers that matched a fired action.",
		}, []string{"action", "timing"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of delay sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) InstanceStarted(workflowID string) {
	if m == nil {
		return
	}

	m.instancesStarted.WithLabelValues(workflowID).Inc()
}

func (m *Metrics) InstanceFinished(status string) {
	if m == nil {
		return
	}

	m.instancesFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) StepTransition(stepType, status string) {
	if m == nil {
		return
	}

	m.stepTransitions.WithLabelValues(stepType, status).Inc()
}

func (m *Metrics) TriggerMatched(actionKey, timing string) {
	if m == nil {
		return
	}

	m.triggerMatches.WithLabelValues(actionKey, timing).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}

	m.sweepDuration.Observe(d.Seconds())
}

// Notification records a delivery result: "sent", "failed" or "rejected" when
// the circuit breaker refused the call.
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}

	m.notifications.WithLabelValues(result).Inc()
}
