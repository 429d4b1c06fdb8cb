package metrics_test

import (
	"testing"
	"time"

	"github.com/cflux/flow/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.InstanceStarted("wf-1")
	m.InstanceStarted("wf-1")
	m.InstanceFinished("COMPLETED")
	m.StepTransition("APPROVAL", "APPROVED")
	m.TriggerMatched("invoice.created", "AFTER")
	m.Notification("sent")
	m.ObserveSweep(20 * time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	series := make(map[string]int)

	for _, f := range families {
		names = append(names, f.GetName())
		series[f.GetName()] = len(f.GetMetric())
	}

	assert.ElementsMatch(t, []string{
		"flow_instances_started_total",
		"flow_instances_finished_total",
		"flow_step_transitions_total",
		"flow_trigger_matches_total",
		"flow_sweep_duration_seconds",
		"flow_notifications_total",
	}, names)

	assert.Equal(t, 1, series["flow_instances_started_total"], "one series per workflow")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.InstanceStarted("wf")
		m.InstanceFinished("REJECTED")
		m.StepTransition("DELAY", "PENDING")
		m.TriggerMatched("a", "BEFORE")
		m.Notification("failed")
		m.ObserveSweep(time.Second)
	})
}
