package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(nil)

	m.Transition("PENDING", "STARTING")
	m.Transition("PENDING", "STARTING")
	m.Dispatch("send_email", "failed")
	m.Notifications("start", 3)
	m.Notifications("start", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("PENDING", "STARTING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("send_email", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.notifications.WithLabelValues("start")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("a", "b")
		m.Dispatch("x", "y")
		m.Notifications("z", 1)
	})
}
