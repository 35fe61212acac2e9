// Package metrics holds the Prometheus collectors for task transitions,
// action dispatches and notifications.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New registers the workflow collectors on reg. A nil reg gets a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{Registry: reg}

	m.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "workflow_task_transitions_total", Help: "Task status transitions applied, by origin and target status."},
		[]string{"from", "to"},
	)
	reg.MustRegister(m.transitions)

	m.dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "workflow_dispatches_total", Help: "Method execution dispatch attempts, by action and result."},
		[]string{"action", "result"},
	)
	reg.MustRegister(m.dispatches)

	m.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "workflow_notifications_total", Help: "Notifications created, by kind."},
		[]string{"kind"},
	)
	reg.MustRegister(m.notifications)

	return m
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Dispatch(action, result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Notifications(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.notifications.WithLabelValues(kind).Add(float64(n))
}
