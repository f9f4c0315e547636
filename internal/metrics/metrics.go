// Package metrics is in-process counters/gauges for exec, policy-block,
// and rotation activity (SPEC_FULL.md DOMAIN STACK). Grounded in the
// teacher's internal/rotation/health.RotationMetrics, but instantiated
// per daemon rather than held behind package-level vars and a
// sync.Once — there is no process-wide registry here, only whatever
// *Metrics the daemon constructs for itself, and it is gathered on
// demand rather than exported over the network (the daemon is reachable
// only through its local socket).
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is one daemon instance's counters, registered to a private
// registry so multiple instances (e.g. in tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	ExecTotal        *prometheus.CounterVec
	BlockedTotal     prometheus.Counter
	RotationTotal    *prometheus.CounterVec
	SecretsLoaded    prometheus.Gauge
	SchedulerState   prometheus.Gauge
}

// New builds a Metrics instance with its own private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ExecTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secret_keeper_exec_total",
			Help: "Total exec requests by outcome (ok, nonzero, error, timeout).",
		}, []string{"outcome"}),
		BlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secret_keeper_blocked_total",
			Help: "Total exec requests rejected by the policy filter.",
		}),
		RotationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secret_keeper_rotation_total",
			Help: "Total rotation attempts by outcome (success, failed).",
		}, []string{"outcome"}),
		SecretsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "secret_keeper_secrets_loaded",
			Help: "Number of secrets currently loaded in the daemon's memory.",
		}),
		SchedulerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "secret_keeper_scheduler_state",
			Help: "Rotation scheduler state (0=stopped, 1=running, 2=rotating).",
		}),
	}

	registry.MustRegister(m.ExecTotal, m.BlockedTotal, m.RotationTotal, m.SecretsLoaded, m.SchedulerState)
	return m
}

// Gather returns the current metric families, for whatever read-only
// diagnostics surface wants to show them — there is no HTTP exporter.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}
