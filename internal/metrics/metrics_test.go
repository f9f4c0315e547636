package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CourageToGroww/secret-keeper/internal/metrics"
)

func TestMetricsGatherReflectsRecordedCounters(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.ExecTotal.WithLabelValues("ok").Inc()
	m.BlockedTotal.Inc()
	m.SecretsLoaded.Set(3)

	families, err := m.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["secret_keeper_exec_total"])
	assert.True(t, names["secret_keeper_blocked_total"])
	assert.True(t, names["secret_keeper_secrets_loaded"])
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	t.Parallel()

	a := metrics.New()
	b := metrics.New()

	a.BlockedTotal.Inc()

	familiesA, err := a.Gather()
	require.NoError(t, err)
	familiesB, err := b.Gather()
	require.NoError(t, err)

	var aCount, bCount float64
	for _, f := range familiesA {
		if f.GetName() == "secret_keeper_blocked_total" {
			aCount = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	for _, f := range familiesB {
		if f.GetName() == "secret_keeper_blocked_total" {
			bCount = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, aCount)
	assert.Equal(t, 0.0, bCount)
}
