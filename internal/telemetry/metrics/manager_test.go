package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()
	require.NotNil(t, m)

	m.CounterLogins.With(prometheus.Labels{"zone": "admin", "result": "ok"}).Inc()
	m.CounterLogins.With(prometheus.Labels{"zone": "admin", "result": "ok"}).Inc()
	m.CounterSessionTransitions.With(prometheus.Labels{"to": "anonymous"}).Inc()
	m.GaugeClients.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	logins := byName["portal_test_server_logins"]
	require.NotNil(t, logins)
	require.Len(t, logins.GetMetric(), 1)
	assert.Equal(t, 2.0, logins.GetMetric()[0].GetCounter().GetValue())

	clients := byName["portal_test_server_clients"]
	require.NotNil(t, clients)
	assert.Equal(t, 3.0, clients.GetMetric()[0].GetGauge().GetValue())
}

func TestSetupPrometheus(t *testing.T) {
	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "extra_total", Help: "extra"})
	reg := SetupPrometheus(extra)
	extra.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "extra_total" {
			found = true
		}
	}
	assert.True(t, found)
}
