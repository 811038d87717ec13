package connection

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/cdplink/internal/clock"
)

func TestManagersShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	build := func() *Manager {
		return New(Options{
			Endpoint:   "http://localhost:21222",
			Retry:      RetryPolicy{MaxAttempts: 1, BaseWait: base},
			Prober:     &fakeProber{available: []bool{true}},
			Connector:  &fakeConnector{},
			Registerer: reg,
			Sleep:      (&clock.Recorder{}).Sleep,
		})
	}

	var first, second *Manager
	require.NotPanics(t, func() {
		first = build()
		second = build()
	})
	assert.Same(t, first.metrics.Probes, second.metrics.Probes)
	assert.Same(t, first.metrics.LiveHandles, second.metrics.LiveHandles)

	_, err := first.Connect(context.Background())
	require.NoError(t, err)
	_, err = second.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(second.metrics.Probes.WithLabelValues(resultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(first.metrics.LiveHandles))
}

func TestNewMetricsWithoutRegisterer(t *testing.T) {
	m := NewMetrics(nil)
	m.Connects.WithLabelValues(resultOK).Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connects.WithLabelValues(resultOK)))
}
