package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.PointsSkipped.WithLabelValues("nodata").Inc()
	assert.Equal(t, 1.0, counterTotal(t, a.PointsSkipped))
	assert.Equal(t, 0.0, counterTotal(t, b.PointsSkipped))
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m.ServerReady)
	assert.Panics(t, func() { NewMetrics() })
}

// counterTotal sums every series of a counter collector.
func counterTotal(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
