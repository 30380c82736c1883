package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One test exercises the whole lifecycle: the registry is process-global
// and write-once, so disabled behavior must be observed before enabling.
func TestCacheMetricsLifecycle(t *testing.T) {
	assert.False(t, IsEnabled())
	assert.Nil(t, NewCacheMetrics(), "disabled metrics yield nil, keeping the facade no-op")
	assert.Empty(t, CacheOptions())

	InitRegistry()
	InitRegistry() // idempotent
	require.True(t, IsEnabled())

	m := NewCacheMetrics()
	require.NotNil(t, m)
	assert.Len(t, CacheOptions(), 1)

	m.WriteCommitted(100)
	m.WriteCommitted(50)
	m.ReadServed(100)
	m.Miss()
	m.VerifyFailed()
	m.EntryRemoved()

	families, err := GetRegistry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			values[mf.GetName()] += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), values["hoard_write_operations_total"])
	assert.Equal(t, float64(150), values["hoard_write_bytes_total"])
	assert.Equal(t, float64(1), values["hoard_read_operations_total"])
	assert.Equal(t, float64(100), values["hoard_read_bytes_total"])
	assert.Equal(t, float64(1), values["hoard_misses_total"])
	assert.Equal(t, float64(1), values["hoard_verify_failures_total"])
	assert.Equal(t, float64(1), values["hoard_removals_total"])
}
