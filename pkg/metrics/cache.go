package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hoardfs/hoard/pkg/cache"
)

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	writeOperations prometheus.Counter
	writeBytes      prometheus.Counter
	readOperations  prometheus.Counter
	readBytes       prometheus.Counter
	misses          prometheus.Counter
	verifyFailures  prometheus.Counter
	removals        prometheus.Counter
}

// NewCacheMetrics returns a Prometheus-backed cache.Metrics, or nil when
// metrics are disabled (InitRegistry not called). A nil return means the
// facade keeps its no-op sink; CacheOptions wraps the distinction for
// callers assembling a cache.
func NewCacheMetrics() cache.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &cacheMetrics{
		writeOperations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hoard_write_operations_total",
			Help: "Total number of committed cache writes",
		}),
		writeBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hoard_write_bytes_total",
			Help: "Total bytes committed to the content store",
		}),
		readOperations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hoard_read_operations_total",
			Help: "Total number of verified cache reads",
		}),
		readBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hoard_read_bytes_total",
			Help: "Total bytes served from the content store",
		}),
		misses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hoard_misses_total",
			Help: "Total number of lookups that found no entry",
		}),
		verifyFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hoard_verify_failures_total",
			Help: "Total number of integrity or size verification failures",
		}),
		removals: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hoard_removals_total",
			Help: "Total number of removed cache entries",
		}),
	}
}

func (m *cacheMetrics) WriteCommitted(bytes int64) {
	m.writeOperations.Inc()
	m.writeBytes.Add(float64(bytes))
}

func (m *cacheMetrics) ReadServed(bytes int64) {
	m.readOperations.Inc()
	m.readBytes.Add(float64(bytes))
}

func (m *cacheMetrics) Miss() {
	m.misses.Inc()
}

func (m *cacheMetrics) VerifyFailed() {
	m.verifyFailures.Inc()
}

func (m *cacheMetrics) EntryRemoved() {
	m.removals.Inc()
}

// CacheOptions returns the facade options for the current metrics state:
// empty when disabled, a WithMetrics option when enabled.
func CacheOptions() []cache.Option {
	if m := NewCacheMetrics(); m != nil {
		return []cache.Option{cache.WithMetrics(m)}
	}
	return nil
}
