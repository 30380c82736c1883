// Package metrics provides Prometheus metrics collection for hoard.
//
// Metrics are optional: if InitRegistry is never called, constructors
// return nil and the cache facade falls back to its built-in no-op sink,
// so a cache without metrics pays nothing.
//
// Usage:
//
//	metrics.InitRegistry()
//	c, _ := cache.Open(ctx, root, cache.WithMetrics(metrics.NewCacheMetrics()))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry, write-once via
	// registryOnce.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Safe to call
// more than once; later calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
