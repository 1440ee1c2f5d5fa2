package statistics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
	CachePurge  = "purge"
)

var (
	routeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "shrouter_route_duration_seconds",
		Help: "Time spent computing a route",
		Buckets: []float64{
			0.00001, // 10µs
			0.00005, // 50µs
			0.0001,  // 100µs
			0.0005,  // 500µs
			0.001,   // 1ms
			0.005,   // 5ms
			0.01,    // 10ms
			0.05,    // 50ms
		},
	}, []string{"strategy"})

	routesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shrouter_routes_total",
		Help: "Routes computed, by strategy",
	}, []string{"strategy"})

	cacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shrouter_route_cache_events_total",
		Help: "Route cache lookups by outcome",
	}, []string{"outcome"})

	validationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shrouter_validation_failures_total",
		Help: "Statements rejected by validators, by phase and error code",
	}, []string{"phase", "code"})

	snapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shrouter_rule_snapshot_version",
		Help: "Version of the last published sharding rule snapshot",
	})
)

// RecordRoute accounts one computed route.
func RecordRoute(strategy string, d time.Duration) {
	routesTotal.WithLabelValues(strategy).Inc()
	routeDuration.WithLabelValues(strategy).Observe(d.Seconds())
	RouteTimes.Add(strategy, d)
}

func RecordCache(outcome string) {
	cacheEvents.WithLabelValues(outcome).Inc()
}

// RecordValidationFailure counts a rejected statement. phase is "pre" or "post".
func RecordValidationFailure(phase, code string) {
	validationFailures.WithLabelValues(phase, code).Inc()
}

func RecordSnapshotVersion(v uint64) {
	snapshotVersion.Set(float64(v))
}

// RoutesTotal exposes the counter of one strategy.
func RoutesTotal(strategy string) prometheus.Counter {
	return routesTotal.WithLabelValues(strategy)
}

func CacheEvents(outcome string) prometheus.Counter {
	return cacheEvents.WithLabelValues(outcome)
}

func ValidationFailures(phase, code string) prometheus.Counter {
	return validationFailures.WithLabelValues(phase, code)
}

func SnapshotVersion() prometheus.Gauge {
	return snapshotVersion
}
