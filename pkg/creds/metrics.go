package creds

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHit = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "resolver",
			Name:      "cache_hit_total",
			Help:      "Number of credential requests served from the cache",
		},
	)

	cacheMiss = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "resolver",
			Name:      "cache_miss_total",
			Help:      "Number of credential requests that needed a refresh",
		},
	)

	refreshErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "resolver",
			Name:      "refresh_errors_total",
			Help:      "Number of errors refreshing role credentials",
		},
	)

	fetchTimer = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ramcreds",
			Subsystem: "resolver",
			Name:      "fetch_timing_seconds",
			Help:      "Bucketed histogram of role credential fetch timings",

			// 1ms to 4s
			Buckets: prometheus.ExponentialBuckets(.001, 2, 13),
		},
	)
)

func init() {
	prometheus.MustRegister(cacheHit)
	prometheus.MustRegister(cacheMiss)
	prometheus.MustRegister(refreshErrors)
	prometheus.MustRegister(fetchTimer)
}
