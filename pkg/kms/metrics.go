package kms

import "github.com/prometheus/client_golang/prometheus"

var (
	callTimer = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ramcreds",
			Subsystem: "kms",
			Name:      "call_timing_seconds",
			Help:      "Bucketed histogram of KMS call timings",

			// 1ms to 4s
			Buckets: prometheus.ExponentialBuckets(.001, 2, 13),
		},
		[]string{"action"},
	)

	callErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "kms",
			Name:      "call_errors_total",
			Help:      "Number of failed KMS calls",
		},
		[]string{"action", "reason"},
	)

	secretCacheHit = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "kms",
			Name:      "secret_cache_hit_total",
			Help:      "Number of secret values served from the cache",
		},
	)
)

func init() {
	prometheus.MustRegister(callTimer)
	prometheus.MustRegister(callErrors)
	prometheus.MustRegister(secretCacheHit)
}
