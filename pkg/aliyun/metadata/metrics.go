package metadata

import "github.com/prometheus/client_golang/prometheus"

var (
	requestTimer = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ramcreds",
			Subsystem: "metadata",
			Name:      "request_timing_seconds",
			Help:      "Bucketed histogram of metadata service request timings",

			// 1ms to 4s
			Buckets: prometheus.ExponentialBuckets(.001, 2, 13),
		},
		[]string{"call"},
	)

	fetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "metadata",
			Name:      "errors_total",
			Help:      "Number of failed metadata service requests",
		},
		[]string{"call"},
	)
)

func init() {
	prometheus.MustRegister(requestTimer)
	prometheus.MustRegister(fetchErrors)
}
