package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	handlerTimer = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ramcreds",
			Subsystem: "agent",
			Name:      "handler_latency_seconds",
			Help:      "Bucketed histogram of handler timings",

			// 1ms to 4s
			Buckets: prometheus.ExponentialBuckets(.001, 2, 13),
		},
		[]string{"handler"},
	)

	credentialFetchError = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "agent",
			Name:      "credential_fetch_errors_total",
			Help:      "Number of errors resolving credentials for a request",
		},
		[]string{"handler"},
	)

	credentialEncodeError = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "agent",
			Name:      "credential_encode_errors_total",
			Help:      "Number of errors encoding credentials",
		},
		[]string{"handler"},
	)

	success = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "agent",
			Name:      "success_total",
			Help:      "Number of successful responses from a handler",
		},
		[]string{"handler"},
	)

	responses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ramcreds",
			Subsystem: "agent",
			Name:      "responses_total",
			Help:      "Responses from agent handlers",
		},
		[]string{"handler", "code"},
	)
)

func init() {
	prometheus.MustRegister(handlerTimer)
	prometheus.MustRegister(credentialFetchError)
	prometheus.MustRegister(credentialEncodeError)
	prometheus.MustRegister(success)
	prometheus.MustRegister(responses)
}
