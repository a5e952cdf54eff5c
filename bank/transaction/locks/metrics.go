package locks

import "github.com/prometheus/client_golang/prometheus"

var (
	lockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tinybank",
			Subsystem: "locks",
			Name:      "wait_seconds",
			Help:      "Time spent blocked waiting for a lock grant.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		})

	lockTimeoutCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinybank",
			Subsystem: "locks",
			Name:      "wait_timeout_total",
			Help:      "Counter of lock acquisitions abandoned at the wait bound.",
		})
)

func init() {
	prometheus.MustRegister(lockWaitDuration)
	prometheus.MustRegister(lockTimeoutCounter)
}
