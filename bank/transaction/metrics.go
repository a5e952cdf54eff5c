package transaction

import "github.com/prometheus/client_golang/prometheus"

var (
	txnCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinybank",
			Subsystem: "txn",
			Name:      "execute_total",
			Help:      "Counter of executed transactions by kind and outcome.",
		}, []string{"kind", "status"})
)

func init() {
	prometheus.MustRegister(txnCounter)
}
