package delegate

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec

	metricsOnce sync.Once
)

// InitMetrics registers the delegate Prometheus metrics. Metrics are
// also registered lazily on first use.
func InitMetrics() {
	metricsOnce.Do(func() {
		operationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretmgr_delegate_operations_total",
				Help: "Total number of delegate operations by final status",
			},
			[]string{"operation", "status"},
		)
		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretmgr_delegate_retries_total",
				Help: "Total number of delegate operation retries",
			},
			[]string{"operation"},
		)
	})
}

func recordOperation(op Operation, status string) {
	InitMetrics()
	operationsTotal.WithLabelValues(string(op), status).Inc()
}

func recordRetry(op Operation) {
	InitMetrics()
	retriesTotal.WithLabelValues(string(op)).Inc()
}
