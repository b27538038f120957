package queue

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// ProcessedTotal counts handled tasks by kind and status (ok, retry, dead).
	ProcessedTotal *prometheus.CounterVec
)

// MustRegisterMetrics initialises and registers the queue collectors.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_processed_total",
			Help:      "Total tasks processed grouped by status",
		}, []string{"kind", "status"})
		if err := reg.Register(ProcessedTotal); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					ProcessedTotal = existing
				}
				return
			}
			panic(fmt.Errorf("register queue metric: %w", err))
		}
	})
}

func countProcessed(kind, status string) {
	if ProcessedTotal != nil {
		ProcessedTotal.WithLabelValues(kind, status).Inc()
	}
}
