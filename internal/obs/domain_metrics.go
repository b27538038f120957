package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingRunsTotal counts registry runs by domain and outcome.
	PricingRunsTotal *prometheus.CounterVec
	// PricingRunDuration records registry run latency in milliseconds.
	PricingRunDuration *prometheus.HistogramVec
	// PricingAdapterFailures counts adapter calculations that failed and were skipped.
	PricingAdapterFailures *prometheus.CounterVec
	// DiscountLifecycleTotal counts discount attach/detach operations.
	DiscountLifecycleTotal *prometheus.CounterVec
	// RecalculationsTotal counts whole-order recalculations by outcome.
	RecalculationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the pricing collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_runs_total",
			Help:      "Count of pricing registry runs by domain and result.",
		}, []string{"domain", "result"})
		PricingRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_run_duration_ms",
			Help:      "Latency of pricing registry runs in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}, []string{"domain"})
		PricingAdapterFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_adapter_failures_total",
			Help:      "Count of pricing adapter calculations that failed and contributed no rows.",
		}, []string{"domain", "adapter"})
		DiscountLifecycleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_lifecycle_total",
			Help:      "Count of discount lifecycle operations by action.",
		}, []string{"action", "trigger"})
		RecalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_recalculations_total",
			Help:      "Count of whole-order recalculations by result.",
		}, []string{"result"})

		mustRegisterCollector(reg, PricingRunsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingRunsTotal = v
			}
		})
		mustRegisterCollector(reg, PricingRunDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PricingRunDuration = v
			}
		})
		mustRegisterCollector(reg, PricingAdapterFailures, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingAdapterFailures = v
			}
		})
		mustRegisterCollector(reg, DiscountLifecycleTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountLifecycleTotal = v
			}
		})
		mustRegisterCollector(reg, RecalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RecalculationsTotal = v
			}
		})
	})
}

// ObservePricingRun records the outcome and latency of one registry run.
func ObservePricingRun(domain, result string, took time.Duration) {
	if PricingRunsTotal != nil {
		PricingRunsTotal.WithLabelValues(domain, result).Inc()
	}
	if PricingRunDuration != nil {
		PricingRunDuration.WithLabelValues(domain).Observe(DurationMillis(took))
	}
}

// CountAdapterFailure records a skipped adapter.
func CountAdapterFailure(domain, adapter string) {
	if PricingAdapterFailures != nil {
		PricingAdapterFailures.WithLabelValues(domain, adapter).Inc()
	}
}

// CountDiscountLifecycle records a discount attach or detach.
func CountDiscountLifecycle(action, trigger string) {
	if DiscountLifecycleTotal != nil {
		DiscountLifecycleTotal.WithLabelValues(action, trigger).Inc()
	}
}

// CountRecalculation records a whole-order recalculation outcome.
func CountRecalculation(result string) {
	if RecalculationsTotal != nil {
		RecalculationsTotal.WithLabelValues(result).Inc()
	}
}
