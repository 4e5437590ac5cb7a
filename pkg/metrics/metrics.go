package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Swap groups the counters exported by the swap pipeline
type Swap struct {
	priceSourceFailures *prometheus.CounterVec
	priceFallbacks      *prometheus.CounterVec
	cacheSubmissions    *prometheus.CounterVec
	swapOutcomes        *prometheus.CounterVec
	monitorUpdates      *prometheus.CounterVec
}

var (
	swapMetricsOnce sync.Once
	swapRegistry    *Swap
)

// Default returns the process-wide metrics, registering them on first use
func Default() *Swap {
	swapMetricsOnce.Do(func() {
		swapRegistry = &Swap{
			priceSourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "signet_swap",
				Subsystem: "price",
				Name:      "source_failures_total",
				Help:      "Price source attempts that failed, by source.",
			}, []string{"source"}),
			priceFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "signet_swap",
				Subsystem: "price",
				Name:      "resolutions_total",
				Help:      "Resolved prices by origin (live, cached, stale, static, none).",
			}, []string{"origin"}),
			cacheSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "signet_swap",
				Subsystem: "tx_cache",
				Name:      "requests_total",
				Help:      "Transaction cache requests by endpoint and result.",
			}, []string{"endpoint", "result"}),
			swapOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "signet_swap",
				Subsystem: "swap",
				Name:      "attempts_total",
				Help:      "Swap attempts by terminal status.",
			}, []string{"status"}),
			monitorUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "signet_swap",
				Subsystem: "monitor",
				Name:      "updates_total",
				Help:      "Order monitor status reports by status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			swapRegistry.priceSourceFailures,
			swapRegistry.priceFallbacks,
			swapRegistry.cacheSubmissions,
			swapRegistry.swapOutcomes,
			swapRegistry.monitorUpdates,
		)
	})
	return swapRegistry
}

// PriceSourceFailed records a failed attempt against a price source
func (m *Swap) PriceSourceFailed(source string) {
	if m == nil {
		return
	}
	m.priceSourceFailures.WithLabelValues(source).Inc()
}

// PriceResolved records where a resolved price came from
func (m *Swap) PriceResolved(origin string) {
	if m == nil {
		return
	}
	m.priceFallbacks.WithLabelValues(origin).Inc()
}

// CacheRequest records a transaction cache call
func (m *Swap) CacheRequest(endpoint, result string) {
	if m == nil {
		return
	}
	m.cacheSubmissions.WithLabelValues(endpoint, result).Inc()
}

// SwapFinished records the terminal status of a swap attempt
func (m *Swap) SwapFinished(status string) {
	if m == nil {
		return
	}
	m.swapOutcomes.WithLabelValues(status).Inc()
}

// MonitorUpdate records an order monitor report
func (m *Swap) MonitorUpdate(status string) {
	if m == nil {
		return
	}
	m.monitorUpdates.WithLabelValues(status).Inc()
}
