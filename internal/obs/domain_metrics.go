package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteRecomputeTotal counts snapshot recomputations by trigger and pricing mode.
	QuoteRecomputeTotal *prometheus.CounterVec
	// QuoteCommandTotal counts applied quote commands by command and outcome.
	QuoteCommandTotal *prometheus.CounterVec
	// QuoteGrandTotal records priced grand totals in the table currency.
	QuoteGrandTotal prometheus.Histogram
	// QuoteValidTotal counts snapshots by overall validity.
	QuoteValidTotal *prometheus.CounterVec
	// ReferenceFetchTotal counts reference data fetch outcomes per source.
	ReferenceFetchTotal *prometheus.CounterVec
	// BreakerState is 0 closed, 1 open, 2 half-open per target.
	BreakerState *prometheus.GaugeVec
)

// MustRegisterDomainMetrics creates the quote collectors once. Until it runs
// the package-level collectors are nil and callers skip observation.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteRecomputeTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_recompute_total",
			Help:      "Count of quote snapshot recomputations.",
		}, []string{"trigger", "mode"}))
		QuoteCommandTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_command_total",
			Help:      "Count of quote commands by outcome.",
		}, []string{"command", "result"}))
		QuoteGrandTotal = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_grand_total",
			Help:      "Grand total of priced quotes.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000},
		}))
		QuoteValidTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_snapshot_valid_total",
			Help:      "Count of published snapshots by overall validity.",
		}, []string{"valid"}))
		ReferenceFetchTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_fetch_total",
			Help:      "Count of price table and area directory fetch outcomes.",
		}, []string{"source", "result"}))
		BreakerState = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per target.",
		}, []string{"target"}))
	})
}
