package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceWriteTotal counts price create/update outcomes.
	PriceWriteTotal *prometheus.CounterVec
	// PriceConflictTotal counts rejected overlapping validity intervals.
	PriceConflictTotal prometheus.Counter
	// ShipmentWriteTotal counts shipment create/update outcomes.
	ShipmentWriteTotal *prometheus.CounterVec
	// ReportQueryTotal counts report reads by kind and cache outcome.
	ReportQueryTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceWriteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_write_total",
			Help:      "Count of price write outcomes.",
		}, []string{"op", "result"})
		PriceConflictTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_conflict_total",
			Help:      "Number of price writes rejected for overlapping validity intervals.",
		})
		ShipmentWriteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipment_write_total",
			Help:      "Count of shipment write outcomes.",
		}, []string{"op", "result"})
		ReportQueryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_query_total",
			Help:      "Count of report reads by kind.",
		}, []string{"kind"})

		mustRegisterCollector(reg, PriceWriteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceWriteTotal = v
			}
		})
		mustRegisterCollector(reg, PriceConflictTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PriceConflictTotal = v
			}
		})
		mustRegisterCollector(reg, ShipmentWriteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ShipmentWriteTotal = v
			}
		})
		mustRegisterCollector(reg, ReportQueryTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReportQueryTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
