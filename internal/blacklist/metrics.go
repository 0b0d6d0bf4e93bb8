package blacklist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the blacklist.
type Metrics struct {
	EntriesCreated prometheus.Counter
	EntriesCleared prometheus.Counter
	Lookups        *prometheus.CounterVec
}

// NewMetrics creates and registers the blacklist metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EntriesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_blacklist_entries_created_total",
			Help: "Blacklist entries created.",
		}),
		EntriesCleared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_blacklist_entries_cleared_total",
			Help: "Blacklist entries deactivated.",
		}),
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_blacklist_lookups_total",
			Help: "Blacklist lookups by cache outcome.",
		}, []string{"source"}),
	}
}
