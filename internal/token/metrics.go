package token

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the token policy engine.
type Metrics struct {
	Minted    prometheus.Counter
	Burned    prometheus.Counter
	Transfers prometheus.Counter
	Denials   *prometheus.CounterVec
	Supply    prometheus.Gauge
}

// NewMetrics creates and registers the token metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Minted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_token_minted_base_units_total",
			Help: "Base units minted.",
		}),
		Burned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_token_burned_base_units_total",
			Help: "Base units burned.",
		}),
		Transfers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_token_transfers_total",
			Help: "Transfers cleared by the policy engine.",
		}),
		Denials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_token_denials_total",
			Help: "Operations denied, by reason code.",
		}, []string{"operation", "reason"}),
		Supply: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stablegate_token_supply_base_units",
			Help: "Issued supply in base units.",
		}),
	}
}
