package reserve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the reserve ledger. The two
// gauges back the public backing dashboard.
type Metrics struct {
	ProvenReserves     prometheus.Gauge
	PendingRedemptions prometheus.Gauge

	DepositsLogged    prometheus.Counter
	WithdrawalsLogged prometheus.Counter

	RedemptionsRequested *prometheus.CounterVec
	RedemptionsProcessed *prometheus.CounterVec
	IssuanceRefusals     prometheus.Counter
}

// NewMetrics creates and registers the reserve metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ProvenReserves: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stablegate_reserve_proven_base_units",
			Help: "Externally attested fiat reserves in base units.",
		}),
		PendingRedemptions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stablegate_reserve_pending_redemptions_base_units",
			Help: "Fiat owed for burned but unprocessed redemptions in base units.",
		}),
		DepositsLogged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_reserve_deposits_logged_total",
			Help: "Fiat deposits logged against the reserve.",
		}),
		WithdrawalsLogged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_reserve_withdrawals_logged_total",
			Help: "Fiat withdrawals logged against the reserve.",
		}),
		RedemptionsRequested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_reserve_redemptions_requested_total",
			Help: "Redemption requests accepted into the queue.",
		}, []string{"lane"}),
		RedemptionsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_reserve_redemptions_processed_total",
			Help: "Redemption payouts recorded.",
		}, []string{"lane"}),
		IssuanceRefusals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_reserve_issuance_refusals_total",
			Help: "Mint requests refused for insufficient reserves.",
		}),
	}
}
