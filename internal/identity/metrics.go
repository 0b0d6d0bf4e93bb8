package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the identity registry.
type Metrics struct {
	Registrations prometheus.Counter
	VerifiedUsers prometheus.Gauge
	StatusUpdates *prometheus.CounterVec
}

// NewMetrics creates and registers the identity registry metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_identity_registrations_total",
			Help: "Total identity registrations accepted.",
		}),
		VerifiedUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stablegate_identity_verified_users",
			Help: "Current number of verified users.",
		}),
		StatusUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_identity_status_updates_total",
			Help: "Status updates by resulting status.",
		}, []string{"status"}),
	}
}
