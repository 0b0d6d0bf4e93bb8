package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the provider registry.
type Metrics struct {
	AttestationsAccepted prometheus.Counter
	AttestationsRejected *prometheus.CounterVec
	ActiveProviders      prometheus.Gauge
}

// NewMetrics creates and registers the provider registry metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		AttestationsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stablegate_provider_attestations_accepted_total",
			Help: "Attestations accepted and applied to identity records.",
		}),
		AttestationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_provider_attestations_rejected_total",
			Help: "Attestations rejected, by reason code.",
		}, []string{"reason"}),
		ActiveProviders: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stablegate_provider_active",
			Help: "Current number of active providers.",
		}),
	}
}
