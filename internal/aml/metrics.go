package aml

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the AML workflow.
type Metrics struct {
	AlertsCreated *prometheus.CounterVec
	AlertUpdates  *prometheus.CounterVec
	ActionsTaken  *prometheus.CounterVec
}

// NewMetrics creates and registers the AML metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		AlertsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_aml_alerts_created_total",
			Help: "Alerts created, by severity.",
		}, []string{"severity"}),
		AlertUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_aml_alert_updates_total",
			Help: "Alert status updates, by resulting status.",
		}, []string{"status"}),
		ActionsTaken: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stablegate_aml_actions_total",
			Help: "Enforcement actions taken, by action.",
		}, []string{"action"}),
	}
}
