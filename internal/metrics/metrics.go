package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus instruments for the port mapping manager.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	portErrors *prometheus.CounterVec
	dnatRules  prometheus.Gauge
}

// NewMetrics constructs a Metrics instance with an isolated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfwd",
		Name:      "operations_total",
		Help:      "Total number of add/del operations by outcome.",
	}, []string{"op", "outcome"})

	portErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfwd",
		Name:      "port_errors_total",
		Help:      "Total number of per-port failures by reason.",
	}, []string{"reason"})

	dnatRules := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "portfwd",
		Name:      "dnat_rules",
		Help:      "Number of DNAT rules found in the managed chain at the last listing.",
	})

	registry.MustRegister(operations, portErrors, dnatRules)

	return &Metrics{
		registry:   registry,
		operations: operations,
		portErrors: portErrors,
		dnatRules:  dnatRules,
	}
}

// ObserveOperation counts one add or del call.
func (m *Metrics) ObserveOperation(op string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// IncrementPortError increments the per-port failure counter for the provided reason.
func (m *Metrics) IncrementPortError(reason string) {
	m.portErrors.WithLabelValues(reason).Inc()
}

// SetDNATRuleCount records the number of DNAT rules in the live chain.
func (m *Metrics) SetDNATRuleCount(count int) {
	m.dnatRules.Set(float64(count))
}

// Handler exposes the Prometheus scrape handler bound to the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
