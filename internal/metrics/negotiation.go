package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OutcomeAccepted is the label value for a bound session.
const OutcomeAccepted = "accepted"

// OutcomeRejected is the label value for a rejected handshake.
const OutcomeRejected = "rejected"

// NegotiationMetrics holds metrics about protocol version negotiation.
type NegotiationMetrics struct {
	// NegotiationsTotal counts handshakes by outcome (accepted, rejected).
	NegotiationsTotal *prometheus.CounterVec

	// SessionsByVersion counts accepted sessions per negotiated protocol version.
	// Cardinality is bounded by the number of registered versions.
	SessionsByVersion *prometheus.CounterVec

	// RejectionsTotal counts rejected handshakes by reason
	// (client_outdated, server_outdated, unknown).
	RejectionsTotal *prometheus.CounterVec

	// SupportedVersions is the number of upstream versions in the registry.
	SupportedVersions prometheus.Gauge
}

// NewNegotiationMetrics creates and registers negotiation metrics.
// Uses promauto for automatic registration with the default registry.
func NewNegotiationMetrics() *NegotiationMetrics {
	return NewNegotiationMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewNegotiationMetricsWithRegistry creates negotiation metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewNegotiationMetricsWithRegistry(reg prometheus.Registerer) *NegotiationMetrics {
	factory := promauto.With(reg)

	return &NegotiationMetrics{
		NegotiationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "negotiation",
				Name:      "total",
				Help:      "Total number of protocol version negotiations, broken down by outcome.",
			},
			[]string{"outcome"},
		),
		SessionsByVersion: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "negotiation",
				Name:      "sessions_total",
				Help:      "Total number of sessions bound to each upstream protocol version.",
			},
			[]string{"protocol_version"},
		),
		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "negotiation",
				Name:      "rejections_total",
				Help:      "Total number of rejected negotiations, broken down by reason.",
			},
			[]string{"reason"},
		),
		SupportedVersions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "relay",
				Subsystem: "registry",
				Name:      "supported_versions",
				Help:      "Number of upstream protocol versions the registry accepts.",
			},
		),
	}
}

// RecordAccepted records a session bound to protocolVersion.
func (m *NegotiationMetrics) RecordAccepted(protocolVersion int) {
	m.NegotiationsTotal.WithLabelValues(OutcomeAccepted).Inc()
	m.SessionsByVersion.WithLabelValues(strconv.Itoa(protocolVersion)).Inc()
}

// RecordRejected records a rejected negotiation with the given reason.
func (m *NegotiationMetrics) RecordRejected(reason string) {
	m.NegotiationsTotal.WithLabelValues(OutcomeRejected).Inc()
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// SetSupportedVersions publishes the registry size.
func (m *NegotiationMetrics) SetSupportedVersions(n int) {
	m.SupportedVersions.Set(float64(n))
}
