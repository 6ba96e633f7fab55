// Package metrics provides Prometheus metrics for observability.
//
// This package exposes metrics for protocol version negotiation:
//   - Negotiation counters by outcome (accepted, rejected)
//   - Accepted sessions per upstream protocol version
//   - Rejections by reason (client_outdated, server_outdated, unknown)
//   - The number of versions the registry supports
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus format,
// or mounted on the status server through Server.Handler.
//
// Usage:
//
//	negotiationMetrics := metrics.NewNegotiationMetrics()
//	negotiator := negotiate.New(registry, negotiate.WithMetrics(negotiationMetrics))
//
//	metricsServer := metrics.NewServer(":9090", logger)
//	metricsServer.Start()
package metrics
