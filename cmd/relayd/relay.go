package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/relaykit/relay/internal/config"
	"github.com/relaykit/relay/internal/logging"
	"github.com/relaykit/relay/internal/metrics"
	"github.com/relaykit/relay/internal/negotiate"
	"github.com/relaykit/relay/internal/protocol"
	"github.com/relaykit/relay/internal/server"
)

// RelayOptions configures a Relay.
type RelayOptions struct {
	Config   *config.Config
	Logger   *logging.Logger
	Registry *protocol.Registry
	Version  string

	// Registerer and Gatherer default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Relay wires the version registry to the status and metrics servers and
// exposes the Negotiator the session layer binds connections through.
type Relay struct {
	opts          RelayOptions
	negotiator    *negotiate.Negotiator
	statusServer  *server.StatusServer
	metricsServer *metrics.Server
}

// NewRelay validates options and builds the relay components.
func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.Config == nil {
		return nil, errors.New("relay: config is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("relay: registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Global()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	negotiationMetrics := metrics.NewNegotiationMetricsWithRegistry(opts.Registerer)
	negotiator := negotiate.New(opts.Registry,
		negotiate.WithMetrics(negotiationMetrics),
		negotiate.WithLogger(opts.Logger.With(map[string]any{"component": "negotiate"})),
	)

	r := &Relay{
		opts:       opts,
		negotiator: negotiator,
	}

	metricsServer := metrics.NewServerWithRegistry(opts.Config.Observability.MetricsAddr, opts.Gatherer, opts.Logger)
	// Without a dedicated metrics address, /metrics is mounted on the status server.
	if opts.Config.Observability.MetricsAddr != "" {
		r.metricsServer = metricsServer
	}

	if opts.Config.Server.StatusAddr != "" {
		r.statusServer = server.NewStatusServer(opts.Config.Server.StatusAddr, opts.Logger)
		r.statusServer.RegisterReadinessCheck(server.NewRegistryChecker(opts.Registry))
		r.statusServer.RegisterHandler("/versions", server.VersionsHandler(opts.Registry))
		if r.metricsServer == nil {
			r.statusServer.RegisterHandler("/metrics", metricsServer.Handler())
		}
	}

	return r, nil
}

// Negotiator returns the negotiator sessions bind through.
func (r *Relay) Negotiator() *negotiate.Negotiator {
	return r.negotiator
}

// StatusAddr returns the bound status address, or "" when disabled.
func (r *Relay) StatusAddr() string {
	if r.statusServer == nil {
		return ""
	}
	return r.statusServer.Addr()
}

// MetricsAddr returns the bound metrics address, or "" when served by the
// status server or disabled.
func (r *Relay) MetricsAddr() string {
	if r.metricsServer == nil {
		return ""
	}
	return r.metricsServer.Addr()
}

// Start starts the HTTP endpoints and logs the supported versions.
func (r *Relay) Start(ctx context.Context) error {
	reg := r.opts.Registry
	r.opts.Logger.Infof("relay starting", map[string]any{
		"version":           r.opts.Version,
		"supportedVersions": reg.SupportedVersionsString(),
		"defaultVersion":    reg.Default().Label,
		"downstreamVersion": reg.DownstreamLabel(),
	})

	if r.metricsServer != nil {
		if err := r.metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	if r.statusServer != nil {
		if err := r.statusServer.Start(); err != nil {
			if r.metricsServer != nil {
				_ = r.metricsServer.Close()
			}
			return fmt.Errorf("start status server: %w", err)
		}
	}
	return ctx.Err()
}

// Shutdown marks the relay unhealthy and closes the HTTP endpoints.
func (r *Relay) Shutdown(ctx context.Context) error {
	var err error
	if r.statusServer != nil {
		r.statusServer.SetShuttingDown()
		if cerr := r.statusServer.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close status server: %w", cerr))
		}
	}
	if r.metricsServer != nil {
		if cerr := r.metricsServer.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close metrics server: %w", cerr))
		}
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}
