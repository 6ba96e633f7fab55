// Package negotiate binds a connecting session to the codec for the protocol
// version it claims, or rejects it with a reason and a disconnect message.
package negotiate

import (
	"context"

	"github.com/google/uuid"

	"github.com/relaykit/relay/internal/codec"
	"github.com/relaykit/relay/internal/logging"
	"github.com/relaykit/relay/internal/metrics"
	"github.com/relaykit/relay/internal/protocol"
)

// Negotiator performs the one-shot version check done at handshake time.
// It holds no per-session state and is safe for concurrent use.
type Negotiator struct {
	registry *protocol.Registry
	metrics  *metrics.NegotiationMetrics
	logger   *logging.Logger
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithMetrics records negotiation outcomes in m.
func WithMetrics(m *metrics.NegotiationMetrics) Option {
	return func(n *Negotiator) {
		n.metrics = m
	}
}

// WithLogger sets the base logger.
func WithLogger(l *logging.Logger) Option {
	return func(n *Negotiator) {
		n.logger = l
	}
}

// New creates a Negotiator over registry.
func New(registry *protocol.Registry, opts ...Option) *Negotiator {
	n := &Negotiator{
		registry: registry,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.metrics != nil {
		n.metrics.SetSupportedVersions(registry.Len())
	}
	return n
}

// Registry returns the registry the negotiator consults.
func (n *Negotiator) Registry() *protocol.Registry {
	return n.registry
}

// Classify explains why claimed has no codec. It only looks at the bounds of
// the registry; callers should check Lookup first.
func (n *Negotiator) Classify(claimed int) Reason {
	switch {
	case claimed < n.registry.Oldest().Version:
		return ReasonClientOutdated
	case claimed > n.registry.Default().Version:
		return ReasonServerOutdated
	default:
		return ReasonUnknown
	}
}

// Negotiate resolves the codec for the version a session claims. On failure
// it returns an *UnsupportedVersionError; there is no retry, the caller is
// expected to disconnect the session.
//
// The context only carries logging correlation. A correlation ID is minted
// when ctx has none so every handshake can be traced in the logs.
func (n *Negotiator) Negotiate(ctx context.Context, claimed int) (codec.Descriptor, error) {
	correlationID := logging.CorrelationIDFromCtx(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := logging.ContextLogger(ctx, n.logger).WithCorrelationID(correlationID)

	if d, ok := n.registry.Lookup(claimed); ok {
		if n.metrics != nil {
			n.metrics.RecordAccepted(d.Version)
		}
		logger.Debugf("session bound to protocol version", map[string]any{
			"protocolVersion": d.Version,
			"label":           d.Label,
		})
		return d, nil
	}

	err := &UnsupportedVersionError{
		Claimed:   claimed,
		Reason:    n.Classify(claimed),
		Latest:    n.registry.Default().Label,
		Supported: n.registry.SupportedVersionsString(),
	}
	if n.metrics != nil {
		n.metrics.RecordRejected(string(err.Reason))
	}
	logger.Infof("rejected unsupported protocol version", map[string]any{
		"protocolVersion": claimed,
		"reason":          string(err.Reason),
	})
	return codec.Descriptor{}, err
}
