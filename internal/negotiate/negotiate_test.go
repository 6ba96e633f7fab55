package negotiate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/relay/internal/logging"
	"github.com/relaykit/relay/internal/metrics"
	"github.com/relaykit/relay/internal/protocol"
)

func newTestNegotiator(t *testing.T) (*Negotiator, *metrics.NegotiationMetrics, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON, Output: &buf})
	m := metrics.NewNegotiationMetricsWithRegistry(prometheus.NewRegistry())
	n := New(protocol.NewDefaultRegistry(), WithMetrics(m), WithLogger(logger))
	return n, m, &buf
}

func TestNegotiate_Accepted(t *testing.T) {
	n, m, _ := newTestNegotiator(t)

	d, err := n.Negotiate(context.Background(), protocol.ProtocolV618)
	require.NoError(t, err)
	assert.Equal(t, protocol.ProtocolV618, d.Version)
	assert.Equal(t, "1.20.30/1.20.32", d.Label)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.NegotiationsTotal.WithLabelValues(metrics.OutcomeAccepted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsByVersion.WithLabelValues("618")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.SupportedVersions))
}

func TestNegotiate_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		claimed int
		reason  Reason
		message string
	}{
		{"older than oldest", 440, ReasonClientOutdated, "Outdated client! Please use 1.20.50/1.20.51."},
		{"zero", 0, ReasonClientOutdated, "Outdated client!"},
		{"negative", -7, ReasonClientOutdated, "Outdated client!"},
		{"newer than newest", 649, ReasonServerOutdated, "Outdated server!"},
		{"gap", 600, ReasonUnknown, "Unsupported client version."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, m, _ := newTestNegotiator(t)

			d, err := n.Negotiate(context.Background(), tt.claimed)
			require.Error(t, err)
			assert.True(t, d.IsZero())
			assert.True(t, errors.Is(err, ErrUnsupportedVersion))

			var uerr *UnsupportedVersionError
			require.True(t, errors.As(err, &uerr))
			assert.Equal(t, tt.claimed, uerr.Claimed)
			assert.Equal(t, tt.reason, uerr.Reason)
			assert.Equal(t, n.Registry().SupportedVersionsString(), uerr.Supported)

			msg := uerr.DisconnectMessage()
			assert.True(t, strings.HasPrefix(msg, tt.message), "message %q", msg)
			assert.Contains(t, msg, "1.20.0/1.20.1, 1.20.10/1.20.15")

			assert.Equal(t, float64(1), testutil.ToFloat64(m.NegotiationsTotal.WithLabelValues(metrics.OutcomeRejected)))
			assert.Equal(t, float64(1), testutil.ToFloat64(m.RejectionsTotal.WithLabelValues(string(tt.reason))))
		})
	}
}

func TestNegotiate_LogsCorrelationID(t *testing.T) {
	n, _, buf := newTestNegotiator(t)

	ctx := logging.WithCorrelationIDCtx(context.Background(), "conn-42")
	_, err := n.Negotiate(ctx, 1)
	require.Error(t, err)

	var entry logging.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "conn-42", entry.CorrelationID)
	assert.Equal(t, "rejected unsupported protocol version", entry.Message)
	assert.Equal(t, string(ReasonClientOutdated), entry.Fields["reason"])
}

func TestNegotiate_MintsCorrelationID(t *testing.T) {
	n, _, buf := newTestNegotiator(t)

	_, err := n.Negotiate(context.Background(), protocol.ProtocolV630)
	require.NoError(t, err)

	var entry logging.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Len(t, entry.CorrelationID, 36)
}

func TestNegotiate_WithoutMetrics(t *testing.T) {
	n := New(protocol.NewDefaultRegistry())

	_, err := n.Negotiate(context.Background(), protocol.ProtocolV589)
	assert.NoError(t, err)
	_, err = n.Negotiate(context.Background(), 1)
	assert.Error(t, err)
}

func TestNegotiate_Concurrent(t *testing.T) {
	n, m, _ := newTestNegotiator(t)
	versions := []int{protocol.ProtocolV589, protocol.ProtocolV630, 600}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		claimed := versions[i%len(versions)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := n.Negotiate(context.Background(), claimed)
			if claimed == 600 {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, claimed, d.Version)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(20), testutil.ToFloat64(m.NegotiationsTotal.WithLabelValues(metrics.OutcomeAccepted)))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.NegotiationsTotal.WithLabelValues(metrics.OutcomeRejected)))
}

func TestUnsupportedVersionError_Error(t *testing.T) {
	err := &UnsupportedVersionError{Claimed: 600, Reason: ReasonUnknown, Supported: "a, b"}
	assert.Equal(t, "protocol version 600 not supported (unknown); supported versions: a, b", err.Error())
}
