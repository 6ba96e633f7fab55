package protocol

import (
	"github.com/relaykit/relay/internal/codec"
)

// Upstream protocol versions the proxy understands. Thresholds used by the
// feature gates refer to these constants, never to bare numbers.
const (
	ProtocolV589 = 589 // 1.20.0/1.20.1
	ProtocolV594 = 594 // 1.20.10/1.20.15
	ProtocolV618 = 618 // 1.20.30/1.20.32
	ProtocolV622 = 622 // 1.20.40/1.20.41
	ProtocolV630 = 630 // 1.20.50/1.20.51
)

// DownstreamProtocolVersion is the only downstream protocol version the proxy
// speaks.
const DownstreamProtocolVersion = 764

const (
	upstreamCodecName   = "upstream"
	downstreamCodecName = "downstream"
)

// upstreamTable is the authoritative list of supported upstream versions,
// oldest first. The last entry is the default advertised to clients.
var upstreamTable = []struct {
	version int
	label   string
}{
	{ProtocolV589, "1.20.0/1.20.1"},
	{ProtocolV594, "1.20.10/1.20.15"},
	{ProtocolV618, "1.20.30/1.20.32"},
	{ProtocolV622, "1.20.40/1.20.41"},
	{ProtocolV630, "1.20.50/1.20.51"},
}

// DefaultTable returns the built-in upstream descriptors and the downstream
// descriptor. Codecs are identity handles; a host that links real encoders
// builds its own table with the same shape.
func DefaultTable() ([]codec.Descriptor, codec.Descriptor) {
	upstream := make([]codec.Descriptor, 0, len(upstreamTable))
	for _, e := range upstreamTable {
		upstream = append(upstream, codec.NewDescriptor(
			codec.NewHandle(upstreamCodecName, e.version, e.label), ""))
	}

	downstream := codec.NewDescriptor(
		codec.NewHandle(downstreamCodecName, DownstreamProtocolVersion, "1.20.2"), "")

	return upstream, downstream
}

// NewDefaultRegistry builds a Registry from DefaultTable. The built-in table
// is validated by tests, so a failure here is a programming error.
func NewDefaultRegistry() *Registry {
	upstream, downstream := DefaultTable()
	return MustNewRegistry(upstream, downstream)
}
