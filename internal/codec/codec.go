// Package codec defines the opaque codec capability consumed by the version
// registry and the descriptor that binds a codec to a wire protocol version.
//
// Concrete packet encoders and decoders live outside this module. The registry
// only needs to know which protocol version a codec speaks and how to name it.
package codec

import "fmt"

// Codec is the capability supplied by an external codec provider for one
// protocol version. The registry never inspects or mutates it beyond these
// two accessors.
type Codec interface {
	// ProtocolVersion returns the wire protocol version number.
	ProtocolVersion() int

	// VersionLabel returns the human-readable release label.
	VersionLabel() string
}

// Descriptor associates a protocol version number, a human-readable label and
// the codec that handles it. Descriptors are values; copying one never shares
// mutable state.
type Descriptor struct {
	Version int
	Label   string
	Codec   Codec
}

// NewDescriptor builds a descriptor for c. The version always comes from the
// codec. A non-empty label overrides the codec's own label, which is how one
// codec advertises several equivalent point releases (e.g. "1.19.21/1.19.22").
func NewDescriptor(c Codec, label string) Descriptor {
	if label == "" {
		label = c.VersionLabel()
	}
	return Descriptor{
		Version: c.ProtocolVersion(),
		Label:   label,
		Codec:   c,
	}
}

// IsZero reports whether d is the zero descriptor.
func (d Descriptor) IsZero() bool {
	return d.Version == 0 && d.Label == "" && d.Codec == nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (protocol %d)", d.Label, d.Version)
}

// Handle is an inert Codec carrying only identity. It stands in for codecs
// whose behavior is provided elsewhere, and lets tests build synthetic tables.
type Handle struct {
	Name    string
	Version int
	Release string
}

// NewHandle creates a Handle for the given protocol version and release label.
func NewHandle(name string, version int, release string) *Handle {
	return &Handle{Name: name, Version: version, Release: release}
}

// ProtocolVersion implements Codec.
func (h *Handle) ProtocolVersion() int { return h.Version }

// VersionLabel implements Codec.
func (h *Handle) VersionLabel() string { return h.Release }

func (h *Handle) String() string {
	return fmt.Sprintf("%s/v%d", h.Name, h.Version)
}
