package protocol

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/relaykit/relay/internal/codec"
)

// LabelSeparator joins version labels in human-readable listings.
const LabelSeparator = ", "

// ErrMisconfigured is returned when a version table violates the registry
// invariants. It is a startup-time programming error, never a per-lookup one.
var ErrMisconfigured = errors.New("protocol: misconfigured version table")

// Registry is the set of supported upstream protocol versions plus the single
// downstream protocol version the proxy forwards to.
//
// A Registry is immutable once NewRegistry returns. It is safe for concurrent
// use by any number of sessions without locking.
type Registry struct {
	upstream   []codec.Descriptor
	byVersion  map[int]int
	latest     codec.Descriptor
	downstream codec.Descriptor
}

// NewRegistry validates the upstream table and builds a Registry.
//
// upstream must be ordered oldest to newest; the last entry becomes the
// default descriptor. Every problem found is reported in a single error
// wrapping ErrMisconfigured.
func NewRegistry(upstream []codec.Descriptor, downstream codec.Descriptor) (*Registry, error) {
	if err := validateTable(upstream, downstream); err != nil {
		return nil, err
	}

	r := &Registry{
		upstream:   make([]codec.Descriptor, len(upstream)),
		byVersion:  make(map[int]int, len(upstream)),
		downstream: downstream,
	}
	copy(r.upstream, upstream)
	for i, d := range r.upstream {
		if _, seen := r.byVersion[d.Version]; !seen {
			r.byVersion[d.Version] = i
		}
	}
	r.latest = r.upstream[len(r.upstream)-1]

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on a misconfigured table.
// Intended for process startup, where a bad table must abort initialization.
func MustNewRegistry(upstream []codec.Descriptor, downstream codec.Descriptor) *Registry {
	r, err := NewRegistry(upstream, downstream)
	if err != nil {
		panic(err)
	}
	return r
}

func validateTable(upstream []codec.Descriptor, downstream codec.Descriptor) error {
	var err error

	if len(upstream) == 0 {
		err = multierr.Append(err, errors.New("no upstream versions registered"))
	}

	seen := make(map[int]int, len(upstream))
	for i, d := range upstream {
		if first, dup := seen[d.Version]; dup {
			err = multierr.Append(err, fmt.Errorf("upstream version %d registered at index %d and %d", d.Version, first, i))
			continue
		}
		seen[d.Version] = i

		if d.Label == "" {
			err = multierr.Append(err, fmt.Errorf("upstream version %d has an empty label", d.Version))
		}
		if d.Codec == nil {
			err = multierr.Append(err, fmt.Errorf("upstream version %d has no codec", d.Version))
		} else if d.Codec.ProtocolVersion() != d.Version {
			err = multierr.Append(err, fmt.Errorf("upstream version %d bound to codec for version %d", d.Version, d.Codec.ProtocolVersion()))
		}
	}

	if downstream.Codec == nil {
		err = multierr.Append(err, errors.New("no downstream codec"))
	}
	if downstream.Label == "" {
		err = multierr.Append(err, errors.New("downstream descriptor has an empty label"))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrMisconfigured, err)
	}
	return nil
}

// Lookup returns the upstream descriptor registered for version. The boolean
// is false when the version is not supported. Lookup accepts any int,
// including zero and negative values.
func (r *Registry) Lookup(version int) (codec.Descriptor, bool) {
	i, ok := r.byVersion[version]
	if !ok {
		return codec.Descriptor{}, false
	}
	return r.upstream[i], true
}

// IsSupported reports whether version has a registered upstream descriptor.
func (r *Registry) IsSupported(version int) bool {
	_, ok := r.byVersion[version]
	return ok
}

// Default returns the latest supported upstream descriptor. It is always the
// last entry of AllSupported.
func (r *Registry) Default() codec.Descriptor {
	return r.latest
}

// Oldest returns the earliest supported upstream descriptor.
func (r *Registry) Oldest() codec.Descriptor {
	return r.upstream[0]
}

// AllSupported returns the upstream descriptors in registration order,
// oldest to newest. The returned slice is a copy.
func (r *Registry) AllSupported() []codec.Descriptor {
	result := make([]codec.Descriptor, len(r.upstream))
	copy(result, r.upstream)
	return result
}

// Len returns the number of supported upstream versions.
func (r *Registry) Len() int {
	return len(r.upstream)
}

// SupportedLabels returns the upstream labels in registration order.
func (r *Registry) SupportedLabels() []string {
	labels := make([]string, len(r.upstream))
	for i, d := range r.upstream {
		labels[i] = d.Label
	}
	return labels
}

// SupportedVersionsString returns every supported upstream label joined
// with LabelSeparator.
func (r *Registry) SupportedVersionsString() string {
	return FormatSupportedLabels(r.upstream)
}

// Downstream returns the single downstream descriptor.
func (r *Registry) Downstream() codec.Descriptor {
	return r.downstream
}

// DownstreamCodec returns the downstream codec handle.
func (r *Registry) DownstreamCodec() codec.Codec {
	return r.downstream.Codec
}

// DownstreamVersion returns the downstream protocol version number.
func (r *Registry) DownstreamVersion() int {
	return r.downstream.Version
}

// DownstreamLabel returns the downstream release label.
func (r *Registry) DownstreamLabel() string {
	return r.downstream.Label
}

// DownstreamLabels lists the supported downstream labels. There is only ever
// one downstream version.
func (r *Registry) DownstreamLabels() []string {
	return []string{r.downstream.Label}
}

// DownstreamVersionsString formats DownstreamLabels the same way as
// SupportedVersionsString.
func (r *Registry) DownstreamVersionsString() string {
	return strings.Join(r.DownstreamLabels(), LabelSeparator)
}

// FormatSupportedLabels joins the labels of descs, in order, with
// LabelSeparator. An empty collection yields an empty string.
func FormatSupportedLabels(descs []codec.Descriptor) string {
	var b strings.Builder
	for i, d := range descs {
		if i > 0 {
			b.WriteString(LabelSeparator)
		}
		b.WriteString(d.Label)
	}
	return b.String()
}
