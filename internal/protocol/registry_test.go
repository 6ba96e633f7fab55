package protocol

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/relaykit/relay/internal/codec"
)

func descriptor(version int, label string) codec.Descriptor {
	return codec.NewDescriptor(codec.NewHandle("test", version, label), "")
}

func testDownstream() codec.Descriptor {
	return descriptor(764, "1.20.2")
}

func scenarioTable() []codec.Descriptor {
	return []codec.Descriptor{
		descriptor(589, "1.20.0/1.20.1"),
		descriptor(594, "1.20.10/1.20.15"),
		descriptor(618, "1.20.30/1.20.32"),
		descriptor(622, "1.20.40/1.20.41"),
		descriptor(630, "1.20.50/1.20.51"),
	}
}

func newScenarioRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(scenarioTable(), testDownstream())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func TestRegistry_LookupRoundTrip(t *testing.T) {
	r := newScenarioRegistry(t)

	for _, d := range r.AllSupported() {
		got, ok := r.Lookup(d.Version)
		if !ok {
			t.Errorf("Lookup(%d) not found", d.Version)
			continue
		}
		if got != d {
			t.Errorf("Lookup(%d) = %v, want %v", d.Version, got, d)
		}
	}
}

func TestRegistry_LookupNotFound(t *testing.T) {
	r := newScenarioRegistry(t)

	tests := []struct {
		name    string
		version int
	}{
		{"zero", 0},
		{"negative", -1},
		{"min int", math.MinInt},
		{"gap", 600},
		{"below oldest", 588},
		{"above newest", 631},
		{"max int", math.MaxInt},
		{"downstream version", 764},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Lookup(tt.version)
			if ok {
				t.Errorf("Lookup(%d) = %v, expected not found", tt.version, got)
			}
			if !got.IsZero() {
				t.Errorf("Lookup(%d) returned non-zero descriptor %v", tt.version, got)
			}
			if r.IsSupported(tt.version) {
				t.Errorf("IsSupported(%d) = true", tt.version)
			}
		})
	}
}

func TestRegistry_Scenario(t *testing.T) {
	r := newScenarioRegistry(t)

	d, ok := r.Lookup(618)
	if !ok {
		t.Fatal("Lookup(618) not found")
	}
	if d.Label != "1.20.30/1.20.32" {
		t.Errorf("Lookup(618).Label = %q", d.Label)
	}

	if _, ok := r.Lookup(600); ok {
		t.Error("Lookup(600) should not be found")
	}

	if r.Default().Version != 630 {
		t.Errorf("Default().Version = %d, want 630", r.Default().Version)
	}
	if r.Oldest().Version != 589 {
		t.Errorf("Oldest().Version = %d, want 589", r.Oldest().Version)
	}
}

func TestRegistry_DefaultIsLast(t *testing.T) {
	r := newScenarioRegistry(t)

	all := r.AllSupported()
	if r.Default() != all[len(all)-1] {
		t.Errorf("Default() = %v, last = %v", r.Default(), all[len(all)-1])
	}
}

func TestRegistry_AllSupportedOrderAndCopy(t *testing.T) {
	table := scenarioTable()
	r, err := NewRegistry(table, testDownstream())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	first := r.AllSupported()
	if len(first) != len(table) {
		t.Fatalf("len(AllSupported()) = %d, want %d", len(first), len(table))
	}
	for i := range table {
		if first[i] != table[i] {
			t.Errorf("AllSupported()[%d] = %v, want %v", i, first[i], table[i])
		}
	}

	// Mutating the result or the input must not leak into the registry.
	first[0] = descriptor(1, "bogus")
	table[1] = descriptor(2, "bogus")

	second := r.AllSupported()
	if second[0].Version != 589 || second[1].Version != 594 {
		t.Errorf("registry mutated through returned or input slice: %v", second)
	}
	if _, ok := r.Lookup(1); ok {
		t.Error("Lookup(1) found a descriptor injected through a returned slice")
	}
	if r.Len() != 5 {
		t.Errorf("Len() = %d, want 5", r.Len())
	}
}

func TestFormatSupportedLabels(t *testing.T) {
	r := newScenarioRegistry(t)

	got := FormatSupportedLabels(r.AllSupported())
	want := "1.20.0/1.20.1, 1.20.10/1.20.15, 1.20.30/1.20.32, 1.20.40/1.20.41, 1.20.50/1.20.51"
	if got != want {
		t.Errorf("FormatSupportedLabels() = %q, want %q", got, want)
	}

	for _, label := range r.SupportedLabels() {
		if n := strings.Count(got, label); n != 1 {
			t.Errorf("label %q appears %d times", label, n)
		}
	}
	if strings.HasPrefix(got, LabelSeparator) || strings.HasSuffix(got, LabelSeparator) {
		t.Errorf("leading or trailing separator in %q", got)
	}

	if got := r.SupportedVersionsString(); got != want {
		t.Errorf("SupportedVersionsString() = %q, want %q", got, want)
	}
	if got := FormatSupportedLabels(nil); got != "" {
		t.Errorf("FormatSupportedLabels(nil) = %q, want empty", got)
	}
	if got := FormatSupportedLabels([]codec.Descriptor{descriptor(1, "only")}); got != "only" {
		t.Errorf("FormatSupportedLabels(single) = %q", got)
	}
}

func TestRegistry_Downstream(t *testing.T) {
	down := testDownstream()
	r, err := NewRegistry(scenarioTable(), down)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if r.Downstream() != down {
		t.Errorf("Downstream() = %v, want %v", r.Downstream(), down)
	}
	if r.DownstreamVersion() != 764 {
		t.Errorf("DownstreamVersion() = %d", r.DownstreamVersion())
	}
	if r.DownstreamLabel() != "1.20.2" {
		t.Errorf("DownstreamLabel() = %q", r.DownstreamLabel())
	}
	if r.DownstreamCodec() != down.Codec {
		t.Error("DownstreamCodec() returned a different codec")
	}
	if got := r.DownstreamVersionsString(); got != "1.20.2" {
		t.Errorf("DownstreamVersionsString() = %q", got)
	}

	// The downstream descriptor does not depend on any upstream version.
	for _, d := range r.AllSupported() {
		if _, ok := r.Lookup(d.Version); !ok {
			t.Fatalf("Lookup(%d) failed", d.Version)
		}
		if r.Downstream() != down {
			t.Errorf("Downstream() changed after Lookup(%d)", d.Version)
		}
	}
}

func TestNewRegistry_Misconfigured(t *testing.T) {
	tests := []struct {
		name       string
		upstream   []codec.Descriptor
		downstream codec.Descriptor
		wantMsg    string
	}{
		{
			name:       "empty upstream",
			upstream:   nil,
			downstream: testDownstream(),
			wantMsg:    "no upstream versions",
		},
		{
			name: "duplicate version",
			upstream: []codec.Descriptor{
				descriptor(589, "a"),
				descriptor(589, "b"),
			},
			downstream: testDownstream(),
			wantMsg:    "registered at index 0 and 1",
		},
		{
			name:       "empty label",
			upstream:   []codec.Descriptor{{Version: 589, Codec: codec.NewHandle("test", 589, "")}},
			downstream: testDownstream(),
			wantMsg:    "empty label",
		},
		{
			name:       "missing codec",
			upstream:   []codec.Descriptor{{Version: 589, Label: "x"}},
			downstream: testDownstream(),
			wantMsg:    "has no codec",
		},
		{
			name:       "codec version mismatch",
			upstream:   []codec.Descriptor{{Version: 589, Label: "x", Codec: codec.NewHandle("test", 594, "x")}},
			downstream: testDownstream(),
			wantMsg:    "bound to codec for version 594",
		},
		{
			name:       "missing downstream",
			upstream:   scenarioTable(),
			downstream: codec.Descriptor{},
			wantMsg:    "no downstream codec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.upstream, tt.downstream)
			if err == nil {
				t.Fatalf("expected error, got registry %v", r)
			}
			if !errors.Is(err, ErrMisconfigured) {
				t.Errorf("error %v does not wrap ErrMisconfigured", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestNewRegistry_ReportsAllProblems(t *testing.T) {
	upstream := []codec.Descriptor{
		{Version: 589, Label: "", Codec: codec.NewHandle("test", 589, "")},
		descriptor(594, "b"),
		descriptor(594, "c"),
	}

	_, err := NewRegistry(upstream, codec.Descriptor{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"empty label", "index 1 and 2", "no downstream codec"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestMustNewRegistry_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNewRegistry did not panic on empty table")
		}
	}()
	MustNewRegistry(nil, testDownstream())
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	r := newScenarioRegistry(t)

	var g errgroup.Group
	for i := 0; i < 64; i++ {
		version := scenarioTable()[i%5].Version
		probe := 600 + i
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				d, ok := r.Lookup(version)
				if !ok || d.Version != version {
					return fmt.Errorf("Lookup(%d) = %v, %v", version, d, ok)
				}
				if _, ok := r.Lookup(probe); ok != r.IsSupported(probe) {
					return fmt.Errorf("Lookup(%d) inconsistent with IsSupported", probe)
				}
				if r.Default().Version != 630 {
					return fmt.Errorf("Default() changed to %d", r.Default().Version)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
