package protocol

// Version is a negotiated upstream protocol version number.
type Version int

// ProtocolVersion implements Versioned.
func (v Version) ProtocolVersion() int { return int(v) }

// OlderThan reports whether v is strictly less than threshold.
func (v Version) OlderThan(threshold int) bool {
	return int(v) < threshold
}

// Is reports whether v equals threshold exactly.
func (v Version) Is(threshold int) bool {
	return int(v) == threshold
}

// Versioned is anything exposing a negotiated protocol version, typically a
// client session.
type Versioned interface {
	ProtocolVersion() int
}

// IsOlderThan reports whether the session's version is strictly less than
// threshold.
func IsOlderThan(s Versioned, threshold int) bool {
	return Version(s.ProtocolVersion()).OlderThan(threshold)
}

// IsExactly reports whether the session's version equals threshold. Used for
// quirks that exist in a single release only.
func IsExactly(s Versioned, threshold int) bool {
	return Version(s.ProtocolVersion()).Is(threshold)
}

// Feature gates. Each names the protocol version it compares against so the
// gate can be found and removed when that version is dropped from the table.

// PredatesV594 reports whether the client speaks a protocol older than 594
// (release 1.20.10).
func PredatesV594(s Versioned) bool {
	return IsOlderThan(s, ProtocolV594)
}

// UsesExperimentalRecipeUnlocking reports whether the client needs the
// recipe unlocking experiment enabled. Only protocol 589 does.
func UsesExperimentalRecipeUnlocking(s Versioned) bool {
	return IsExactly(s, ProtocolV589)
}
