// Package protocol is the registry of upstream protocol versions the relay
// accepts, the single downstream version it forwards to, and the feature
// gates that branch on a session's negotiated version.
//
// The registry is built once at startup from a declarative table and is
// read-only afterwards, so it can be shared by every session without locks.
//
// Usage:
//
//	registry := protocol.NewDefaultRegistry()
//
//	// Bind a session at handshake time
//	desc, ok := registry.Lookup(claimedVersion)
//	if !ok {
//		disconnect("supported versions: " + registry.SupportedVersionsString())
//		return
//	}
//
//	// Branch on version later in the session
//	if protocol.PredatesV594(session) {
//		// legacy behavior
//	}
//
// Tests build isolated registries with NewRegistry and synthetic tables.
package protocol
