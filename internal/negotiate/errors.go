package negotiate

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion is the sentinel wrapped by every UnsupportedVersionError.
var ErrUnsupportedVersion = errors.New("unsupported protocol version")

// Reason classifies why a claimed version was rejected.
type Reason string

const (
	// ReasonClientOutdated means the client is older than every supported version.
	ReasonClientOutdated Reason = "client_outdated"
	// ReasonServerOutdated means the client is newer than every supported version.
	ReasonServerOutdated Reason = "server_outdated"
	// ReasonUnknown means the version falls between supported versions.
	ReasonUnknown Reason = "unknown"
)

// UnsupportedVersionError reports a claimed version with no registered codec.
// The session layer decides how to close the connection; DisconnectMessage
// gives it the text to show the client.
type UnsupportedVersionError struct {
	Claimed   int
	Reason    Reason
	Latest    string
	Supported string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("protocol version %d not supported (%s); supported versions: %s", e.Claimed, e.Reason, e.Supported)
}

func (e *UnsupportedVersionError) Unwrap() error {
	return ErrUnsupportedVersion
}

// DisconnectMessage renders the user-visible rejection text.
func (e *UnsupportedVersionError) DisconnectMessage() string {
	switch e.Reason {
	case ReasonClientOutdated:
		return fmt.Sprintf("Outdated client! Please use %s. Supported versions: %s", e.Latest, e.Supported)
	case ReasonServerOutdated:
		return fmt.Sprintf("Outdated server! This server supports up to %s. Supported versions: %s", e.Latest, e.Supported)
	default:
		return fmt.Sprintf("Unsupported client version. Supported versions: %s", e.Supported)
	}
}
