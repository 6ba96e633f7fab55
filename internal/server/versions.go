package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/relaykit/relay/internal/codec"
	"github.com/relaykit/relay/internal/protocol"
)

// VersionInfo is one entry of the /versions listing.
type VersionInfo struct {
	ProtocolVersion int    `json:"protocolVersion"`
	Label           string `json:"label"`
}

// VersionsResponse is the /versions payload.
type VersionsResponse struct {
	Upstream          []VersionInfo `json:"upstream"`
	Default           VersionInfo   `json:"default"`
	Downstream        VersionInfo   `json:"downstream"`
	SupportedVersions string        `json:"supportedVersions"`
}

func versionInfo(d codec.Descriptor) VersionInfo {
	return VersionInfo{ProtocolVersion: d.Version, Label: d.Label}
}

// NewVersionsResponse snapshots the registry. The registry is immutable, so
// the result can be computed once and served forever.
func NewVersionsResponse(r *protocol.Registry) VersionsResponse {
	all := r.AllSupported()
	resp := VersionsResponse{
		Upstream:          make([]VersionInfo, 0, len(all)),
		Default:           versionInfo(r.Default()),
		Downstream:        versionInfo(r.Downstream()),
		SupportedVersions: protocol.FormatSupportedLabels(all),
	}
	for _, d := range all {
		resp.Upstream = append(resp.Upstream, versionInfo(d))
	}
	return resp
}

// VersionsHandler serves the supported version listing as JSON.
func VersionsHandler(r *protocol.Registry) http.Handler {
	body, err := json.Marshal(NewVersionsResponse(r))
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if req.Method != http.MethodHead {
			_, _ = w.Write(body)
		}
	})
}

// RegistryChecker reports ready once a registry with at least one upstream
// version is installed.
type RegistryChecker struct {
	registry *protocol.Registry
}

// NewRegistryChecker creates a RegistryChecker.
func NewRegistryChecker(r *protocol.Registry) *RegistryChecker {
	return &RegistryChecker{registry: r}
}

// Name implements ReadinessChecker.
func (c *RegistryChecker) Name() string {
	return "version_registry"
}

// CheckReady implements ReadinessChecker.
func (c *RegistryChecker) CheckReady(ctx context.Context) error {
	if c.registry == nil {
		return errors.New("version registry not configured")
	}
	if c.registry.Len() == 0 {
		return errors.New("version registry is empty")
	}
	return ctx.Err()
}
