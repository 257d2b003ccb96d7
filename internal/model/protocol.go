package model

import "strings"

// Protocol identifies one of the connection protocols the gateway can speak to Dremio.
type Protocol string

const (
	ProtocolFlight Protocol = "flight"
	ProtocolJDBC   Protocol = "jdbc"
	ProtocolODBC   Protocol = "odbc"
	ProtocolREST   Protocol = "rest"
)

// AllProtocols lists the supported protocols in their canonical order
func AllProtocols() []Protocol {
	return []Protocol{ProtocolFlight, ProtocolJDBC, ProtocolODBC, ProtocolREST}
}

// IsValidProtocol checks if a protocol name is known
func IsValidProtocol(name string) bool {
	switch Protocol(name) {
	case ProtocolFlight, ProtocolJDBC, ProtocolODBC, ProtocolREST:
		return true
	default:
		return false
	}
}

// ParseProtocols converts names to protocols, keeping the caller's order and
// dropping duplicates. Unknown names are returned separately.
func ParseProtocols(names []string) ([]Protocol, []string) {
	seen := make(map[Protocol]bool, len(names))
	protocols := make([]Protocol, 0, len(names))
	var unknown []string

	for _, name := range names {
		p := Protocol(strings.ToLower(strings.TrimSpace(name)))
		if !IsValidProtocol(string(p)) {
			unknown = append(unknown, name)
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		protocols = append(protocols, p)
	}

	return protocols, unknown
}

// UsesNativeLibrary reports whether candidates for the protocol are resolved
// against shared libraries or driver artifacts found on disk.
func (p Protocol) UsesNativeLibrary() bool {
	return p == ProtocolODBC || p == ProtocolJDBC
}

// ProtocolCapabilities describes what a protocol implementation can report.
type ProtocolCapabilities struct {
	ReportsSchema     bool `json:"reportsSchema"`
	ColumnarTransport bool `json:"columnarTransport"`
	RequiresArtifact  bool `json:"requiresArtifact"`
	SupportsProjects  bool `json:"supportsProjects"`
}

// ProtocolDescriptor is the registry's view of one protocol in this process.
type ProtocolDescriptor struct {
	Name           Protocol             `json:"name"`
	DisplayName    string               `json:"displayName"`
	Available      bool                 `json:"available"`
	Enabled        bool                 `json:"enabled"`
	DisabledReason string               `json:"disabledReason,omitempty"`
	Capabilities   ProtocolCapabilities `json:"capabilities"`
}

// Usable reports whether the protocol may be used for new connections
func (d ProtocolDescriptor) Usable() bool {
	return d.Available && d.Enabled
}
