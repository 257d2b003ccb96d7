package model

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// CloudDomainSuffix marks endpoints served by the managed multi-tenant deployment.
const CloudDomainSuffix = "dremio.cloud"

// DefaultRESTPort is the on-premise REST port when the endpoint names none.
const DefaultRESTPort = 9047

// Topology describes how the engine is deployed.
type Topology string

const (
	TopologyCloud     Topology = "cloud"
	TopologyOnPremise Topology = "on_premise"
)

// DeploymentTarget is where the engine lives. It is derived once from
// configuration and never modified afterwards.
type DeploymentTarget struct {
	EndpointURL string   `json:"endpointUrl"`
	ProjectID   string   `json:"projectId,omitempty"`
	Topology    Topology `json:"topology"`
}

// NewDeploymentTarget builds a target, inferring the topology from the endpoint host.
func NewDeploymentTarget(endpointURL, projectID string) DeploymentTarget {
	endpointURL = strings.TrimRight(strings.TrimSpace(endpointURL), "/")

	topology := TopologyOnPremise
	host := hostOf(endpointURL)
	if host == CloudDomainSuffix || strings.HasSuffix(host, "."+CloudDomainSuffix) {
		topology = TopologyCloud
	}

	return DeploymentTarget{
		EndpointURL: endpointURL,
		ProjectID:   strings.TrimSpace(projectID),
		Topology:    topology,
	}
}

// IsCloud reports whether the target is the managed multi-tenant deployment
func (t DeploymentTarget) IsCloud() bool {
	return t.Topology == TopologyCloud
}

// Host returns the endpoint host without scheme or port.
func (t DeploymentTarget) Host() string {
	return hostOf(t.EndpointURL)
}

// Port returns the explicit endpoint port, or 0 when none is set.
func (t DeploymentTarget) Port() int {
	u, err := parseEndpoint(t.EndpointURL)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0
	}
	return port
}

// Scheme returns the endpoint scheme, defaulting to https.
func (t DeploymentTarget) Scheme() string {
	u, err := parseEndpoint(t.EndpointURL)
	if err != nil || u.Scheme == "" {
		return "https"
	}
	return u.Scheme
}

// RESTRoot is scheme://host[:port] of the REST server. Cloud targets without
// a port keep the bare host; other targets default to DefaultRESTPort.
func (t DeploymentTarget) RESTRoot() string {
	port := t.Port()
	if port == 0 {
		if t.IsCloud() {
			return t.Scheme() + "://" + t.Host()
		}
		port = DefaultRESTPort
	}
	return t.Scheme() + "://" + net.JoinHostPort(t.Host(), strconv.Itoa(port))
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return url.Parse(endpoint)
}

func hostOf(endpoint string) string {
	u, err := parseEndpoint(endpoint)
	if err != nil {
		host, _, splitErr := net.SplitHostPort(endpoint)
		if splitErr != nil {
			return strings.ToLower(endpoint)
		}
		return strings.ToLower(host)
	}
	return strings.ToLower(u.Hostname())
}

// CredentialKind tags the populated half of a Credential.
type CredentialKind string

const (
	CredentialNone             CredentialKind = ""
	CredentialToken            CredentialKind = "token"
	CredentialUsernamePassword CredentialKind = "username_password"
)

// Credential is either a bearer token or a username/password pair.
type Credential struct {
	kind     CredentialKind
	token    string
	username string
	password string
}

// TokenCredential returns a bearer token credential
func TokenCredential(token string) Credential {
	return Credential{kind: CredentialToken, token: token}
}

// PasswordCredential returns a username/password credential
func PasswordCredential(username, password string) Credential {
	return Credential{kind: CredentialUsernamePassword, username: username, password: password}
}

// NewCredential picks the token when present, otherwise the username/password
// pair, otherwise an empty credential.
func NewCredential(token, username, password string) Credential {
	if strings.TrimSpace(token) != "" {
		return TokenCredential(strings.TrimSpace(token))
	}
	if username != "" && password != "" {
		return PasswordCredential(username, password)
	}
	return Credential{}
}

func (c Credential) Kind() CredentialKind { return c.kind }
func (c Credential) IsEmpty() bool        { return c.kind == CredentialNone }
func (c Credential) HasToken() bool       { return c.kind == CredentialToken }
func (c Credential) Token() string        { return c.token }
func (c Credential) Username() string     { return c.username }
func (c Credential) Password() string     { return c.password }

// String never prints secret material.
func (c Credential) String() string {
	switch c.kind {
	case CredentialToken:
		return "token(***)"
	case CredentialUsernamePassword:
		return "user(" + c.username + ")"
	default:
		return "none"
	}
}
