package database

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"dremio-gateway/internal/database/drivers/bridge"
	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

// Default ports per protocol
const (
	CloudPort             = 443
	DefaultFlightPort     = 32010
	DefaultLegacyJDBCPort = 31010
	DefaultRESTPort       = model.DefaultRESTPort
)

const (
	// DefaultODBCLibraryPattern matches versioned Arrow Flight SQL ODBC libraries
	DefaultODBCLibraryPattern = "libarrow-odbc.so*"

	flightDriverIdentifier = "flightsql"
	restDriverIdentifier   = "dremio-rest"

	flightJarMarker = "flight-sql-jdbc-driver"
	legacyJarMarker = "dremio-jdbc-driver"
)

// DefaultODBCLibraryDirs are searched in order for the ODBC driver library
var DefaultODBCLibraryDirs = []string{
	"/opt/arrow-flight-sql-odbc-driver/lib64",
	"/opt/arrow-flight-sql-odbc-driver/lib",
	"/usr/lib/x86_64-linux-gnu",
	"/usr/local/lib",
}

// DefaultODBCDriverNames are tried after every library path
var DefaultODBCDriverNames = []string{
	"Arrow Flight SQL ODBC Driver",
	"Dremio Arrow Flight SQL ODBC Driver",
	"Dremio ODBC Driver",
}

// ResolverConfig holds the filesystem and TLS inputs of candidate resolution
type ResolverConfig struct {
	ArtifactDir        string
	ODBCLibraryDirs    []string
	ODBCLibraryPattern string
	ODBCDriverNames    []string
	// SSLVerify turns certificate verification on for TLS candidates
	SSLVerify bool
	// Glob lists files matching a pattern; defaults to filepath.Glob
	Glob func(pattern string) ([]string, error)
}

// ConnectionConfigResolver derives ordered connection candidates. For equal
// inputs and equal filesystem state it returns equal output.
type ConnectionConfigResolver struct {
	cfg ResolverConfig
}

// NewConnectionConfigResolver creates a resolver, filling unset fields with defaults
func NewConnectionConfigResolver(cfg ResolverConfig) *ConnectionConfigResolver {
	if cfg.ODBCLibraryDirs == nil {
		cfg.ODBCLibraryDirs = DefaultODBCLibraryDirs
	}
	if cfg.ODBCLibraryPattern == "" {
		cfg.ODBCLibraryPattern = DefaultODBCLibraryPattern
	}
	if cfg.ODBCDriverNames == nil {
		cfg.ODBCDriverNames = DefaultODBCDriverNames
	}
	if cfg.Glob == nil {
		cfg.Glob = filepath.Glob
	}
	return &ConnectionConfigResolver{cfg: cfg}
}

// hostPort is a data-plane endpoint
type hostPort struct {
	host string
	port int
	tls  bool
}

func (hp hostPort) String() string {
	return net.JoinHostPort(hp.host, strconv.Itoa(hp.port))
}

// Resolve returns the candidates for protocol in attempt order.
func (r *ConnectionConfigResolver) Resolve(protocol model.Protocol, target model.DeploymentTarget, credential model.Credential, overrides model.ConnectionOverrides) ([]model.ConnectionCandidate, error) {
	if credential.IsEmpty() {
		return nil, utils.NewConfigurationError(
			fmt.Sprintf("no credential configured for %s: set a personal access token or username and password", protocol))
	}

	var candidates []model.ConnectionCandidate
	switch protocol {
	case model.ProtocolFlight:
		candidates = r.flightCandidates(target, credential, overrides)
	case model.ProtocolJDBC:
		candidates = r.jdbcCandidates(target, credential, overrides)
	case model.ProtocolODBC:
		candidates = r.odbcCandidates(target, credential, overrides)
	case model.ProtocolREST:
		if target.IsCloud() && target.ProjectID == "" {
			return nil, utils.NewConfigurationError("project id is required for Dremio Cloud REST: set DREMIO_PROJECT_ID")
		}
		candidates = r.restCandidates(target, credential, overrides)
	default:
		return nil, utils.NewConfigurationError(fmt.Sprintf("unknown protocol: %s", protocol))
	}

	for i := range candidates {
		candidates[i].Protocol = protocol
		candidates[i].Ordinal = i + 1
	}
	return candidates, nil
}

// dataEndpoint maps the target onto the Flight data plane.
func (r *ConnectionConfigResolver) dataEndpoint(target model.DeploymentTarget) hostPort {
	if target.IsCloud() {
		return hostPort{host: cloudHost(target.Host(), "data"), port: CloudPort, tls: true}
	}
	return hostPort{host: target.Host(), port: DefaultFlightPort, tls: target.Scheme() == "https"}
}

// cloudHost swaps the service label of a cloud host, so api.eu.dremio.cloud
// becomes data.eu.dremio.cloud.
func cloudHost(host, label string) string {
	for _, prefix := range []string{"api.", "data.", "sql.", "app."} {
		if strings.HasPrefix(host, prefix) {
			host = strings.TrimPrefix(host, prefix)
			break
		}
	}
	return label + "." + host
}

// overrideEndpoint parses an override endpoint given as host:port or URL.
func overrideEndpoint(endpoint string, fallback hostPort) hostPort {
	hp := fallback
	raw := endpoint
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return fallback
		}
		raw = u.Host
		switch u.Scheme {
		case "https", "grpc+tls":
			hp.tls = true
		case "http", "grpc", "grpc+tcp":
			hp.tls = false
		}
	}

	host, portText, err := net.SplitHostPort(raw)
	if err != nil {
		hp.host = raw
		return hp
	}
	hp.host = host
	if port, err := strconv.Atoi(portText); err == nil {
		hp.port = port
	}
	return hp
}

func (r *ConnectionConfigResolver) projectID(target model.DeploymentTarget) string {
	if target.IsCloud() {
		return target.ProjectID
	}
	return ""
}

func (r *ConnectionConfigResolver) authPayload(placement model.AuthPlacement, target model.DeploymentTarget, credential model.Credential) model.AuthPayload {
	auth := model.AuthPayload{Placement: placement, ProjectID: r.projectID(target)}
	if credential.HasToken() {
		auth.Scheme = model.AuthSchemeBearer
		auth.Token = credential.Token()
	} else {
		auth.Scheme = model.AuthSchemeBasic
		auth.Username = credential.Username()
		auth.Password = credential.Password()
	}
	return auth
}

func (r *ConnectionConfigResolver) flightCandidates(target model.DeploymentTarget, credential model.Credential, overrides model.ConnectionOverrides) []model.ConnectionCandidate {
	endpoint := r.dataEndpoint(target)
	auth := r.authPayload(model.AuthInHeader, target, credential)

	build := func(hp hostPort, identifier string, source model.CandidateSource) model.ConnectionCandidate {
		return model.ConnectionCandidate{
			TargetEndpoint:   hp.String(),
			DriverIdentifier: identifier,
			UseTLS:           hp.tls,
			SkipVerify:       hp.tls && !r.cfg.SSLVerify,
			Auth:             auth,
			Source:           source,
		}
	}

	var candidates []model.ConnectionCandidate
	if !overrides.IsZero() {
		hp := endpoint
		if overrides.Endpoint != "" {
			hp = overrideEndpoint(overrides.Endpoint, endpoint)
		}
		candidates = append(candidates, build(hp, orDefault(overrides.DriverIdentifier, flightDriverIdentifier), model.SourceOverride))
	}
	return append(candidates, build(endpoint, flightDriverIdentifier, model.SourceEndpoint))
}

func (r *ConnectionConfigResolver) jdbcCandidates(target model.DeploymentTarget, credential model.Credential, overrides model.ConnectionOverrides) []model.ConnectionCandidate {
	endpoint := r.dataEndpoint(target)
	var candidates []model.ConnectionCandidate

	if !overrides.IsZero() {
		hp := endpoint
		if overrides.Endpoint != "" {
			hp = overrideEndpoint(overrides.Endpoint, endpoint)
		}
		identifier := orDefault(overrides.DriverIdentifier, bridge.FlightSQLDriverClass)
		if strings.Contains(identifier, legacyJarMarker) || identifier == bridge.LegacyDriverClass {
			candidates = append(candidates, r.legacyJDBCCandidate(hp, identifier, target, credential, model.SourceOverride))
		} else {
			candidates = append(candidates, r.flightJDBCCandidate(hp, identifier, target, credential, model.SourceOverride))
		}
	}

	artifacts := r.glob(filepath.Join(r.cfg.ArtifactDir, bridge.ArtifactPattern))
	for _, jar := range artifacts {
		if strings.Contains(filepath.Base(jar), flightJarMarker) {
			candidates = append(candidates, r.flightJDBCCandidate(endpoint, jar, target, credential, model.SourcePath))
		}
	}
	for _, jar := range artifacts {
		if !strings.Contains(filepath.Base(jar), legacyJarMarker) {
			continue
		}
		for _, hp := range r.legacyJDBCEndpoints(target) {
			candidates = append(candidates, r.legacyJDBCCandidate(hp, jar, target, credential, model.SourcePath))
		}
	}

	return append(candidates, r.flightJDBCCandidate(endpoint, bridge.FlightSQLDriverClass, target, credential, model.SourceName))
}

func (r *ConnectionConfigResolver) flightJDBCCandidate(hp hostPort, identifier string, target model.DeploymentTarget, credential model.Credential, source model.CandidateSource) model.ConnectionCandidate {
	placement := model.AuthInProperties
	if credential.HasToken() {
		placement = model.AuthInURLQuery
	}
	auth := r.authPayload(placement, target, credential)

	params := []string{"useEncryption=" + strconv.FormatBool(hp.tls)}
	if credential.HasToken() {
		params = append(params, "token="+url.QueryEscape(credential.Token()))
	}
	if auth.ProjectID != "" {
		params = append(params, "project_id="+url.QueryEscape(auth.ProjectID))
	}
	if hp.tls && !r.cfg.SSLVerify {
		params = append(params, "disableCertificateVerification=true")
	}

	jdbcURL := fmt.Sprintf("%s%s?%s", bridge.FlightSQLScheme, hp.String(), strings.Join(params, "&"))
	return model.ConnectionCandidate{
		TargetEndpoint:   hp.String(),
		DriverIdentifier: identifier,
		ConnectionString: jdbcURL,
		UseTLS:           hp.tls,
		SkipVerify:       hp.tls && !r.cfg.SSLVerify,
		Auth:             auth,
		Source:           source,
	}
}

func (r *ConnectionConfigResolver) legacyJDBCEndpoints(target model.DeploymentTarget) []hostPort {
	if target.IsCloud() {
		return []hostPort{
			{host: cloudHost(target.Host(), "data"), port: CloudPort, tls: true},
			{host: cloudHost(target.Host(), "sql"), port: CloudPort, tls: true},
		}
	}
	return []hostPort{{host: target.Host(), port: DefaultLegacyJDBCPort, tls: true}}
}

func (r *ConnectionConfigResolver) legacyJDBCCandidate(hp hostPort, identifier string, target model.DeploymentTarget, credential model.Credential, source model.CandidateSource) model.ConnectionCandidate {
	auth := r.authPayload(model.AuthInProperties, target, credential)

	jdbcURL := fmt.Sprintf("%s%s;ssl=true", bridge.LegacyDremioScheme, hp.String())
	if auth.ProjectID != "" {
		jdbcURL += ";PROJECT_ID=" + auth.ProjectID
	}
	return model.ConnectionCandidate{
		TargetEndpoint:   hp.String(),
		DriverIdentifier: identifier,
		ConnectionString: jdbcURL,
		UseTLS:           true,
		SkipVerify:       !r.cfg.SSLVerify,
		Auth:             auth,
		Source:           source,
	}
}

func (r *ConnectionConfigResolver) odbcCandidates(target model.DeploymentTarget, credential model.Credential, overrides model.ConnectionOverrides) []model.ConnectionCandidate {
	endpoint := r.dataEndpoint(target)
	auth := r.authPayload(model.AuthInConnectionString, target, credential)

	build := func(hp hostPort, identifier string, source model.CandidateSource) model.ConnectionCandidate {
		return model.ConnectionCandidate{
			TargetEndpoint:   hp.String(),
			DriverIdentifier: identifier,
			ConnectionString: r.odbcConnectionString(hp, identifier, auth),
			UseTLS:           hp.tls,
			SkipVerify:       hp.tls && !r.cfg.SSLVerify,
			Auth:             auth,
			Source:           source,
		}
	}

	var candidates []model.ConnectionCandidate
	if !overrides.IsZero() {
		hp := endpoint
		if overrides.Endpoint != "" {
			hp = overrideEndpoint(overrides.Endpoint, endpoint)
		}
		identifier := overrides.DriverIdentifier
		if identifier == "" && len(r.cfg.ODBCDriverNames) > 0 {
			identifier = r.cfg.ODBCDriverNames[0]
		}
		candidates = append(candidates, build(hp, identifier, model.SourceOverride))
	}

	for _, dir := range r.cfg.ODBCLibraryDirs {
		if matches := r.glob(filepath.Join(dir, r.cfg.ODBCLibraryPattern)); len(matches) > 0 {
			candidates = append(candidates, build(endpoint, matches[0], model.SourcePath))
		}
	}
	for _, name := range r.cfg.ODBCDriverNames {
		candidates = append(candidates, build(endpoint, name, model.SourceName))
	}
	return candidates
}

func (r *ConnectionConfigResolver) odbcConnectionString(hp hostPort, identifier string, auth model.AuthPayload) string {
	parts := []string{
		fmt.Sprintf("DRIVER={%s}", identifier),
		"HOST=" + hp.host,
		"PORT=" + strconv.Itoa(hp.port),
		"useEncryption=" + strconv.FormatBool(hp.tls),
	}
	if hp.tls && !r.cfg.SSLVerify {
		parts = append(parts, "disableCertificateVerification=true")
	}
	if auth.HasToken() {
		parts = append(parts, "TOKEN="+auth.Token)
	} else {
		parts = append(parts, "UID="+auth.Username, "PWD="+auth.Password)
	}
	if auth.ProjectID != "" {
		parts = append(parts, "project_id="+auth.ProjectID)
	}
	return strings.Join(parts, ";")
}

func (r *ConnectionConfigResolver) restCandidates(target model.DeploymentTarget, credential model.Credential, overrides model.ConnectionOverrides) []model.ConnectionCandidate {
	auth := r.authPayload(model.AuthInHeader, target, credential)

	build := func(root string, identifier string, source model.CandidateSource) model.ConnectionCandidate {
		apiBase := root + "/api/v3"
		if target.IsCloud() {
			apiBase = fmt.Sprintf("%s/v0/projects/%s", root, target.ProjectID)
		}
		tls := strings.HasPrefix(root, "https://")
		return model.ConnectionCandidate{
			TargetEndpoint:   root,
			DriverIdentifier: identifier,
			ConnectionString: apiBase,
			UseTLS:           tls,
			SkipVerify:       tls && !r.cfg.SSLVerify,
			Auth:             auth,
			Source:           source,
		}
	}

	root := target.RESTRoot()
	var candidates []model.ConnectionCandidate
	if !overrides.IsZero() {
		overrideRoot := root
		if overrides.Endpoint != "" {
			overrideRoot = trimAPISuffix(overrides.Endpoint)
		}
		candidates = append(candidates, build(overrideRoot, orDefault(overrides.DriverIdentifier, restDriverIdentifier), model.SourceOverride))
	}
	return append(candidates, build(root, restDriverIdentifier, model.SourceEndpoint))
}

func trimAPISuffix(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	if i := strings.Index(endpoint, "/api/v3"); i > 0 {
		return endpoint[:i]
	}
	if i := strings.Index(endpoint, "/v0/"); i > 0 {
		return endpoint[:i]
	}
	return endpoint
}

func (r *ConnectionConfigResolver) glob(pattern string) []string {
	matches, err := r.cfg.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
