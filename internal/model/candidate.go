package model

import (
	"fmt"
	"strings"
)

// AuthPlacement says where a candidate carries its credential.
type AuthPlacement string

const (
	AuthInConnectionString AuthPlacement = "connection_string"
	AuthInHeader           AuthPlacement = "header"
	AuthInURLQuery         AuthPlacement = "url_query"
	AuthInProperties       AuthPlacement = "properties"
)

// AuthScheme is the credential flavour presented to the engine.
type AuthScheme string

const (
	AuthSchemeBearer AuthScheme = "bearer"
	AuthSchemeBasic  AuthScheme = "basic"
)

// CandidateSource records why a candidate was generated.
type CandidateSource string

const (
	SourceOverride CandidateSource = "override"
	SourcePath     CandidateSource = "path"
	SourceName     CandidateSource = "name"
	SourceEndpoint CandidateSource = "endpoint"
)

// AuthPayload is the credential material of one candidate.
type AuthPayload struct {
	Placement AuthPlacement `json:"placement"`
	Scheme    AuthScheme    `json:"scheme"`
	Token     string        `json:"-"`
	Username  string        `json:"username,omitempty"`
	Password  string        `json:"-"`
	ProjectID string        `json:"projectId,omitempty"`
}

// HasToken reports whether the payload carries a bearer token
func (a AuthPayload) HasToken() bool {
	return a.Scheme == AuthSchemeBearer && a.Token != ""
}

// ConnectionCandidate is one fully specified connection attempt.
type ConnectionCandidate struct {
	Protocol         Protocol        `json:"protocol"`
	Ordinal          int             `json:"ordinal"`
	TargetEndpoint   string          `json:"targetEndpoint"`
	DriverIdentifier string          `json:"driverIdentifier"`
	ConnectionString string          `json:"-"`
	UseTLS           bool            `json:"useTls"`
	SkipVerify       bool            `json:"skipVerify,omitempty"`
	Auth             AuthPayload     `json:"auth"`
	Source           CandidateSource `json:"source"`
}

// String describes the candidate with secrets masked.
func (c ConnectionCandidate) String() string {
	return fmt.Sprintf("%s#%d[%s] %s via %s (auth=%s/%s)",
		c.Protocol, c.Ordinal, c.Source, RedactSecrets(c.TargetEndpoint), c.DriverIdentifier,
		c.Auth.Scheme, c.Auth.Placement)
}

// RedactedConnectionString masks secret values in the connection string
func (c ConnectionCandidate) RedactedConnectionString() string {
	return RedactSecrets(c.ConnectionString)
}

var secretKeys = []string{"token=", "pwd=", "password=", "uid="}

// RedactSecrets masks values of well-known secret keys in key=value strings
// separated by ';' or '&'.
func RedactSecrets(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	parts := splitKeepSeparators(s)
	for _, part := range parts {
		lower := strings.ToLower(part)
		masked := false
		for _, key := range secretKeys {
			if strings.HasPrefix(lower, key) {
				b.WriteString(part[:len(key)])
				b.WriteString("***")
				masked = true
				break
			}
		}
		if !masked {
			b.WriteString(part)
		}
	}
	return b.String()
}

func splitKeepSeparators(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' || s[i] == '&' || s[i] == '?' {
			parts = append(parts, s[start:i], s[i:i+1])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// ConnectionOverrides are explicit per-request connection settings that take
// priority over everything the resolver would derive.
type ConnectionOverrides struct {
	DriverIdentifier string `json:"driverIdentifier,omitempty"`
	Endpoint         string `json:"endpoint,omitempty"`
}

// IsZero reports whether no override is set
func (o ConnectionOverrides) IsZero() bool {
	return o.DriverIdentifier == "" && o.Endpoint == ""
}

// FailureRecord captures why one candidate failed.
type FailureRecord struct {
	CandidateOrdinal int       `json:"candidateOrdinal"`
	RawMessage       string    `json:"rawMessage"`
	ClassifiedKind   ErrorKind `json:"classifiedKind"`
	Suggestions      []string  `json:"suggestions,omitempty"`
}
