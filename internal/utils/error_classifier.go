package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"dremio-gateway/internal/model"
)

// Classification is the result of mapping a raw failure to the taxonomy.
type Classification struct {
	Kind        model.ErrorKind `json:"kind"`
	Message     string          `json:"message"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatusCode() int
}

type messageRule struct {
	kind       model.ErrorKind
	substrings []string
}

// Rules are evaluated in order; the first match wins.
var defaultMessageRules = []messageRule{
	{model.KindConfigurationError, []string{
		"x509:", "certificate signed by unknown authority", "certificate verify failed",
		"no credential", "credential is required", "endpoint is required",
	}},
	{model.KindUnrecoverableNegotiationFailure, []string{
		"ssl negotiation failed", "tls: handshake failure", "handshake_failure", "ssl routines",
	}},
	{model.KindMissingToken, []string{
		"personal access token is required", "missing token", "pat is required",
	}},
	{model.KindInvalidToken, []string{
		"invalid token", "token expired", "token has expired", "code = unauthenticated",
		"status 401", "http 401", "unauthorized",
	}},
	{model.KindInsufficientPermissions, []string{
		"code = permissiondenied", "permission denied", "status 403", "http 403", "forbidden", "access denied",
	}},
	{model.KindDriverNotFound, []string{
		"file not found", "no such file", "driver not found", "can't open lib", "cannot open shared object",
		"data source name not found", "im002", "unknown driver", "no suitable driver", "classnotfound",
		"not supported by the bridge",
	}},
	{model.KindTimeout, []string{
		"deadline exceeded", "timed out", "timeout",
	}},
	{model.KindConnectionRefused, []string{
		"connection refused", "actively refused", "no route to host", "connection reset",
		"connection error", "no such host",
		// plaintext port behind a TLS url, or the reverse; specific to one host
		"first record does not look like a tls handshake", "wrong version number",
		"authentication handshake failed",
	}},
}

var statusRules = map[int]model.ErrorKind{
	http.StatusUnauthorized:       model.KindInvalidToken,
	http.StatusForbidden:          model.KindInsufficientPermissions,
	http.StatusRequestTimeout:     model.KindTimeout,
	http.StatusGatewayTimeout:     model.KindTimeout,
	http.StatusBadGateway:         model.KindConnectionRefused,
	http.StatusServiceUnavailable: model.KindConnectionRefused,
}

var kindSuggestions = map[model.ErrorKind][]string{
	model.KindConfigurationError: {
		"Set DREMIO_PAT, or DREMIO_USERNAME and DREMIO_PASSWORD",
		"Check DREMIO_CLOUD_URL or DREMIO_HOST and DREMIO_PORT",
		"For self-signed certificates set DREMIO_SSL_CERT_PATH or DREMIO_SSL_VERIFY=false",
	},
	model.KindInvalidToken: {
		"Generate a new personal access token in the Dremio console",
		"Make sure the token belongs to the configured project",
	},
	model.KindInsufficientPermissions: {
		"Grant the user access to the project or dataset",
		"Ask an administrator to review the token's privileges",
	},
	model.KindMissingToken: {
		"Dremio Cloud only accepts personal access tokens; set DREMIO_PAT",
	},
	model.KindUnrecoverableNegotiationFailure: {
		"The protocol has been disabled for this installation; delete the sentinel file to re-enable it",
		"Try the flight or rest protocol instead",
	},
	model.KindDriverNotFound: {
		"Install the driver package or place the driver artifact in the configured directory",
		"Set an explicit driver identifier override",
	},
	model.KindTimeout: {
		"Check network connectivity to the engine",
		"Increase drivers.connect_timeout",
	},
	model.KindConnectionRefused: {
		"Verify the host and port are reachable",
		"Check that the engine is running and the protocol port is open",
	},
	model.KindUnclassified: {
		"Inspect the raw error message for details",
	},
}

// ErrorClassifier maps raw driver errors and HTTP statuses to the taxonomy.
type ErrorClassifier struct {
	rules []messageRule
}

// NewErrorClassifier creates a classifier with the default rule table
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{rules: defaultMessageRules}
}

// Classify never panics; an unknown error is Unclassified with its raw message.
func (ec *ErrorClassifier) Classify(err error) (cls Classification) {
	defer func() {
		if r := recover(); r != nil {
			cls = ec.build(model.KindUnclassified, fmt.Sprintf("%v", r))
		}
	}()

	if err == nil {
		return ec.build(model.KindUnclassified, "")
	}
	message := err.Error()

	if appErr, ok := AsAppError(err); ok {
		if kind := appErr.Kind(); kind != model.KindUnclassified {
			return ec.build(kind, message)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ec.build(model.KindTimeout, message)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ec.build(model.KindTimeout, message)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ec.build(model.KindConnectionRefused, message)
	}

	var statusErr StatusCoder
	if errors.As(err, &statusErr) {
		if kind, ok := statusRules[statusErr.HTTPStatusCode()]; ok {
			return ec.build(kind, message)
		}
	}

	return ec.ClassifyMessage(message)
}

// ClassifyStatus classifies an HTTP response status
func (ec *ErrorClassifier) ClassifyStatus(status int, body string) Classification {
	message := fmt.Sprintf("unexpected status %d: %s", status, body)
	if kind, ok := statusRules[status]; ok {
		return ec.build(kind, message)
	}
	return ec.ClassifyMessage(message)
}

// ClassifyMessage matches known substrings case-insensitively
func (ec *ErrorClassifier) ClassifyMessage(message string) Classification {
	lower := strings.ToLower(message)
	for _, rule := range ec.rules {
		for _, s := range rule.substrings {
			if strings.Contains(lower, s) {
				return ec.build(rule.kind, message)
			}
		}
	}
	return ec.build(model.KindUnclassified, message)
}

func (ec *ErrorClassifier) build(kind model.ErrorKind, message string) Classification {
	return Classification{
		Kind:        kind,
		Message:     message,
		Suggestions: SuggestionsFor(kind),
	}
}

// SuggestionsFor returns remediation hints for a kind
func SuggestionsFor(kind model.ErrorKind) []string {
	suggestions := kindSuggestions[kind]
	return append([]string(nil), suggestions...)
}
