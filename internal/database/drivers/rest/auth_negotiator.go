package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

// AuthState is a step of REST identity resolution.
type AuthState string

const (
	StateUnauthenticated         AuthState = "Unauthenticated"
	StateTokenValidated          AuthState = "TokenValidated"
	StateEndpointNegotiating     AuthState = "EndpointNegotiating"
	StateCredentialsValidated    AuthState = "CredentialsValidated"
	StateInvalidToken            AuthState = "InvalidToken"
	StateInsufficientPermissions AuthState = "InsufficientPermissions"
	StateMissingToken            AuthState = "MissingToken"
	StateAllEndpointsFailed      AuthState = "AllEndpointsFailed"
)

// IsTerminal reports whether no further negotiation will be attempted
func (s AuthState) IsTerminal() bool {
	switch s {
	case StateInvalidToken, StateInsufficientPermissions, StateMissingToken, StateAllEndpointsFailed:
		return true
	}
	return false
}

// IsAuthenticated reports whether requests can be authorized
func (s AuthState) IsAuthenticated() bool {
	return s == StateTokenValidated || s == StateCredentialsValidated
}

// ErrorKind maps a terminal state onto the failure taxonomy.
func (s AuthState) ErrorKind() model.ErrorKind {
	switch s {
	case StateInvalidToken:
		return model.KindInvalidToken
	case StateInsufficientPermissions:
		return model.KindInsufficientPermissions
	case StateMissingToken:
		return model.KindMissingToken
	default:
		return model.KindUnclassified
	}
}

const projectsPath = "/v0/projects"

// LoginPaths are tried in order for username/password authentication.
var LoginPaths = []string{"/v0/login", "/api/v3/login", "/apiv2/login", "/login"}

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// NegotiatorConfig configures an AuthNegotiator
type NegotiatorConfig struct {
	// ServerURL is the scheme://host[:port] root the API paths hang off
	ServerURL  string
	Cloud      bool
	Credential model.Credential
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// AuthNegotiator resolves a REST identity once and remembers the outcome.
type AuthNegotiator struct {
	serverURL  string
	cloud      bool
	credential model.Credential
	httpClient *http.Client
	logger     *zap.Logger

	mu           sync.Mutex
	state        AuthState
	err          error
	sessionToken string
	projects     []model.Project
	attempted    []string
}

// NewAuthNegotiator creates a negotiator in the Unauthenticated state
func NewAuthNegotiator(cfg NegotiatorConfig) *AuthNegotiator {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthNegotiator{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		cloud:      cfg.Cloud,
		credential: cfg.Credential,
		httpClient: httpClient,
		logger:     logger,
		state:      StateUnauthenticated,
	}
}

// State returns the current state
func (n *AuthNegotiator) State() AuthState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// AttemptedPaths lists login paths tried during endpoint negotiation
func (n *AuthNegotiator) AttemptedPaths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.attempted...)
}

// Negotiate resolves the identity. The result of the first call is reused.
func (n *AuthNegotiator) Negotiate(ctx context.Context) (AuthState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state.IsAuthenticated() || n.state.IsTerminal() {
		return n.state, n.err
	}
	n.err = nil

	switch {
	case n.credential.HasToken():
		n.validateToken(ctx)
	case n.cloud:
		n.fail(StateMissingToken, "a personal access token is required for cloud deployments", nil)
	case n.credential.Kind() == model.CredentialUsernamePassword:
		n.negotiateLogin(ctx)
	default:
		n.fail(StateMissingToken, "no token or username/password configured", nil)
	}

	n.logger.Debug("rest authentication negotiated", zap.String("state", string(n.state)))
	return n.state, n.err
}

// Authorization returns the Authorization header for authenticated requests.
func (n *AuthNegotiator) Authorization() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StateTokenValidated:
		return "Bearer " + n.credential.Token()
	case StateCredentialsValidated:
		return SessionTokenPrefix + n.sessionToken
	}
	return ""
}

// BearerToken returns the validated personal access token, if any
func (n *AuthNegotiator) BearerToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateTokenValidated {
		return n.credential.Token()
	}
	return ""
}

// Projects returns the projects cached during token validation, or lists
// them afresh.
func (n *AuthNegotiator) Projects(ctx context.Context) ([]model.Project, error) {
	state, err := n.Negotiate(ctx)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	cached := n.projects
	n.mu.Unlock()
	if cached != nil {
		return append([]model.Project(nil), cached...), nil
	}
	if !state.IsAuthenticated() {
		return nil, utils.NewKindError(state.ErrorKind(), fmt.Sprintf("rest authentication ended in %s", state), nil)
	}

	resp, err := n.get(ctx, projectsPath, n.Authorization())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data)), URL: n.serverURL + projectsPath}
	}
	projects, err := decodeProjects(resp.Body)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.projects = projects
	n.mu.Unlock()
	return append([]model.Project(nil), projects...), nil
}

func (n *AuthNegotiator) validateToken(ctx context.Context) {
	resp, err := n.get(ctx, projectsPath, "Bearer "+n.credential.Token())
	if err != nil {
		n.retryLater("token validation request failed", err)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		projects, err := decodeProjects(resp.Body)
		if err != nil {
			n.logger.Warn("could not decode project list", zap.Error(err))
		}
		n.projects = projects
		n.state = StateTokenValidated
	case http.StatusUnauthorized:
		n.fail(StateInvalidToken, "personal access token was rejected (status 401)", nil)
	case http.StatusForbidden:
		n.fail(StateInsufficientPermissions, "personal access token lacks permission to list projects (status 403)", nil)
	case http.StatusNotFound:
		if n.cloud {
			n.fail(StateAllEndpointsFailed, "project listing endpoint not found (status 404)", nil)
			return
		}
		// software deployments do not serve the project listing
		n.state = StateTokenValidated
	default:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data)), URL: n.serverURL + projectsPath}
		if resp.StatusCode >= http.StatusInternalServerError {
			n.retryLater("token validation failed", statusErr)
			return
		}
		n.fail(StateAllEndpointsFailed, "token validation failed", statusErr)
	}
}

func (n *AuthNegotiator) negotiateLogin(ctx context.Context) {
	n.state = StateEndpointNegotiating
	payload, err := json.Marshal(loginRequest{UserName: n.credential.Username(), Password: n.credential.Password()})
	if err != nil {
		n.fail(StateAllEndpointsFailed, "failed to encode login request", err)
		return
	}

	var (
		lastErr   error
		responded bool
	)
	n.attempted = nil
	for _, path := range LoginPaths {
		n.attempted = append(n.attempted, path)

		token, err := n.login(ctx, path, payload)
		if err != nil {
			n.logger.Debug("login endpoint rejected", zap.String("path", path), zap.Error(err))
			lastErr = err
			if !isTransportError(err) {
				responded = true
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		n.sessionToken = token
		n.state = StateCredentialsValidated
		n.logger.Info("rest login succeeded", zap.String("path", path))
		return
	}

	message := fmt.Sprintf("all login endpoints failed: %s", strings.Join(n.attempted, ", "))
	if !responded {
		n.retryLater(message, lastErr)
		return
	}
	n.fail(StateAllEndpointsFailed, message, lastErr)
}

func (n *AuthNegotiator) login(ctx context.Context, path string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, URL: n.serverURL + path}
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data)), URL: n.serverURL + path}
	}

	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("malformed login response from %s: %w", path, err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("login response from %s carries no token", path)
	}
	return body.Token, nil
}

func (n *AuthNegotiator) get(ctx context.Context, path, authorization string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.serverURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// fail moves to a terminal state. Callers hold the lock.
func (n *AuthNegotiator) fail(state AuthState, message string, cause error) {
	n.state = state
	n.err = utils.NewKindError(state.ErrorKind(), message, cause)
	n.logger.Warn("rest authentication failed",
		zap.String("state", string(state)),
		zap.String("reason", message))
}

// decodeProjects accepts either a bare array or an object wrapping it.
func decodeProjects(r io.Reader) ([]model.Project, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		projects := make([]model.Project, 0)
		if err := json.Unmarshal(trimmed, &projects); err != nil {
			return nil, fmt.Errorf("failed to decode projects: %w", err)
		}
		return projects, nil
	}

	var wrapped struct {
		Data     []model.Project `json:"data"`
		Projects []model.Project `json:"projects"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	switch {
	case wrapped.Data != nil:
		return wrapped.Data, nil
	case wrapped.Projects != nil:
		return wrapped.Projects, nil
	}
	return nil, errors.New("failed to decode projects: no project list in response")
}

// retryLater records a failure that says nothing about the credential. The
// negotiator stays Unauthenticated so the next call tries again.
func (n *AuthNegotiator) retryLater(message string, cause error) {
	n.state = StateUnauthenticated
	n.err = utils.NewKindError(transientClassifier.Classify(cause).Kind, message, cause)
	n.logger.Warn("rest authentication interrupted",
		zap.String("reason", message),
		zap.Error(cause))
}

// isTransportError reports failures that never produced a usable HTTP answer
func isTransportError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusInternalServerError
}

var transientClassifier = utils.NewErrorClassifier()
