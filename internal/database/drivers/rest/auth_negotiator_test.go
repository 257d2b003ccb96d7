package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

// recorder counts the paths a test server was asked for
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) hits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func newNegotiator(t *testing.T, url string, cloud bool, credential model.Credential) *AuthNegotiator {
	return NewAuthNegotiator(NegotiatorConfig{
		ServerURL:  url,
		Cloud:      cloud,
		Credential: credential,
		Logger:     zaptest.NewLogger(t),
	})
}

func projectsServer(t *testing.T, rec *recorder, status int, body string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path)
		assert.Equal(t, "/v0/projects", r.URL.Path)
		assert.Equal(t, "Bearer pat-token", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAuthNegotiator_TokenValidated(t *testing.T) {
	rec := &recorder{}
	server := projectsServer(t, rec, http.StatusOK, `{"data":[{"id":"p1","name":"Analytics"}]}`)
	negotiator := newNegotiator(t, server.URL, true, model.TokenCredential("pat-token"))

	state, err := negotiator.Negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTokenValidated, state)
	assert.Equal(t, "Bearer pat-token", negotiator.Authorization())
	assert.Equal(t, "pat-token", negotiator.BearerToken())

	projects, err := negotiator.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Analytics", projects[0].Name)
	assert.Len(t, rec.hits(), 1, "projects are cached from token validation")
}

func TestAuthNegotiator_TokenRejections(t *testing.T) {
	tests := []struct {
		status int
		state  AuthState
		kind   model.ErrorKind
	}{
		{http.StatusUnauthorized, StateInvalidToken, model.KindInvalidToken},
		{http.StatusForbidden, StateInsufficientPermissions, model.KindInsufficientPermissions},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			rec := &recorder{}
			server := projectsServer(t, rec, tt.status, "nope")
			negotiator := newNegotiator(t, server.URL, true, model.TokenCredential("pat-token"))

			state, err := negotiator.Negotiate(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.state, state)
			assert.True(t, state.IsTerminal())
			assert.Equal(t, tt.kind, kindOf(err))
			assert.Empty(t, negotiator.Authorization())

			// terminal states are not renegotiated
			again, _ := negotiator.Negotiate(context.Background())
			assert.Equal(t, tt.state, again)
			assert.Len(t, rec.hits(), 1)
		})
	}
}

// flakyServer drops the connection of the first failures requests, then
// answers with handler
func flakyServer(t *testing.T, failures int, handler http.HandlerFunc) (*httptest.Server, *recorder) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path)
		if len(rec.hits()) <= failures {
			conn, _, err := w.(http.Hijacker).Hijack()
			if assert.NoError(t, err) {
				_ = conn.Close()
			}
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func TestAuthNegotiator_TransportErrorIsRetried(t *testing.T) {
	server, rec := flakyServer(t, 1, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"p1","name":"Analytics"}]}`))
	})
	negotiator := newNegotiator(t, server.URL, true, model.TokenCredential("pat-token"))

	state, err := negotiator.Negotiate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUnauthenticated, state)
	assert.False(t, state.IsTerminal())
	assert.Contains(t, err.Error(), "token validation request failed")

	projects, err := negotiator.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, StateTokenValidated, negotiator.State())
	assert.Len(t, rec.hits(), 2)
}

func TestAuthNegotiator_ServerErrorIsRetried(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	negotiator := newNegotiator(t, server.URL, true, model.TokenCredential("pat-token"))
	state, err := negotiator.Negotiate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUnauthenticated, state)
	assert.Equal(t, model.KindConnectionRefused, kindOf(err))

	state, err = negotiator.Negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTokenValidated, state)
}

func TestAuthNegotiator_UnreachableLoginIsRetried(t *testing.T) {
	server, rec := flakyServer(t, len(LoginPaths), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"session-2"}`))
	})
	negotiator := newNegotiator(t, server.URL, false, model.PasswordCredential("alice", "secret"))

	state, err := negotiator.Negotiate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUnauthenticated, state)
	assert.Len(t, rec.hits(), len(LoginPaths))

	state, err = negotiator.Negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCredentialsValidated, state)
	assert.Equal(t, []string{"/v0/login"}, negotiator.AttemptedPaths())
	assert.Equal(t, SessionTokenPrefix+"session-2", negotiator.Authorization())
}

func TestAuthNegotiator_NotFoundOnSoftwareDeployment(t *testing.T) {
	rec := &recorder{}
	server := projectsServer(t, rec, http.StatusNotFound, "")

	onPrem := newNegotiator(t, server.URL, false, model.TokenCredential("pat-token"))
	state, err := onPrem.Negotiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTokenValidated, state)

	cloud := newNegotiator(t, server.URL, true, model.TokenCredential("pat-token"))
	state, err = cloud.Negotiate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateAllEndpointsFailed, state)
}

func TestAuthNegotiator_CloudPasswordNeedsNoNetwork(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	negotiator := newNegotiator(t, server.URL, true, model.PasswordCredential("alice", "secret"))
	state, err := negotiator.Negotiate(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateMissingToken, state)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeMissingToken))
	assert.Empty(t, rec.hits())
}

func TestAuthNegotiator_LoginFallsBackThroughPaths(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path)
		switch r.URL.Path {
		case "/v0/login":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v3/login":
			w.WriteHeader(http.StatusMethodNotAllowed)
		case "/apiv2/login":
			var body loginRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "alice", body.UserName)
			assert.Equal(t, "secret", body.Password)
			_, _ = w.Write([]byte(`{"token":"session-1"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	negotiator := newNegotiator(t, server.URL, false, model.PasswordCredential("alice", "secret"))
	state, err := negotiator.Negotiate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateCredentialsValidated, state)
	assert.Equal(t, []string{"/v0/login", "/api/v3/login", "/apiv2/login"}, negotiator.AttemptedPaths())
	assert.Equal(t, []string{"/v0/login", "/api/v3/login", "/apiv2/login"}, rec.hits())
	assert.Equal(t, SessionTokenPrefix+"session-1", negotiator.Authorization())
	assert.Empty(t, negotiator.BearerToken())
}

func TestAuthNegotiator_AllLoginPathsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	negotiator := newNegotiator(t, server.URL, false, model.PasswordCredential("alice", "secret"))
	state, err := negotiator.Negotiate(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateAllEndpointsFailed, state)
	assert.Equal(t, LoginPaths, negotiator.AttemptedPaths())
	assert.Contains(t, err.Error(), "/login")
}

func TestAuthNegotiator_NoCredential(t *testing.T) {
	negotiator := newNegotiator(t, "http://127.0.0.1:1", false, model.Credential{})
	state, err := negotiator.Negotiate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateMissingToken, state)
}

func TestDecodeProjects(t *testing.T) {
	server := projectsServer(t, &recorder{}, http.StatusOK, `[{"id":"a","name":"A"},{"id":"b","name":"B"}]`)
	negotiator := newNegotiator(t, server.URL, false, model.TokenCredential("pat-token"))

	projects, err := negotiator.Projects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

// kindOf extracts the taxonomy kind of a negotiation error
func kindOf(err error) model.ErrorKind {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		return ""
	}
	return appErr.Kind()
}
