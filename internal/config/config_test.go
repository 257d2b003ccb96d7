package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

func clearDremioEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearDremioEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 9047, cfg.Dremio.Port)
	assert.True(t, cfg.Dremio.SSLVerify)
	assert.Equal(t, []string{"flight", "jdbc", "odbc", "rest"}, cfg.Drivers.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Drivers.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.Drivers.REST.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.Drivers.REST.MaxWait)
	assert.Equal(t, 500, cfg.Drivers.REST.ResultLimit)
	assert.Equal(t, 24*time.Hour, cfg.Security.JWTExpiration)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearDremioEnv(t)
	t.Setenv("DREMIO_HOST", "dremio.internal")
	t.Setenv("DREMIO_PORT", "19047")
	t.Setenv("DREMIO_PAT", "pat-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dremio.internal", cfg.Dremio.Host)
	assert.Equal(t, 19047, cfg.Dremio.Port)
	assert.Equal(t, "http://dremio.internal:19047", cfg.Dremio.EndpointURL())
	assert.True(t, cfg.Dremio.Credential().HasToken())
	assert.NoError(t, cfg.Dremio.Validate())
}

func TestLoad_ConfigFile(t *testing.T) {
	clearDremioEnv(t)
	dir := t.TempDir()
	content := `
dremio:
  cloud_url: https://api.dremio.cloud
  project_id: proj-1
  username: alice
  password: secret
drivers:
  enabled: [flight, rest]
  parallel: true
  rest:
    poll_interval: 500ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://api.dremio.cloud", cfg.Dremio.EndpointURL())
	assert.True(t, cfg.Dremio.Target().IsCloud())
	assert.Equal(t, "proj-1", cfg.Dremio.Target().ProjectID)
	assert.Equal(t, model.CredentialUsernamePassword, cfg.Dremio.Credential().Kind())
	assert.True(t, cfg.Drivers.Parallel)
	assert.Equal(t, 500*time.Millisecond, cfg.Drivers.REST.PollInterval)
	assert.Equal(t, []model.Protocol{model.ProtocolFlight, model.ProtocolREST}, cfg.Drivers.EnabledProtocols())
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	clearDremioEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("dremio: [unclosed"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestDremioConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DremioConfig
		wantErr string
	}{
		{name: "no endpoint", cfg: DremioConfig{PAT: "t"}, wantErr: "endpoint is required"},
		{name: "no credential", cfg: DremioConfig{Host: "localhost"}, wantErr: "no credential configured"},
		{name: "username without password", cfg: DremioConfig{Host: "localhost", Username: "alice"}, wantErr: "no credential configured"},
		{name: "token", cfg: DremioConfig{CloudURL: "https://api.dremio.cloud", PAT: "t"}},
		{name: "password", cfg: DremioConfig{Host: "localhost", Username: "alice", Password: "secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, utils.IsErrorType(err, utils.ErrCodeConfiguration))
		})
	}
}

func TestDremioConfig_EndpointURL(t *testing.T) {
	assert.Equal(t, "", DremioConfig{}.EndpointURL())
	assert.Equal(t, "http://localhost:9047", DremioConfig{Host: "localhost"}.EndpointURL())
	assert.Equal(t, "https://api.dremio.cloud", DremioConfig{CloudURL: "https://api.dremio.cloud", Host: "ignored"}.EndpointURL())
}

func TestDremioConfig_CopiesAreIndependent(t *testing.T) {
	base := DremioConfig{Host: "localhost", ProjectID: "base"}

	scoped := base.WithProjectID("other")
	assert.Equal(t, "other", scoped.ProjectID)
	assert.Equal(t, "base", base.ProjectID)
	assert.Equal(t, "base", base.WithProjectID("").ProjectID)

	moved := base.WithEndpoint("https://api.eu.dremio.cloud")
	assert.Equal(t, "https://api.eu.dremio.cloud", moved.EndpointURL())
	assert.Equal(t, "http://localhost:9047", base.EndpointURL())
}

func TestDriversConfig_EnabledProtocols(t *testing.T) {
	cfg := DriversConfig{Enabled: []string{"REST", "mqtt", "odbc"}}
	assert.Equal(t, []model.Protocol{model.ProtocolREST, model.ProtocolODBC}, cfg.EnabledProtocols())
}
