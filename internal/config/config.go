package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Dremio   DremioConfig   `mapstructure:"dremio"`
	Drivers  DriversConfig  `mapstructure:"drivers"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	Host string `mapstructure:"host"`
}

// DremioConfig describes the engine deployment and the credential used to reach it.
type DremioConfig struct {
	CloudURL    string `mapstructure:"cloud_url"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	PAT         string `mapstructure:"pat"`
	ProjectID   string `mapstructure:"project_id"`
	SSLVerify   bool   `mapstructure:"ssl_verify"`
	SSLCertPath string `mapstructure:"ssl_cert_path"`
}

type DriversConfig struct {
	Enabled            []string      `mapstructure:"enabled"`
	ArtifactDir        string        `mapstructure:"artifact_dir"`
	SentinelDir        string        `mapstructure:"sentinel_dir"`
	ODBCLibraryPaths   []string      `mapstructure:"odbc_library_paths"`
	ODBCLibraryPattern string        `mapstructure:"odbc_library_pattern"`
	ODBCDriverNames    []string      `mapstructure:"odbc_driver_names"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	Parallel           bool          `mapstructure:"parallel"`
	REST               RESTConfig    `mapstructure:"rest"`
}

type RESTConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxWait        time.Duration `mapstructure:"max_wait"`
	ResultLimit    int           `mapstructure:"result_limit"`
}

type SecurityConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	JWTExpiration      time.Duration `mapstructure:"jwt_expiration"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	EnableAuth         bool          `mapstructure:"enable_auth"`
	EnableRateLimit    bool          `mapstructure:"enable_rate_limit"`
	ReadOnlyQueries    bool          `mapstructure:"read_only_queries"`
	MaxQueryLength     int           `mapstructure:"max_query_length"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps config keys onto the conventional DREMIO_* variables
var envBindings = map[string]string{
	"dremio.cloud_url":     "DREMIO_CLOUD_URL",
	"dremio.host":          "DREMIO_HOST",
	"dremio.port":          "DREMIO_PORT",
	"dremio.username":      "DREMIO_USERNAME",
	"dremio.password":      "DREMIO_PASSWORD",
	"dremio.pat":           "DREMIO_PAT",
	"dremio.project_id":    "DREMIO_PROJECT_ID",
	"dremio.ssl_verify":    "DREMIO_SSL_VERIFY",
	"dremio.ssl_cert_path": "DREMIO_SSL_CERT_PATH",
}

// Load reads .env, then config.yaml from ./configs, . and paths, then the environment.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.host", "0.0.0.0")

	// Dremio defaults
	v.SetDefault("dremio.cloud_url", "")
	v.SetDefault("dremio.host", "")
	v.SetDefault("dremio.port", 9047)
	v.SetDefault("dremio.username", "")
	v.SetDefault("dremio.password", "")
	v.SetDefault("dremio.pat", "")
	v.SetDefault("dremio.project_id", "")
	v.SetDefault("dremio.ssl_verify", true)
	v.SetDefault("dremio.ssl_cert_path", "")

	// Driver defaults
	v.SetDefault("drivers.enabled", []string{"flight", "jdbc", "odbc", "rest"})
	v.SetDefault("drivers.artifact_dir", "jdbc-drivers")
	v.SetDefault("drivers.sentinel_dir", ".")
	v.SetDefault("drivers.odbc_library_pattern", "libarrow-odbc.so*")
	v.SetDefault("drivers.connect_timeout", "30s")
	v.SetDefault("drivers.parallel", false)
	v.SetDefault("drivers.rest.request_timeout", "30s")
	v.SetDefault("drivers.rest.poll_interval", "2s")
	v.SetDefault("drivers.rest.max_wait", "300s")
	v.SetDefault("drivers.rest.result_limit", 500)

	// Security defaults
	v.SetDefault("security.jwt_secret", "your-secret-key")
	v.SetDefault("security.jwt_expiration", "24h")
	v.SetDefault("security.rate_limit_per_minute", 60)
	v.SetDefault("security.rate_limit_burst", 10)
	v.SetDefault("security.enable_auth", false)
	v.SetDefault("security.enable_rate_limit", true)
	v.SetDefault("security.read_only_queries", false)
	v.SetDefault("security.max_query_length", 100000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// EndpointURL is the configured cloud URL, or http://host:port for a bare host.
func (d DremioConfig) EndpointURL() string {
	if d.CloudURL != "" {
		return d.CloudURL
	}
	if d.Host == "" {
		return ""
	}
	port := d.Port
	if port == 0 {
		port = 9047
	}
	return fmt.Sprintf("http://%s:%d", d.Host, port)
}

// Target derives the immutable deployment target
func (d DremioConfig) Target() model.DeploymentTarget {
	return model.NewDeploymentTarget(d.EndpointURL(), d.ProjectID)
}

// Credential derives the credential; the token wins over username/password.
func (d DremioConfig) Credential() model.Credential {
	return model.NewCredential(d.PAT, d.Username, d.Password)
}

// Validate reports settings without which no protocol can connect
func (d DremioConfig) Validate() error {
	if d.EndpointURL() == "" {
		return utils.NewConfigurationError("dremio endpoint is required: set DREMIO_CLOUD_URL or DREMIO_HOST")
	}
	if d.Credential().IsEmpty() {
		return utils.NewConfigurationError("no credential configured: set DREMIO_PAT or DREMIO_USERNAME and DREMIO_PASSWORD")
	}
	return nil
}

// WithProjectID returns a copy targeting another project
func (d DremioConfig) WithProjectID(projectID string) DremioConfig {
	if projectID != "" {
		d.ProjectID = projectID
	}
	return d
}

// WithEndpoint returns a copy pointing at another endpoint URL
func (d DremioConfig) WithEndpoint(endpointURL string) DremioConfig {
	if endpointURL != "" {
		d.CloudURL = endpointURL
	}
	return d
}

// EnabledProtocols parses the enabled list, dropping unknown names
func (d DriversConfig) EnabledProtocols() []model.Protocol {
	protocols, _ := model.ParseProtocols(d.Enabled)
	return protocols
}
