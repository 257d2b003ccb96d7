package bridge

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-adbc/go/adbc/driver/flightsql"

	"dremio-gateway/internal/model"
)

const (
	FlightSQLScheme    = "jdbc:arrow-flight-sql://"
	LegacyDremioScheme = "jdbc:dremio:direct="

	FlightSQLDriverClass = "org.apache.arrow.driver.jdbc.ArrowFlightJdbcDriver"
	LegacyDriverClass    = "com.dremio.jdbc.Driver"

	callHeaderPrefix = "adbc.flight.sql.rpc.call_header."
)

// reserved JDBC URL parameters that map to dedicated ADBC options
var reservedParams = map[string]bool{
	"useencryption":                  true,
	"token":                          true,
	"user":                           true,
	"password":                       true,
	"disablecertificateverification": true,
}

// flightTarget is a JDBC URL reduced to what the Flight SQL bridge needs
type flightTarget struct {
	hostPort   string
	tls        bool
	skipVerify bool
	token      string
	user       string
	password   string
	headers    map[string]string
}

// DatabaseOptions translates a JDBC URL plus the candidate's credential
// properties into ADBC database options. Flight SQL URLs map one to one;
// legacy Dremio URLs are carried over the Flight SQL protocol on the same
// host, with PROJECT_ID sent as the project_id call header.
func DatabaseOptions(jdbcURL string, auth model.AuthPayload) (map[string]string, error) {
	var (
		target flightTarget
		err    error
	)
	switch {
	case strings.HasPrefix(jdbcURL, LegacyDremioScheme):
		target, err = parseLegacyURL(jdbcURL)
	case strings.HasPrefix(jdbcURL, FlightSQLScheme):
		target, err = parseFlightSQLURL(jdbcURL)
	default:
		return nil, fmt.Errorf("unknown driver for JDBC URL scheme: %s", schemeOf(jdbcURL))
	}
	if err != nil {
		return nil, err
	}

	transport := "grpc+tcp"
	if target.tls {
		transport = "grpc+tls"
	}
	opts := map[string]string{
		adbc.OptionKeyURI: fmt.Sprintf("%s://%s", transport, target.hostPort),
	}

	token := target.token
	if token == "" && auth.HasToken() {
		token = auth.Token
	}
	switch {
	case token != "":
		opts[flightsql.OptionAuthorizationHeader] = "Bearer " + token
	case auth.Username != "":
		opts[adbc.OptionKeyUsername] = auth.Username
		opts[adbc.OptionKeyPassword] = auth.Password
	case target.user != "":
		opts[adbc.OptionKeyUsername] = target.user
		opts[adbc.OptionKeyPassword] = target.password
	}

	if target.skipVerify {
		opts[flightsql.OptionSSLSkipVerify] = adbc.OptionValueEnabled
	}
	for key, value := range target.headers {
		opts[callHeaderPrefix+key] = value
	}
	return opts, nil
}

func parseFlightSQLURL(jdbcURL string) (flightTarget, error) {
	parsed, err := url.Parse("flight://" + strings.TrimPrefix(jdbcURL, FlightSQLScheme))
	if err != nil {
		return flightTarget{}, fmt.Errorf("invalid JDBC URL: %w", err)
	}
	query := parsed.Query()

	target := flightTarget{
		hostPort:   parsed.Host,
		tls:        isTrue(lookup(query, "useEncryption")),
		skipVerify: isTrue(lookup(query, "disableCertificateVerification")),
		token:      lookup(query, "token"),
		user:       lookup(query, "user"),
		password:   lookup(query, "password"),
		headers:    make(map[string]string),
	}
	for key := range query {
		if !reservedParams[strings.ToLower(key)] {
			target.headers[key] = query.Get(key)
		}
	}
	return target, nil
}

// parseLegacyURL reads jdbc:dremio:direct=host:port[;key=value...]
func parseLegacyURL(jdbcURL string) (flightTarget, error) {
	parts := strings.Split(strings.TrimPrefix(jdbcURL, LegacyDremioScheme), ";")
	if parts[0] == "" {
		return flightTarget{}, fmt.Errorf("invalid JDBC URL: missing host in %s", LegacyDremioScheme)
	}

	target := flightTarget{hostPort: parts[0], headers: make(map[string]string)}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "ssl":
			target.tls = isTrue(value)
		case "disablecertificateverification":
			target.skipVerify = isTrue(value)
		case "token":
			target.token = value
		case "user":
			target.user = value
		case "password":
			target.password = value
		case "project_id":
			target.headers["project_id"] = value
		default:
			target.headers[key] = value
		}
	}
	return target, nil
}

// lookup finds a query parameter case-insensitively, as JDBC drivers do
func lookup(query url.Values, key string) string {
	if v := query.Get(key); v != "" {
		return v
	}
	for k, values := range query {
		if strings.EqualFold(k, key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func schemeOf(jdbcURL string) string {
	if i := strings.Index(jdbcURL, "//"); i > 0 {
		return jdbcURL[:i]
	}
	if i := strings.Index(jdbcURL, "="); i > 0 {
		return jdbcURL[:i]
	}
	return jdbcURL
}
