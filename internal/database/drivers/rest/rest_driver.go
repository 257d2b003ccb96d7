package rest

import (
	"context"
	"crypto/tls"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

// Options configures the REST driver
type Options struct {
	RequestTimeout time.Duration
	PollInterval   time.Duration
	MaxWait        time.Duration
	ResultLimit    int
	// Transport overrides the HTTP transport, used by tests
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// RESTDriver runs statements through the SQL job API. Candidates carry the
// server root in TargetEndpoint and the API base in ConnectionString.
type RESTDriver struct {
	*drivers.DriverBase
	opts   Options
	logger *zap.Logger
}

// NewRESTDriver creates the REST driver
func NewRESTDriver(opts Options) *RESTDriver {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTDriver{
		DriverBase: drivers.NewDriverBase(model.ProtocolREST, "Dremio REST SQL API", "golang.org/x/oauth2"),
		opts:       opts,
		logger:     logger,
	}
}

type restHandle struct {
	negotiator *AuthNegotiator
	poller     *JobPoller
}

func (h *restHandle) Protocol() model.Protocol { return model.ProtocolREST }

// CheckAvailability always succeeds: plain HTTP needs no native component.
func (d *RESTDriver) CheckAvailability() error {
	return nil
}

func (d *RESTDriver) GetCapabilities() model.ProtocolCapabilities {
	return model.ProtocolCapabilities{
		ReportsSchema:    true,
		SupportsProjects: true,
	}
}

// Open negotiates authentication and prepares a job client.
func (d *RESTDriver) Open(ctx context.Context, candidate model.ConnectionCandidate) (drivers.Handle, error) {
	if candidate.ConnectionString == "" {
		return nil, utils.NewConfigurationError("rest endpoint is required")
	}

	httpClient := d.httpClient(candidate.SkipVerify)
	target := model.NewDeploymentTarget(candidate.TargetEndpoint, candidate.Auth.ProjectID)

	negotiator := NewAuthNegotiator(NegotiatorConfig{
		ServerURL:  candidate.TargetEndpoint,
		Cloud:      target.IsCloud(),
		Credential: credentialOf(candidate.Auth),
		HTTPClient: httpClient,
		Logger:     d.logger,
	})
	if _, err := negotiator.Negotiate(ctx); err != nil {
		return nil, err
	}

	client, err := NewClient(candidate.ConnectionString, httpClient, negotiator.BearerToken(), negotiator.Authorization)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("rest client ready", zap.String("api_base", client.APIBase()))
	return &restHandle{
		negotiator: negotiator,
		poller:     NewJobPoller(client, d.opts.PollInterval, d.opts.MaxWait, d.opts.ResultLimit),
	}, nil
}

// Run submits the statement as a job and converts its first result page.
func (d *RESTDriver) Run(ctx context.Context, handle drivers.Handle, sql string) (*drivers.NativeResult, error) {
	if err := d.CheckHandle(handle); err != nil {
		return nil, err
	}
	h := handle.(*restHandle)

	results, err := h.poller.ExecuteAndWait(ctx, sql)
	if err != nil {
		return nil, err
	}
	return toNativeResult(results, sql), nil
}

func (d *RESTDriver) Close(handle drivers.Handle) error {
	return d.CheckHandle(handle)
}

func (d *RESTDriver) httpClient(skipVerify bool) *http.Client {
	transport := d.opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		if skipVerify {
			base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		transport = base
	}
	return &http.Client{Transport: transport, Timeout: d.opts.RequestTimeout}
}

func credentialOf(auth model.AuthPayload) model.Credential {
	if auth.HasToken() {
		return model.TokenCredential(auth.Token)
	}
	if auth.Username != "" {
		return model.PasswordCredential(auth.Username, auth.Password)
	}
	return model.Credential{}
}

// toNativeResult orders row values by the reported schema. Without a schema,
// columns come from the row keys, preferring the SELECT-list order, and are
// marked inferred; with neither, Columns stays nil.
func toNativeResult(results *JobResults, sql string) *drivers.NativeResult {
	var (
		columns  []string
		inferred bool
	)
	if len(results.Schema) > 0 {
		columns = make([]string, 0, len(results.Schema))
		for _, field := range results.Schema {
			columns = append(columns, field.Name)
		}
	} else if len(results.Rows) > 0 {
		columns = columnsFromRow(results.Rows[0], sql)
		inferred = true
	}

	native := &drivers.NativeResult{
		Columns:         columns,
		ColumnsInferred: inferred,
		Rows:            make([][]interface{}, 0, len(results.Rows)),
	}
	for _, row := range results.Rows {
		values := make([]interface{}, len(columns))
		for i, name := range columns {
			values[i] = row[name]
		}
		native.Rows = append(native.Rows, values)
	}
	return native
}

func columnsFromRow(row map[string]interface{}, sql string) []string {
	inferred := utils.InferColumnsFromSQL(sql)
	if len(inferred) == len(row) {
		matched := true
		for _, name := range inferred {
			if _, ok := row[name]; !ok {
				matched = false
				break
			}
		}
		if matched {
			return inferred
		}
	}

	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ServerRoot returns the REST server root used for login paths
func ServerRoot(target model.DeploymentTarget) string {
	return target.RESTRoot()
}
