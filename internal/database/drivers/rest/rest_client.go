package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultResultLimit    = 500

	// SessionTokenPrefix precedes session tokens issued by the legacy login endpoints
	SessionTokenPrefix = "_dremio"
)

// HTTPStatusError is a non-success response from the REST API.
type HTTPStatusError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode exposes the status to the error classifier
func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// SQLRequest is the body of a statement submission
type SQLRequest struct {
	SQL     string   `json:"sql"`
	Context []string `json:"context,omitempty"`
}

// JobReference is returned by a statement submission
type JobReference struct {
	ID string `json:"id"`
}

// JobStatus is the state of a submitted job
type JobStatus struct {
	JobState     string `json:"jobState"`
	RowCount     int64  `json:"rowCount"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ResultField describes one column of a job result
type ResultField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type,omitempty"`
}

// JobResults is one page of job output
type JobResults struct {
	RowCount int64                    `json:"rowCount"`
	Schema   []ResultField            `json:"schema"`
	Rows     []map[string]interface{} `json:"rows"`
}

// Client calls the SQL job API under one API base URL.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// Authorizer returns the Authorization header value, or "" for none.
type Authorizer func() string

// NewClient creates a REST client. Bearer tokens are attached through an
// oauth2 transport; other schemes (session tokens) through authorize.
func NewClient(apiBase string, base *http.Client, bearerToken string, authorize Authorizer) (*Client, error) {
	if apiBase == "" {
		return nil, fmt.Errorf("API base URL is required")
	}
	if base == nil {
		base = &http.Client{Timeout: DefaultRequestTimeout}
	}

	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	switch {
	case bearerToken != "":
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearerToken}),
			Base:   transport,
		}
	case authorize != nil:
		transport = &headerTransport{authorize: authorize, base: transport}
	}

	return &Client{
		apiBase: strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   base.Timeout,
		},
	}, nil
}

// APIBase returns the base URL every call is relative to
func (c *Client) APIBase() string {
	return c.apiBase
}

// SubmitSQL submits a statement and returns its job id
func (c *Client) SubmitSQL(ctx context.Context, sql string, sqlContext []string) (string, error) {
	var ref JobReference
	if err := c.do(ctx, http.MethodPost, c.apiBase+"/sql", SQLRequest{SQL: sql, Context: sqlContext}, &ref); err != nil {
		return "", err
	}
	if ref.ID == "" {
		return "", fmt.Errorf("no job id returned from SQL submission")
	}
	return ref.ID, nil
}

// GetJobStatus retrieves the state of a job
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	endpoint := fmt.Sprintf("%s/job/%s", c.apiBase, url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetJobResults retrieves one page of a completed job's output
func (c *Client) GetJobResults(ctx context.Context, jobID string, limit, offset int) (*JobResults, error) {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	endpoint := fmt.Sprintf("%s/job/%s/results?limit=%d&offset=%d", c.apiBase, url.PathEscape(jobID), limit, offset)

	var results JobResults
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data)), URL: endpoint}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type headerTransport struct {
	authorize Authorizer
	base      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	value := t.authorize()
	if value == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", value)
	return t.base.RoundTrip(clone)
}
