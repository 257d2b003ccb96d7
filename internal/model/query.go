package model

import (
	"time"
)

// QueryRequest represents a multi-protocol query request
type QueryRequest struct {
	SQL       string                         `json:"sql" validate:"required"`
	Protocols []string                       `json:"protocols" validate:"omitempty,dive,oneof=flight jdbc odbc rest"`
	ProjectID string                         `json:"projectId" validate:"omitempty,max=64"`
	Overrides map[string]ConnectionOverrides `json:"overrides"`
	Timeout   int                            `json:"timeout" validate:"omitempty,min=1,max=900"` // timeout in seconds
}

// TestConnectionRequest asks for a connectivity check per protocol
type TestConnectionRequest struct {
	Protocols []string `json:"protocols" validate:"omitempty,dive,oneof=flight jdbc odbc rest"`
	ProjectID string   `json:"projectId" validate:"omitempty,max=64"`
}

// ApplyDefaults applies default values to the QueryRequest
func (qr *QueryRequest) ApplyDefaults(defaultProtocols []string) {
	if len(qr.Protocols) == 0 {
		qr.Protocols = append([]string(nil), defaultProtocols...)
	}
	if qr.Timeout <= 0 {
		qr.Timeout = 300 // REST jobs may poll for up to five minutes
	}
}

// SchemaSource tells callers whether column names are authoritative.
type SchemaSource string

const (
	// SchemaKnown columns were reported by the driver.
	SchemaKnown SchemaSource = "known"
	// SchemaInferred columns were guessed from the SELECT list and may be wrong.
	SchemaInferred SchemaSource = "inferred"
)

// QueryResult is the protocol-independent result of one statement.
// RowCount always equals len(Rows).
type QueryResult struct {
	Columns         []string                 `json:"columns"`
	Rows            []map[string]interface{} `json:"rows"`
	RowCount        int                      `json:"rowCount"`
	ExecutionTimeMs int64                    `json:"executionTimeMs"`
	ProtocolUsed    Protocol                 `json:"protocolUsed"`
	SchemaSource    SchemaSource             `json:"schemaSource"`
}

// ProtocolReport is one protocol's entry in a multi-protocol report.
type ProtocolReport struct {
	Success         bool      `json:"success"`
	DisplayName     string    `json:"displayName,omitempty"`
	RowCount        *int      `json:"rowCount,omitempty"`
	Columns         []string  `json:"columns,omitempty"`
	ExecutionTimeMs *int64    `json:"executionTimeMs,omitempty"`
	SchemaSource    string    `json:"schemaSource,omitempty"`
	ErrorKind       ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	Suggestions     []string  `json:"suggestions,omitempty"`

	Result *QueryResult `json:"result,omitempty"`
}

// ReportSummary counts outcomes across protocols
type ReportSummary struct {
	TotalRequested int `json:"totalRequested"`
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
}

// MultiProtocolReport compares one statement across several protocols
type MultiProtocolReport struct {
	PerProtocol map[Protocol]*ProtocolReport `json:"perProtocol"`
	Summary     ReportSummary                `json:"summary"`
	ExecutedAt  time.Time                    `json:"executedAt"`
}

// ConnectionTestResult is the outcome of a connectivity check for one protocol
type ConnectionTestResult struct {
	Success     bool         `json:"success"`
	DriverName  string       `json:"driverName"`
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	ErrorKind   ErrorKind    `json:"errorKind,omitempty"`
	Suggestions []string     `json:"suggestions,omitempty"`
	TestResult  *QueryResult `json:"testResult,omitempty"`
	Latency     int64        `json:"latencyMs"`
	CheckedAt   time.Time    `json:"checkedAt"`
}

// Project is a Dremio Cloud project as listed by the REST API
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}
