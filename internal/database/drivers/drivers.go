package drivers

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"dremio-gateway/internal/model"
)

// Handle is an open connection produced by a Driver. Handles are owned by a
// single cache slot and never shared across protocols.
type Handle interface {
	Protocol() model.Protocol
}

// NativeResult is a driver's raw tabular output. Columns is nil when the
// driver could not report a schema.
type NativeResult struct {
	Columns []string
	Rows    [][]interface{}
	// ColumnsInferred marks Columns as derived from row data rather than
	// reported by the engine
	ColumnsInferred bool
}

// HasSchema reports whether the engine reported column names
func (r *NativeResult) HasSchema() bool {
	return r != nil && r.Columns != nil && !r.ColumnsInferred
}

// Driver is the capability provider for one protocol.
type Driver interface {
	// Protocol returns the protocol this driver serves
	Protocol() model.Protocol

	// DisplayName is the human readable driver name used in reports and SQL comments
	DisplayName() string

	// Version returns the linked client library version, or "unknown"
	Version() string

	// CheckAvailability performs a local capability check without network I/O
	CheckAvailability() error

	// GetCapabilities returns driver capabilities
	GetCapabilities() model.ProtocolCapabilities

	// Open connects using one candidate
	Open(ctx context.Context, candidate model.ConnectionCandidate) (Handle, error)

	// Run executes a statement on an open handle
	Run(ctx context.Context, handle Handle, sql string) (*NativeResult, error)

	// Close releases the handle
	Close(handle Handle) error
}

// DriverBase provides common functionality for all drivers
type DriverBase struct {
	protocol    model.Protocol
	displayName string
	modulePath  string
}

func NewDriverBase(protocol model.Protocol, displayName, modulePath string) *DriverBase {
	return &DriverBase{protocol: protocol, displayName: displayName, modulePath: modulePath}
}

func (db *DriverBase) Protocol() model.Protocol {
	return db.protocol
}

func (db *DriverBase) DisplayName() string {
	return db.displayName
}

// Version reads the version of the driver's client module from the build info.
func (db *DriverBase) Version() string {
	return ModuleVersion(db.modulePath)
}

// CheckHandle asserts that handle belongs to the driver's protocol.
func (db *DriverBase) CheckHandle(handle Handle) error {
	if handle == nil {
		return fmt.Errorf("%s: nil connection handle", db.protocol)
	}
	if handle.Protocol() != db.protocol {
		return fmt.Errorf("%s: handle belongs to protocol %s", db.protocol, handle.Protocol())
	}
	return nil
}

// ModuleVersion returns the version of a dependency linked into the binary.
func ModuleVersion(path string) string {
	if path == "" {
		return "unknown"
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path || strings.HasPrefix(dep.Path, path+"/") {
			if dep.Replace != nil && dep.Replace.Version != "" {
				return strings.TrimPrefix(dep.Replace.Version, "v")
			}
			return strings.TrimPrefix(dep.Version, "v")
		}
	}
	return "unknown"
}
