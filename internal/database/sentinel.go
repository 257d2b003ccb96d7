package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"dremio-gateway/internal/model"
)

const (
	keySSLWorkaround = "SSL_WORKAROUND_APPLIED"
	keyLastSSLError  = "LAST_SSL_ERROR"
	keyDisabledAt    = "DISABLED_AT"
)

var timeNow = time.Now

// SentinelRecord is the persisted state of a force-disabled protocol.
type SentinelRecord struct {
	Protocol     model.Protocol
	Disabled     bool
	LastError    string
	DisabledAt   time.Time
	WorkaroundOn bool
}

// SentinelStore persists protocol disables as dotenv files, one per protocol.
type SentinelStore struct {
	dir string
	mu  sync.Mutex
}

// NewSentinelStore creates a store rooted at dir; "" means the working directory.
func NewSentinelStore(dir string) *SentinelStore {
	if dir == "" {
		dir = "."
	}
	return &SentinelStore{dir: dir}
}

// Path returns the sentinel file location for protocol
func (s *SentinelStore) Path(protocol model.Protocol) string {
	return filepath.Join(s.dir, fmt.Sprintf(".%s_ssl_config", protocol))
}

func disableKey(protocol model.Protocol) string {
	return fmt.Sprintf("DISABLE_%s_BY_DEFAULT", strings.ToUpper(string(protocol)))
}

// Read loads the record for protocol. A missing file yields (nil, nil).
func (s *SentinelStore) Read(protocol model.Protocol) (*SentinelRecord, error) {
	path := s.Path(protocol)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat sentinel %s: %w", path, err)
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sentinel %s: %w", path, err)
	}

	record := &SentinelRecord{
		Protocol:     protocol,
		Disabled:     strings.EqualFold(values[disableKey(protocol)], "true"),
		LastError:    values[keyLastSSLError],
		WorkaroundOn: strings.EqualFold(values[keySSLWorkaround], "true"),
	}
	if ts, err := time.Parse(time.RFC3339, values[keyDisabledAt]); err == nil {
		record.DisabledAt = ts
	}
	return record, nil
}

// Write persists a disable atomically through a temp file and rename.
func (s *SentinelStore) Write(protocol model.Protocol, lastError string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := godotenv.Marshal(map[string]string{
		disableKey(protocol): "true",
		keySSLWorkaround:     "true",
		keyLastSSLError:      singleLine(lastError),
		keyDisabledAt:        at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode sentinel: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sentinel directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf(".%s_ssl_config.*.tmp", protocol))
	if err != nil {
		return fmt.Errorf("failed to create sentinel temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write sentinel: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write sentinel: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(protocol)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to install sentinel: %w", err)
	}
	return nil
}

// Remove deletes the sentinel for protocol, if any
func (s *SentinelStore) Remove(protocol model.Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(protocol)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
