package timeout

import (
	"fmt"
	"time"

	"github.com/rickchristie/mysql-mcp/internal/classify"
)

// Config is the timeout manager's own config type.
type Config struct {
	DefaultTimeout  time.Duration
	MetadataTimeout time.Duration
}

// Manager resolves statement deadlines from the statement type.
type Manager struct {
	defaultTimeout  time.Duration
	metadataTimeout time.Duration
}

// NewManager creates a new Manager. Returns an error on non-positive timeouts.
// A zero MetadataTimeout falls back to DefaultTimeout.
func NewManager(config Config) (*Manager, error) {
	if config.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("timeout: default timeout must be > 0, got %s", config.DefaultTimeout)
	}
	if config.MetadataTimeout < 0 {
		return nil, fmt.Errorf("timeout: metadata timeout must be >= 0, got %s", config.MetadataTimeout)
	}
	metadata := config.MetadataTimeout
	if metadata == 0 {
		metadata = config.DefaultTimeout
	}
	return &Manager{defaultTimeout: config.DefaultTimeout, metadataTimeout: metadata}, nil
}

// GetTimeout returns the deadline for a statement of the given type.
// SHOW and DESCRIBE get the metadata timeout.
func (m *Manager) GetTimeout(t classify.StatementType) time.Duration {
	if t.IsMetadata() {
		return m.metadataTimeout
	}
	return m.defaultTimeout
}
