package mysqlmcp

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rickchristie/mysql-mcp/internal/policy"
	"github.com/rickchristie/mysql-mcp/internal/redact"
	"github.com/rickchristie/mysql-mcp/internal/timeout"
)

// MysqlMcp is the guarded executor and the MySQL tools built on it.
// All exported methods are safe for concurrent use from multiple goroutines.
type MysqlMcp struct {
	config     Config
	db         Database
	semaphore  chan struct{}
	policy     *policy.Engine
	redactor   *redact.Redactor
	timeoutMgr *timeout.Manager
	logger     zerolog.Logger
}

// New creates a new MysqlMcp. The caller owns db and closes it.
// Panics on invalid config, the way a programming error should surface.
func New(db Database, config Config, logger zerolog.Logger) *MysqlMcp {
	if db == nil {
		panic("mysqlmcp: db must be non-nil")
	}
	if config.Pool.MaxConns <= 0 {
		panic("mysqlmcp: pool.max_conns must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("mysqlmcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.MetadataTimeoutSeconds < 0 {
		panic("mysqlmcp: query.metadata_timeout_seconds must be >= 0")
	}

	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 1000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.MaxSQLLength < 0 {
		panic("mysqlmcp: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("mysqlmcp: query.max_result_length must be > 0")
	}

	engine, err := policy.NewEngine(policy.Config{
		Environment:       config.Environment,
		AllowedRiskLevels: config.AllowedRiskLevels,
		BlockedPatterns:   config.BlockedPatterns,
		DisableQueryCheck: config.DisableQueryCheck,
	})
	if err != nil {
		panic(fmt.Sprintf("mysqlmcp: %v", err))
	}
	config.Environment = engine.Environment()

	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout:  time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		MetadataTimeout: time.Duration(config.Query.MetadataTimeoutSeconds) * time.Second,
	})
	if err != nil {
		panic(fmt.Sprintf("mysqlmcp: %v", err))
	}

	if config.DisableQueryCheck {
		logger.Warn().Msg("query check disabled: every statement will be executed without risk evaluation")
	}

	return &MysqlMcp{
		config:    config,
		db:        db,
		semaphore: make(chan struct{}, config.Pool.MaxConns),
		policy:    engine,
		redactor: redact.NewRedactor(redact.Config{
			AllowSensitiveInfo: config.AllowSensitiveInfo,
			Terms:              config.SensitiveInfoFields,
		}),
		timeoutMgr: tmgr,
		logger:     logger,
	}
}

// Environment returns the effective environment.
func (p *MysqlMcp) Environment() Environment {
	return p.config.Environment
}

// AllowedRiskLevels returns the effective allowed risk levels in ascending order.
func (p *MysqlMcp) AllowedRiskLevels() []RiskLevel {
	return p.policy.AllowedRiskLevels()
}
