package mysqlmcp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/rickchristie/mysql-mcp/internal/classify"
	"github.com/rickchristie/mysql-mcp/internal/policy"
)

// Config is the base configuration used by library mode via New().
type Config struct {
	Environment Environment `json:"environment"`
	// AllowedRiskLevels nil means the environment default.
	AllowedRiskLevels []RiskLevel `json:"allowed_risk_levels"`
	BlockedPatterns   []string    `json:"blocked_patterns"`
	// DisableQueryCheck turns the policy gate off entirely. Unsafe.
	DisableQueryCheck   bool        `json:"disable_query_check"`
	AllowSensitiveInfo  bool        `json:"allow_sensitive_info"`
	SensitiveInfoFields []string    `json:"sensitive_info_fields"`
	Pool                PoolConfig  `json:"pool"`
	Query               QueryConfig `json:"query"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// ConnectionConfig holds MySQL connection parameters used by CLI mode.
type ConnectionConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	User           string `json:"user"`
	Password       string `json:"-"`
	Database       string `json:"database"`
	ConnectTimeout string `json:"connect_timeout"`
}

// PoolConfig holds connection pool settings. MaxConns also bounds the number
// of statements executing at once.
type PoolConfig struct {
	MaxConns        int    `json:"max_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	ConnMaxLifetime string `json:"conn_max_lifetime"`
	ConnMaxIdleTime string `json:"conn_max_idle_time"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds  int `json:"default_timeout_seconds"`
	MetadataTimeoutSeconds int `json:"metadata_timeout_seconds"`
	MaxSQLLength           int `json:"max_sql_length"`
	MaxResultLength        int `json:"max_result_length"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	HealthCheckPath string `json:"health_check_path"` // empty disables
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stderr, stdout, or file path
}

// ConfigError reports an environment variable that could not be used.
type ConfigError struct {
	Variable string
	Value    string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s=%q: %v", e.Variable, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SetDefaults registers the default value of every variable LoadServerConfig reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mysql_host", "localhost")
	v.SetDefault("mysql_port", 3306)
	v.SetDefault("mysql_user", "root")
	v.SetDefault("mysql_password", "")
	v.SetDefault("mysql_database", "")
	v.SetDefault("mysql_connect_timeout", "5s")
	v.SetDefault("mysql_max_conns", 10)
	v.SetDefault("mysql_max_idle_conns", 2)
	v.SetDefault("mysql_conn_max_lifetime", "30m")
	v.SetDefault("mysql_conn_max_idle_time", "5m")
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 3000)
	v.SetDefault("health_check_path", "/health")
	v.SetDefault("env_type", string(Development))
	v.SetDefault("allowed_risk_levels", "")
	v.SetDefault("blocked_patterns", "")
	v.SetDefault("enable_query_check", "true")
	v.SetDefault("allow_sensitive_info", "false")
	v.SetDefault("sensitive_info_fields", "")
	v.SetDefault("query_timeout_seconds", 30)
	v.SetDefault("metadata_query_timeout_seconds", 10)
	v.SetDefault("max_sql_length", 1000)
	v.SetDefault("max_result_length", 100000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_output", "stderr")
}

// LoadServerConfig reads every setting from v, which the caller has bound to
// the process environment (and optionally a .env file). Returns a *ConfigError
// naming the first variable that fails validation.
func LoadServerConfig(v *viper.Viper) (*ServerConfig, error) {
	SetDefaults(v)
	l := loader{v: v}

	cfg := &ServerConfig{
		Connection: ConnectionConfig{
			Host:           l.str("mysql_host"),
			Port:           l.port("mysql_port"),
			User:           l.str("mysql_user"),
			Password:       v.GetString("mysql_password"),
			Database:       l.str("mysql_database"),
			ConnectTimeout: l.duration("mysql_connect_timeout"),
		},
		Server: ServerSettings{
			Host:            l.str("host"),
			Port:            l.port("port"),
			HealthCheckPath: l.str("health_check_path"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(l.str("log_level")),
			Format: strings.ToLower(l.str("log_format")),
			Output: l.str("log_output"),
		},
	}

	cfg.Environment = l.environment("env_type")
	cfg.AllowedRiskLevels = l.riskLevels("allowed_risk_levels")
	cfg.BlockedPatterns = l.patterns("blocked_patterns")
	cfg.DisableQueryCheck = isFalse(l.str("enable_query_check"))
	cfg.AllowSensitiveInfo = isTrue(l.str("allow_sensitive_info"))
	cfg.SensitiveInfoFields = splitList(l.str("sensitive_info_fields"))
	cfg.Pool = PoolConfig{
		MaxConns:        l.positive("mysql_max_conns"),
		MaxIdleConns:    l.nonNegative("mysql_max_idle_conns"),
		ConnMaxLifetime: l.duration("mysql_conn_max_lifetime"),
		ConnMaxIdleTime: l.duration("mysql_conn_max_idle_time"),
	}
	cfg.Query = QueryConfig{
		DefaultTimeoutSeconds:  l.positive("query_timeout_seconds"),
		MetadataTimeoutSeconds: l.positive("metadata_query_timeout_seconds"),
		MaxSQLLength:           l.positive("max_sql_length"),
		MaxResultLength:        l.positive("max_result_length"),
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil || cfg.Logging.Level == "" {
		l.fail("log_level", cfg.Logging.Level, fmt.Errorf("must be one of debug, info, warn, error"))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		l.fail("log_format", cfg.Logging.Format, fmt.Errorf("must be json or text"))
	}
	if cfg.Server.HealthCheckPath != "" && !strings.HasPrefix(cfg.Server.HealthCheckPath, "/") {
		l.fail("health_check_path", cfg.Server.HealthCheckPath, fmt.Errorf("must start with /"))
	}

	if l.err != nil {
		return nil, l.err
	}
	return cfg, nil
}

// loader keeps the first error so LoadServerConfig reads top to bottom.
type loader struct {
	v   *viper.Viper
	err *ConfigError
}

func (l *loader) fail(key, value string, err error) {
	if l.err == nil {
		l.err = &ConfigError{Variable: strings.ToUpper(key), Value: value, Err: err}
	}
}

func (l *loader) str(key string) string {
	return strings.TrimSpace(l.v.GetString(key))
}

func (l *loader) integer(key string) (int, bool) {
	s := l.str(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		l.fail(key, s, fmt.Errorf("must be an integer"))
		return 0, false
	}
	return n, true
}

func (l *loader) positive(key string) int {
	n, ok := l.integer(key)
	if ok && n <= 0 {
		l.fail(key, l.str(key), fmt.Errorf("must be > 0"))
	}
	return n
}

func (l *loader) nonNegative(key string) int {
	n, ok := l.integer(key)
	if ok && n < 0 {
		l.fail(key, l.str(key), fmt.Errorf("must be >= 0"))
	}
	return n
}

func (l *loader) port(key string) int {
	n, ok := l.integer(key)
	if ok && (n < 1 || n > 65535) {
		l.fail(key, l.str(key), fmt.Errorf("must be between 1 and 65535"))
	}
	return n
}

func (l *loader) duration(key string) string {
	s := l.str(key)
	if _, err := time.ParseDuration(s); err != nil {
		l.fail(key, s, fmt.Errorf("must be a duration such as 30s or 5m"))
	}
	return s
}

func (l *loader) environment(key string) Environment {
	s := l.str(key)
	env, err := policy.ParseEnvironment(s)
	if err != nil {
		l.fail(key, s, fmt.Errorf("must be development or production"))
		return Development
	}
	return env
}

// riskLevels returns nil when the variable is unset or empty so the
// environment default applies.
func (l *loader) riskLevels(key string) []RiskLevel {
	s := l.str(key)
	names := splitList(s)
	if len(names) == 0 {
		return nil
	}
	levels := make([]RiskLevel, 0, len(names))
	for _, name := range names {
		level, err := classify.ParseRiskLevel(name)
		if err != nil {
			l.fail(key, s, err)
			return nil
		}
		levels = append(levels, level)
	}
	return levels
}

// patterns splits on commas, so a pattern cannot itself contain a comma.
func (l *loader) patterns(key string) []string {
	s := l.str(key)
	patterns := splitList(s)
	for _, p := range patterns {
		if _, err := policy.CompilePattern(p); err != nil {
			l.fail(key, p, err)
			return nil
		}
	}
	return patterns
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// isFalse recognizes the values that switch a default-on flag off.
func isFalse(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "0", "no", "off":
		return true
	}
	return false
}

// isTrue recognizes the values that switch a default-off flag on.
func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
