package mysqlmcp_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/viper"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
)

// loadWith returns the config loaded from a fresh viper holding only values.
func loadWith(t *testing.T, values map[string]string) (*mysqlmcp.ServerConfig, error) {
	t.Helper()
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return mysqlmcp.LoadServerConfig(v)
}

// expectConfigError asserts that err is a *ConfigError naming variable.
func expectConfigError(t *testing.T, err error, variable string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error for %s, got nil", variable)
	}
	var cfgErr *mysqlmcp.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Variable != variable {
		t.Fatalf("expected error for %s, got %s (%v)", variable, cfgErr.Variable, err)
	}
	if !strings.Contains(err.Error(), variable) {
		t.Fatalf("error %q does not name %s", err.Error(), variable)
	}
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := loadWith(t, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Connection.Host != "localhost" || cfg.Connection.Port != 3306 || cfg.Connection.User != "root" {
		t.Errorf("unexpected connection defaults: %+v", cfg.Connection)
	}
	if cfg.Connection.Database != "" || cfg.Connection.ConnectTimeout != "5s" {
		t.Errorf("unexpected connection defaults: %+v", cfg.Connection)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 3000 || cfg.Server.HealthCheckPath != "/health" {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Environment != mysqlmcp.Development {
		t.Errorf("expected development, got %q", cfg.Environment)
	}
	if cfg.AllowedRiskLevels != nil {
		t.Errorf("expected nil risk levels so the environment default applies, got %v", cfg.AllowedRiskLevels)
	}
	if cfg.BlockedPatterns != nil || cfg.SensitiveInfoFields != nil {
		t.Errorf("expected no patterns or fields, got %v / %v", cfg.BlockedPatterns, cfg.SensitiveInfoFields)
	}
	if cfg.DisableQueryCheck || cfg.AllowSensitiveInfo {
		t.Error("expected the query check on and sensitive info hidden")
	}
	wantPool := mysqlmcp.PoolConfig{MaxConns: 10, MaxIdleConns: 2, ConnMaxLifetime: "30m", ConnMaxIdleTime: "5m"}
	if cfg.Pool != wantPool {
		t.Errorf("pool: got %+v, want %+v", cfg.Pool, wantPool)
	}
	wantQuery := mysqlmcp.QueryConfig{
		DefaultTimeoutSeconds:  30,
		MetadataTimeoutSeconds: 10,
		MaxSQLLength:           1000,
		MaxResultLength:        100000,
	}
	if cfg.Query != wantQuery {
		t.Errorf("query: got %+v, want %+v", cfg.Query, wantQuery)
	}
	wantLogging := mysqlmcp.LoggingConfig{Level: "info", Format: "json", Output: "stderr"}
	if cfg.Logging != wantLogging {
		t.Errorf("logging: got %+v, want %+v", cfg.Logging, wantLogging)
	}
}

func TestLoadServerConfig_Overrides(t *testing.T) {
	t.Parallel()
	cfg, err := loadWith(t, map[string]string{
		"mysql_host":            "db.internal",
		"mysql_port":            "3307",
		"mysql_password":        "  secret ",
		"mysql_database":        "shop",
		"env_type":              "PRODUCTION",
		"allowed_risk_levels":   "low, medium",
		"blocked_patterns":      `\bDROP\b, GRANT\s+ALL`,
		"sensitive_info_fields": "api_key,ssn",
		"mysql_max_conns":       "4",
		"query_timeout_seconds": "5",
		"log_level":             "DEBUG",
		"log_format":            "text",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Connection.Host != "db.internal" || cfg.Connection.Port != 3307 || cfg.Connection.Database != "shop" {
		t.Errorf("unexpected connection: %+v", cfg.Connection)
	}
	if cfg.Connection.Password != "  secret " {
		t.Errorf("password must be kept verbatim, got %q", cfg.Connection.Password)
	}
	if cfg.Environment != mysqlmcp.Production {
		t.Errorf("expected production, got %q", cfg.Environment)
	}
	if !reflect.DeepEqual(cfg.AllowedRiskLevels, []mysqlmcp.RiskLevel{mysqlmcp.RiskLow, mysqlmcp.RiskMedium}) {
		t.Errorf("unexpected risk levels %v", cfg.AllowedRiskLevels)
	}
	if !reflect.DeepEqual(cfg.BlockedPatterns, []string{`\bDROP\b`, `GRANT\s+ALL`}) {
		t.Errorf("unexpected patterns %q", cfg.BlockedPatterns)
	}
	if !reflect.DeepEqual(cfg.SensitiveInfoFields, []string{"api_key", "ssn"}) {
		t.Errorf("unexpected sensitive fields %q", cfg.SensitiveInfoFields)
	}
	if cfg.Pool.MaxConns != 4 || cfg.Query.DefaultTimeoutSeconds != 5 {
		t.Errorf("unexpected pool/query: %+v %+v", cfg.Pool, cfg.Query)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadServerConfig_BooleanSwitches(t *testing.T) {
	t.Parallel()
	tests := []struct {
		value       string
		checkOff    bool
		sensitiveOn bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"off", true, false},
		// Unrecognized values keep the safe default.
		{"maybe", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			cfg, err := loadWith(t, map[string]string{
				"enable_query_check":   tt.value,
				"allow_sensitive_info": tt.value,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DisableQueryCheck != tt.checkOff {
				t.Errorf("DisableQueryCheck = %v, want %v", cfg.DisableQueryCheck, tt.checkOff)
			}
			if cfg.AllowSensitiveInfo != tt.sensitiveOn {
				t.Errorf("AllowSensitiveInfo = %v, want %v", cfg.AllowSensitiveInfo, tt.sensitiveOn)
			}
		})
	}
}

func TestLoadServerConfig_InvalidValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key      string
		value    string
		variable string
	}{
		{"mysql_port", "abc", "MYSQL_PORT"},
		{"mysql_port", "0", "MYSQL_PORT"},
		{"mysql_port", "70000", "MYSQL_PORT"},
		{"port", "-1", "PORT"},
		{"mysql_connect_timeout", "five", "MYSQL_CONNECT_TIMEOUT"},
		{"mysql_max_conns", "0", "MYSQL_MAX_CONNS"},
		{"mysql_max_idle_conns", "-1", "MYSQL_MAX_IDLE_CONNS"},
		{"mysql_conn_max_lifetime", "forever", "MYSQL_CONN_MAX_LIFETIME"},
		{"env_type", "staging", "ENV_TYPE"},
		{"allowed_risk_levels", "LOW,EXTREME", "ALLOWED_RISK_LEVELS"},
		{"blocked_patterns", "valid,[unclosed", "BLOCKED_PATTERNS"},
		{"query_timeout_seconds", "0", "QUERY_TIMEOUT_SECONDS"},
		{"metadata_query_timeout_seconds", "ten", "METADATA_QUERY_TIMEOUT_SECONDS"},
		{"max_sql_length", "-5", "MAX_SQL_LENGTH"},
		{"max_result_length", "0", "MAX_RESULT_LENGTH"},
		{"log_level", "loud", "LOG_LEVEL"},
		{"log_format", "xml", "LOG_FORMAT"},
		{"health_check_path", "health", "HEALTH_CHECK_PATH"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Parallel()
			cfg, err := loadWith(t, map[string]string{tt.key: tt.value})
			if cfg != nil {
				t.Fatalf("expected nil config, got %+v", cfg)
			}
			expectConfigError(t, err, tt.variable)
		})
	}
}

func TestLoadServerConfig_InvalidRegexReportsPattern(t *testing.T) {
	t.Parallel()
	_, err := loadWith(t, map[string]string{"blocked_patterns": `ok, (unclosed`})
	expectConfigError(t, err, "BLOCKED_PATTERNS")

	var cfgErr *mysqlmcp.ConfigError
	errors.As(err, &cfgErr)
	if cfgErr.Value != "(unclosed" {
		t.Fatalf("expected the failing pattern as value, got %q", cfgErr.Value)
	}
	if cfgErr.Unwrap() == nil {
		t.Fatal("expected the regex error to be wrapped")
	}
}

func TestLoadServerConfig_FirstErrorWins(t *testing.T) {
	t.Parallel()
	_, err := loadWith(t, map[string]string{
		"mysql_port": "nope",
		"log_format": "xml",
	})
	expectConfigError(t, err, "MYSQL_PORT")
}

func TestLoadServerConfig_EmptyHealthPathDisables(t *testing.T) {
	t.Parallel()
	cfg, err := loadWith(t, map[string]string{"health_check_path": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.HealthCheckPath != "" {
		t.Fatalf("expected empty health path, got %q", cfg.Server.HealthCheckPath)
	}
}

func TestLoadServerConfig_ConfigFeedsNew(t *testing.T) {
	t.Parallel()
	cfg, err := loadWith(t, map[string]string{"env_type": "production"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := newTestInstance(t, &fakeDB{}, cfg.Config)
	if p.Environment() != mysqlmcp.Production {
		t.Fatalf("expected production, got %q", p.Environment())
	}
	if !reflect.DeepEqual(p.AllowedRiskLevels(), []mysqlmcp.RiskLevel{mysqlmcp.RiskLow}) {
		t.Fatalf("expected production default [LOW], got %v", p.AllowedRiskLevels())
	}
}

// Not parallel: mutates the process environment.
func TestLoadServerConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("MYSQL_HOST", "env-host")
	t.Setenv("MYSQL_MAX_CONNS", "7")
	t.Setenv("ENV_TYPE", "production")

	v := viper.New()
	v.AutomaticEnv()
	cfg, err := mysqlmcp.LoadServerConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Connection.Host != "env-host" || cfg.Pool.MaxConns != 7 || cfg.Environment != mysqlmcp.Production {
		t.Fatalf("environment not applied: %+v %+v %q", cfg.Connection, cfg.Pool, cfg.Environment)
	}
}
