package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rickchristie/mysql-mcp/internal/classify"
)

// Environment selects the default risk levels and how much detail denials expose.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// ParseEnvironment parses an environment name case-insensitively.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case Development:
		return Development, nil
	case Production:
		return Production, nil
	}
	return "", fmt.Errorf("invalid environment %q: must be development or production", s)
}

// DefaultRiskLevels returns the levels allowed when none are configured.
func DefaultRiskLevels(env Environment) []classify.RiskLevel {
	if env == Production {
		return []classify.RiskLevel{classify.Low}
	}
	return []classify.RiskLevel{classify.Low, classify.Medium, classify.High}
}

// Config is the policy engine's own config type.
type Config struct {
	Environment Environment
	// AllowedRiskLevels nil means DefaultRiskLevels(Environment).
	AllowedRiskLevels []classify.RiskLevel
	// BlockedPatterns are compiled case-insensitively and tested in order.
	BlockedPatterns []string
	// DisableQueryCheck allows every statement. Unsafe.
	DisableQueryCheck bool
}

// DenialReason says which gate rejected a statement.
type DenialReason string

const (
	BlockedPattern      DenialReason = "blocked_pattern"
	RiskLevelNotAllowed DenialReason = "risk_level_not_allowed"
)

// Denial describes a rejected statement.
type Denial struct {
	Reason    DenialReason         `json:"reason"`
	Pattern   string               `json:"pattern,omitempty"`
	RiskLevel classify.RiskLevel   `json:"risk_level"`
	Allowed   []classify.RiskLevel `json:"allowed_risk_levels,omitempty"`
}

// Decision is the result of Evaluate. Denial is nil when Allowed is true.
type Decision struct {
	Allowed bool
	Denial  *Denial
}

// Engine decides whether a classified statement may run.
// It is immutable after NewEngine and safe for concurrent use.
type Engine struct {
	env      Environment
	allowed  map[classify.RiskLevel]bool
	levels   []classify.RiskLevel
	patterns []*regexp.Regexp
	disabled bool
}

// NewEngine compiles the blocked patterns. Returns an error on an invalid
// environment, risk level, or regex.
func NewEngine(config Config) (*Engine, error) {
	env := config.Environment
	if env == "" {
		env = Development
	}
	if env != Development && env != Production {
		return nil, fmt.Errorf("policy: invalid environment %q", env)
	}

	levels := config.AllowedRiskLevels
	if levels == nil {
		levels = DefaultRiskLevels(env)
	}
	allowed := make(map[classify.RiskLevel]bool, len(levels))
	for _, l := range levels {
		if l < classify.Low || l > classify.Critical {
			return nil, fmt.Errorf("policy: invalid risk level %d", int(l))
		}
		allowed[l] = true
	}
	sorted := make([]classify.RiskLevel, 0, len(allowed))
	for l := range allowed {
		sorted = append(sorted, l)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	patterns := make([]*regexp.Regexp, len(config.BlockedPatterns))
	for i, p := range config.BlockedPatterns {
		re, err := CompilePattern(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}

	return &Engine{
		env:      env,
		allowed:  allowed,
		levels:   sorted,
		patterns: patterns,
		disabled: config.DisableQueryCheck,
	}, nil
}

// CompilePattern compiles a blocked pattern the way the engine matches it.
func CompilePattern(p string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid blocked pattern %q: %v", p, err)
	}
	return re, nil
}

// Environment returns the configured environment.
func (e *Engine) Environment() Environment {
	return e.env
}

// AllowedRiskLevels returns the allowed levels in ascending order.
func (e *Engine) AllowedRiskLevels() []classify.RiskLevel {
	out := make([]classify.RiskLevel, len(e.levels))
	copy(out, e.levels)
	return out
}

// Evaluate applies the checks in order, stopping at the first denial:
// the disable switch, blocked patterns against the unmodified sql, then the
// allowed risk levels.
func (e *Engine) Evaluate(sql string, c classify.Classification) Decision {
	if e.disabled {
		return Decision{Allowed: true}
	}

	for _, re := range e.patterns {
		if re.MatchString(sql) {
			return Decision{Denial: &Denial{
				Reason:    BlockedPattern,
				Pattern:   strings.TrimPrefix(re.String(), "(?i)"),
				RiskLevel: c.RiskLevel,
			}}
		}
	}

	if !e.allowed[c.RiskLevel] {
		return Decision{Denial: &Denial{
			Reason:    RiskLevelNotAllowed,
			RiskLevel: c.RiskLevel,
			Allowed:   e.AllowedRiskLevels(),
		}}
	}

	return Decision{Allowed: true}
}

// Message renders a denial for the caller. Production output names the gate
// and risk level only; development output adds the pattern and the
// classifier's reasons.
func (e *Engine) Message(d *Denial, c classify.Classification) string {
	var sb strings.Builder
	switch d.Reason {
	case BlockedPattern:
		sb.WriteString("query denied: statement matches a blocked pattern")
		if e.env == Development {
			fmt.Fprintf(&sb, " %q", d.Pattern)
		}
	case RiskLevelNotAllowed:
		fmt.Fprintf(&sb, "query denied: risk level %s is not allowed, allowed risk levels: %s",
			d.RiskLevel, joinLevels(d.Allowed))
	default:
		sb.WriteString("query denied")
	}
	if e.env == Development {
		fmt.Fprintf(&sb, " (statement type: %s, risk level: %s", c.StatementType, c.RiskLevel)
		if len(c.Reasons) > 0 {
			fmt.Fprintf(&sb, ", reasons: %s", strings.Join(c.Reasons, "; "))
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func joinLevels(levels []classify.RiskLevel) string {
	if len(levels) == 0 {
		return "none"
	}
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.String()
	}
	return strings.Join(names, ", ")
}
