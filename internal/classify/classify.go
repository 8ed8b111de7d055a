// Package classify estimates how dangerous a SQL statement is without parsing
// it. It looks at the leading keyword and, for UPDATE and DELETE, whether a
// top-level WHERE clause is present.
//
// The scan is quote-aware but not comment-aware, and WHERE clauses are only
// recognized at parenthesis depth zero. Statements assembled to hide their
// shape (comments, string concatenation, nested subqueries) can be
// misclassified; the blocked-pattern gate in package policy exists to catch
// what this level of analysis cannot.
package classify

import (
	"fmt"
	"strings"
)

// RiskLevel is an ordinal danger rating. LOW < MEDIUM < HIGH < CRITICAL.
type RiskLevel int

const (
	Low RiskLevel = iota + 1
	Medium
	High
	Critical
)

// AllRiskLevels lists every level in ascending order.
var AllRiskLevels = []RiskLevel{Low, Medium, High, Critical}

func (r RiskLevel) String() string {
	switch r {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
}

// MarshalText encodes the level by name.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRiskLevel parses a level name case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return Low, nil
	case "MEDIUM":
		return Medium, nil
	case "HIGH":
		return High, nil
	case "CRITICAL":
		return Critical, nil
	}
	return 0, fmt.Errorf("invalid risk level %q: must be one of LOW, MEDIUM, HIGH, CRITICAL", s)
}

// StatementType is the kind of statement as told by its leading keyword.
type StatementType string

const (
	Select   StatementType = "SELECT"
	Show     StatementType = "SHOW"
	Describe StatementType = "DESCRIBE"
	Insert   StatementType = "INSERT"
	Update   StatementType = "UPDATE"
	Delete   StatementType = "DELETE"
	Create   StatementType = "CREATE"
	Alter    StatementType = "ALTER"
	Drop     StatementType = "DROP"
	Truncate StatementType = "TRUNCATE"
	Other    StatementType = "OTHER"
)

// IsRead reports whether the statement returns a result set.
func (t StatementType) IsRead() bool {
	return t == Select || t == Show || t == Describe
}

// IsMutation reports whether the statement changes rows and reports an affected count.
func (t StatementType) IsMutation() bool {
	return t == Insert || t == Update || t == Delete
}

// IsMetadata reports whether the statement inspects server or schema metadata.
func (t StatementType) IsMetadata() bool {
	return t == Show || t == Describe
}

// WhereClause records whether a top-level WHERE was found.
type WhereClause string

const (
	WhereNotApplicable WhereClause = "n/a"
	WherePresent       WhereClause = "present"
	WhereAbsent        WhereClause = "absent"
)

// Classification is the result of Classify. It is a value; callers that need
// to annotate it work on a copy.
type Classification struct {
	StatementType         StatementType `json:"statement_type"`
	RiskLevel             RiskLevel     `json:"risk_level"`
	Where                 WhereClause   `json:"where_clause"`
	MatchedBlockedPattern string        `json:"matched_blocked_pattern,omitempty"`
	Reasons               []string      `json:"reasons,omitempty"`
}

// keywords is checked in order; DESCRIBE must precede DESC.
var keywords = []struct {
	word string
	typ  StatementType
}{
	{"SELECT", Select},
	{"SHOW", Show},
	{"DESCRIBE", Describe},
	{"DESC", Describe},
	{"INSERT", Insert},
	{"UPDATE", Update},
	{"DELETE", Delete},
	{"CREATE", Create},
	{"ALTER", Alter},
	{"DROP", Drop},
	{"TRUNCATE", Truncate},
}

// Classify never fails. Anything it cannot recognize is OTHER at HIGH risk.
func Classify(sql string) Classification {
	normalized := strings.Join(strings.Fields(sql), " ")
	typ, rest := leadingKeyword(normalized)

	c := Classification{StatementType: typ, Where: WhereNotApplicable}

	switch typ {
	case Select, Show, Describe:
		c.RiskLevel = Low

	case Insert:
		c.RiskLevel = Medium
		c.Reasons = append(c.Reasons, "INSERT modifies data")

	case Update, Delete:
		if hasTopLevelWhere(rest) {
			c.Where = WherePresent
			c.RiskLevel = Medium
			c.Reasons = append(c.Reasons, fmt.Sprintf("%s modifies data", typ))
		} else {
			c.Where = WhereAbsent
			c.RiskLevel = High
			if typ == Delete {
				c.RiskLevel = Critical
			}
			c.Reasons = append(c.Reasons, fmt.Sprintf("%s without WHERE clause", typ))
		}

	case Create, Alter:
		c.RiskLevel = High
		c.Reasons = append(c.Reasons, fmt.Sprintf("%s changes the schema", typ))

	case Drop, Truncate:
		c.RiskLevel = Critical
		c.Reasons = append(c.Reasons, fmt.Sprintf("%s destroys data", typ))

	default:
		c.RiskLevel = High
		if normalized == "" {
			c.Reasons = append(c.Reasons, "empty statement")
		} else {
			c.Reasons = append(c.Reasons, "unrecognized statement type")
		}
	}
	return c
}

// leadingKeyword returns the statement type and the text following the keyword.
func leadingKeyword(s string) (StatementType, string) {
	for _, kw := range keywords {
		n := len(kw.word)
		if len(s) < n || !strings.EqualFold(s[:n], kw.word) {
			continue
		}
		if len(s) > n && isIdentChar(s[n]) {
			continue
		}
		return kw.typ, s[n:]
	}
	return Other, s
}

// hasTopLevelWhere scans s for the WHERE keyword outside quoted regions and
// outside parentheses.
func hasTopLevelWhere(s string) bool {
	const kw = "WHERE"
	var quote byte
	depth := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch {
			case ch == '\\' && quote != '`':
				i++
			case ch == quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
			continue
		case '(':
			depth++
			continue
		case ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth != 0 || i+len(kw) > len(s) {
			continue
		}
		if i > 0 && isIdentChar(s[i-1]) {
			continue
		}
		if !strings.EqualFold(s[i:i+len(kw)], kw) {
			continue
		}
		if end := i + len(kw); end < len(s) && isIdentChar(s[end]) {
			continue
		}
		return true
	}
	return false
}

func isIdentChar(ch byte) bool {
	return ch == '_' || ch == '$' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch >= 0x80
}
