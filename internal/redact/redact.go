package redact

import "strings"

// Marker replaces the value of a sensitive pair.
const Marker = "*** HIDDEN ***"

// DefaultTerms are always treated as sensitive, in addition to Config.Terms.
var DefaultTerms = []string{
	"password", "auth", "credential", "key", "secret", "private",
	"ssl", "tls", "cipher", "certificate", "host", "path", "directory",
}

// Config is the redactor's own config type.
type Config struct {
	AllowSensitiveInfo bool
	Terms              []string
}

// Pair is a single metadata entry such as a server variable and its value.
type Pair struct {
	Key   string
	Value any
}

// Redactor masks values whose key contains a sensitive term.
// It holds no mutable state and is safe for concurrent use.
type Redactor struct {
	allow bool
	terms []string
}

// NewRedactor lowercases and deduplicates the configured terms together with DefaultTerms.
func NewRedactor(config Config) *Redactor {
	seen := make(map[string]bool)
	var terms []string
	for _, list := range [][]string{DefaultTerms, config.Terms} {
		for _, t := range list {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return &Redactor{allow: config.AllowSensitiveInfo, terms: terms}
}

// Enabled returns false when sensitive values are allowed through.
func (r *Redactor) Enabled() bool {
	return !r.allow
}

// IsSensitive reports whether key contains any sensitive term, ignoring case.
func (r *Redactor) IsSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, t := range r.terms {
		if strings.Contains(k, t) {
			return true
		}
	}
	return false
}

// Redact returns a new slice in the same order with sensitive values
// replaced by Marker. The input is not modified.
func (r *Redactor) Redact(pairs []Pair) []Pair {
	out := make([]Pair, len(pairs))
	copy(out, pairs)
	if r.allow {
		return out
	}
	for i := range out {
		if r.IsSensitive(out[i].Key) {
			out[i].Value = Marker
		}
	}
	return out
}
