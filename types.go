package mysqlmcp

import (
	"errors"
	"fmt"

	"github.com/rickchristie/mysql-mcp/internal/classify"
	"github.com/rickchristie/mysql-mcp/internal/policy"
)

type (
	RiskLevel      = classify.RiskLevel
	StatementType  = classify.StatementType
	Classification = classify.Classification
	Environment    = policy.Environment
	Denial         = policy.Denial
	DenialReason   = policy.DenialReason
)

const (
	RiskLow      = classify.Low
	RiskMedium   = classify.Medium
	RiskHigh     = classify.High
	RiskCritical = classify.Critical

	Development = policy.Development
	Production  = policy.Production

	DenialBlockedPattern      = policy.BlockedPattern
	DenialRiskLevelNotAllowed = policy.RiskLevelNotAllowed
)

var (
	ErrBlockedPattern   = errors.New("blocked pattern violation")
	ErrRiskLevelDenied  = errors.New("risk level denied")
	ErrExecutionFailure = errors.New("execution failure")
	ErrInvalidInput     = errors.New("invalid input")
)

// Status is the terminal state of one Execute call.
type Status string

const (
	StatusExecuted Status = "executed"
	StatusDenied   Status = "denied"
	StatusFailed   Status = "failed"
)

// FailureKind says where a failed execution stopped.
type FailureKind string

const (
	FailureInvalidInput FailureKind = "invalid_input"
	FailureTimeout      FailureKind = "timeout"
	FailureCanceled     FailureKind = "canceled"
	FailureConnection   FailureKind = "connection"
	FailureExecution    FailureKind = "execution"
	FailureCommit       FailureKind = "commit"
)

// Failure describes a failed execution. Message is safe to show the caller.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Outcome is the result of Execute. Exactly one of the following holds:
//   - StatusExecuted: Rows is set for SELECT, SHOW and DESCRIBE, RowsAffected
//     for INSERT, UPDATE and DELETE, neither for anything else.
//   - StatusDenied: Denial and Message are set. The database was not touched.
//   - StatusFailed: Failure is set. Any transaction was rolled back.
type Outcome struct {
	Status         Status           `json:"status"`
	Classification Classification   `json:"classification"`
	Columns        []string         `json:"columns,omitempty"`
	Rows           []map[string]any `json:"rows,omitempty"`
	TotalRows      int              `json:"total_rows,omitempty"` // rows read, before truncation
	RowsAffected   *int64           `json:"rows_affected,omitempty"`
	Redacted       bool             `json:"redacted,omitempty"`
	Truncated      bool             `json:"truncated,omitempty"`
	Denial         *Denial          `json:"denial,omitempty"`
	Failure        *Failure         `json:"failure,omitempty"`
	Message        string           `json:"message,omitempty"`

	cause error
}

// Err returns nil for executed outcomes and an error wrapping one of the
// package sentinels otherwise.
func (o *Outcome) Err() error {
	switch o.Status {
	case StatusDenied:
		if o.Denial != nil && o.Denial.Reason == DenialBlockedPattern {
			return fmt.Errorf("%w: %s", ErrBlockedPattern, o.Message)
		}
		return fmt.Errorf("%w: %s", ErrRiskLevelDenied, o.Message)
	case StatusFailed:
		if o.Failure != nil && o.Failure.Kind == FailureInvalidInput {
			return fmt.Errorf("%w: %s", ErrInvalidInput, o.Failure.Message)
		}
		msg := ""
		if o.Failure != nil {
			msg = o.Failure.Message
		}
		return fmt.Errorf("%w: %s", ErrExecutionFailure, msg)
	}
	return nil
}

// QueryOutput is the output of the mysql_query tool.
type QueryOutput struct {
	Columns        []string         `json:"columns"`
	Rows           []map[string]any `json:"rows,omitempty"`
	RowsAffected   *int64           `json:"rows_affected,omitempty"`
	Truncated      bool             `json:"truncated,omitempty"`
	Classification Classification   `json:"classification"`
}

// MetadataOutput is the output of every metadata tool.
type MetadataOutput struct {
	MetadataInfo map[string]any   `json:"metadata_info"`
	Results      []map[string]any `json:"results"`
}
