package mysqlmcp

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/rickchristie/mysql-mcp/internal/classify"
	"github.com/rickchristie/mysql-mcp/internal/redact"
)

// Execute runs one statement through the gate: classify, evaluate the policy,
// then execute inside a transaction that is always either committed or rolled
// back. Params bind to ? placeholders. Execute never returns nil and never
// returns a Go error; callers check Outcome.Status or Outcome.Err().
func (p *MysqlMcp) Execute(ctx context.Context, sql string, params ...any) *Outcome {
	startTime := time.Now()

	// 1. Input checks, before anything is classified.
	if strings.TrimSpace(sql) == "" {
		return p.invalidInput(sql, "query must not be empty")
	}
	if len(sql) > p.config.Query.MaxSQLLength {
		return p.invalidInput(sql, fmt.Sprintf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(sql), p.config.Query.MaxSQLLength))
	}

	// 2. Classify and evaluate. A denial never reaches the database.
	c, denied := p.admit(sql, startTime)
	if denied != nil {
		return denied
	}

	// 3. Acquire semaphore (respects context cancellation to prevent deadlock).
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		out := p.fail(c, FailureCanceled, fmt.Errorf("failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(p.semaphore), ctx.Err()), 0)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.Failure.Kind = FailureTimeout
		}
		p.logOutcome(sql, out, startTime)
		return out
	}
	defer func() { <-p.semaphore }()

	// 4. Execute within the statement-type deadline.
	timeout := p.timeoutMgr.GetTimeout(c.StatementType)
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := p.run(queryCtx, sql, params, c, timeout)

	// 5. Redaction and truncation only touch executed reads.
	if out.Status == StatusExecuted && out.Rows != nil {
		out.Redacted = p.redactMetadata(out)
		p.truncateIfNeeded(out)
	}

	p.logOutcome(sql, out, startTime)
	return out
}

// admit classifies sql and evaluates it against the policy. A non-nil
// Outcome is the logged denial.
func (p *MysqlMcp) admit(sql string, startTime time.Time) (Classification, *Outcome) {
	c := classify.Classify(sql)
	decision := p.policy.Evaluate(sql, c)
	if decision.Allowed {
		return c, nil
	}
	if decision.Denial.Reason == DenialBlockedPattern {
		c.MatchedBlockedPattern = decision.Denial.Pattern
	}
	out := &Outcome{
		Status:         StatusDenied,
		Classification: c,
		Denial:         decision.Denial,
		Message:        p.policy.Message(decision.Denial, c),
	}
	p.logOutcome(sql, out, startTime)
	return c, out
}

// run owns the transaction. The deferred rollback covers every exit that does
// not commit, including a panic in the collaborator.
func (p *MysqlMcp) run(queryCtx context.Context, sql string, params []any, c Classification, timeout time.Duration) *Outcome {
	tx, err := p.db.BeginTx(queryCtx)
	if err != nil {
		return p.fail(c, p.failureKind(queryCtx, FailureConnection, err), err, timeout)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
	}()

	if c.StatementType.IsRead() {
		rs, err := tx.Query(queryCtx, sql, params)
		if err != nil {
			return p.fail(c, p.failureKind(queryCtx, FailureExecution, err), err, timeout)
		}
		out := &Outcome{Status: StatusExecuted, Classification: c, Rows: rowsToMaps(rs)}
		if rs != nil {
			out.Columns = rs.Columns
		}
		return out
	}

	affected, err := tx.Exec(queryCtx, sql, params)
	if err != nil {
		return p.fail(c, p.failureKind(queryCtx, FailureExecution, err), err, timeout)
	}
	if err := tx.Commit(); err != nil {
		return p.fail(c, p.failureKind(queryCtx, FailureCommit, err), err, timeout)
	}
	committed = true

	out := &Outcome{Status: StatusExecuted, Classification: c}
	if c.StatementType.IsMutation() {
		out.RowsAffected = &affected
	}
	return out
}

// rowsToMaps always returns a non-nil slice so an empty read is distinguishable
// from a statement that returns no rows.
func rowsToMaps(rs *ResultSet) []map[string]any {
	if rs == nil {
		return []map[string]any{}
	}
	rows := make([]map[string]any, 0, len(rs.Rows))
	for _, values := range rs.Rows {
		row := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// failureKind refines the stage kind when the error came from the deadline,
// a cancelled caller, or a dead connection.
func (p *MysqlMcp) failureKind(queryCtx context.Context, stage FailureKind, err error) FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(queryCtx.Err(), context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled), errors.Is(queryCtx.Err(), context.Canceled):
		return FailureCanceled
	case errors.Is(err, driver.ErrBadConn):
		return FailureConnection
	}
	return stage
}

// fail builds a failed outcome. Production messages never carry driver text.
func (p *MysqlMcp) fail(c Classification, kind FailureKind, err error, timeout time.Duration) *Outcome {
	var msg string
	switch kind {
	case FailureTimeout:
		msg = "query timed out"
		if timeout > 0 {
			msg = fmt.Sprintf("query timed out after %s", timeout)
		}
	case FailureCanceled:
		msg = "query canceled"
	case FailureConnection:
		msg = "database connection failed"
	case FailureCommit:
		msg = "transaction commit failed"
	default:
		msg = "query execution failed"
	}
	if p.config.Environment == Development && err != nil {
		msg = msg + ": " + err.Error()
	}
	return &Outcome{
		Status:         StatusFailed,
		Classification: c,
		Failure:        &Failure{Kind: kind, Message: msg},
		cause:          err,
	}
}

func (p *MysqlMcp) invalidInput(sql, msg string) *Outcome {
	out := &Outcome{
		Status:         StatusFailed,
		Classification: classify.Classify(truncateForLog(sql, p.config.Query.MaxSQLLength)),
		Failure:        &Failure{Kind: FailureInvalidInput, Message: msg},
	}
	p.logger.Warn().Int("sql_bytes", len(sql)).Str("failure_kind", string(FailureInvalidInput)).Msg(msg)
	return out
}

// metadataKeyColumns and metadataValueColumns identify key/value metadata
// results: Variable_name/Value from SHOW VARIABLES and SHOW STATUS, and
// VARIABLE_NAME/VARIABLE_VALUE from the performance_schema variable tables.
// Matching is case-insensitive. A plain "value" column is only paired with
// "variable_name", so ordinary name/value tables are left alone.
var (
	metadataKeyColumns   = []string{"variable_name"}
	metadataValueColumns = []string{"value", "variable_value"}
)

// redactMetadata masks sensitive values in key/value metadata rows. Reports
// whether any value was masked.
func (p *MysqlMcp) redactMetadata(out *Outcome) bool {
	if !p.redactor.Enabled() {
		return false
	}
	keyCol := findColumn(out.Columns, metadataKeyColumns)
	valCol := findColumn(out.Columns, metadataValueColumns)
	if keyCol == "" || valCol == "" {
		return false
	}

	pairs := make([]redact.Pair, len(out.Rows))
	for i, row := range out.Rows {
		pairs[i] = redact.Pair{Key: fmt.Sprint(row[keyCol]), Value: row[valCol]}
	}
	redacted := false
	for i, pair := range p.redactor.Redact(pairs) {
		if pair.Value == redact.Marker && pairs[i].Value != redact.Marker {
			redacted = true
		}
		out.Rows[i][valCol] = pair.Value
	}
	return redacted
}

func findColumn(columns, candidates []string) string {
	for _, want := range candidates {
		for _, col := range columns {
			if strings.EqualFold(col, want) {
				return col
			}
		}
	}
	return ""
}

// truncateIfNeeded drops trailing rows until the JSON encoding of the rows
// fits in MaxResultLength bytes. TotalRows keeps the count from before.
func (p *MysqlMcp) truncateIfNeeded(out *Outcome) {
	out.TotalRows = len(out.Rows)
	limit := p.config.Query.MaxResultLength
	total := 2 // []
	for i, row := range out.Rows {
		b, err := json.Marshal(row)
		if err != nil {
			continue
		}
		size := len(b)
		if i > 0 {
			size++ // comma
		}
		if total+size > limit {
			out.Rows = out.Rows[:i]
			out.Truncated = true
			return
		}
		total += size
	}
}

func (p *MysqlMcp) logOutcome(sql string, out *Outcome, startTime time.Time) {
	var event *zerolog.Event
	switch out.Status {
	case StatusDenied:
		event = p.logger.Warn().Str("denial_reason", string(out.Denial.Reason))
		if out.Denial.Pattern != "" {
			event = event.Str("blocked_pattern", out.Denial.Pattern)
		}
	case StatusFailed:
		event = p.logger.Error().Str("failure_kind", string(out.Failure.Kind))
		if out.cause != nil {
			event = event.Err(out.cause)
		}
	default:
		event = p.logger.Info()
	}
	event = event.
		Str("sql", truncateForLog(sql, 200)).
		Str("statement_type", string(out.Classification.StatementType)).
		Str("risk_level", out.Classification.RiskLevel.String()).
		Str("status", string(out.Status)).
		Dur("duration", time.Since(startTime))
	if out.Rows != nil {
		event = event.Int("row_count", len(out.Rows))
	}
	if out.RowsAffected != nil {
		event = event.Int64("rows_affected", *out.RowsAffected)
	}
	if out.Redacted {
		event = event.Bool("redacted", true)
	}
	if out.Truncated {
		event = event.Bool("truncated", true)
	}
	event.Msg("query " + string(out.Status))
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
