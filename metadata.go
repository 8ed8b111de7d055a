package mysqlmcp

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rickchristie/mysql-mcp/internal/paginate"
)

var (
	identifierRe  = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	likePatternRe = regexp.MustCompile(`^[a-zA-Z0-9_%]+$`)
)

// systemDatabases are hidden by ShowDatabases unless IncludeSystem is set.
var systemDatabases = map[string]bool{
	"information_schema": true,
	"mysql":              true,
	"performance_schema": true,
	"sys":                true,
}

// ValidationError reports a tool parameter rejected before any SQL was built.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter validation error: %s: %s", e.Param, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func validateIdentifier(param, value string) error {
	if !identifierRe.MatchString(value) {
		return &ValidationError{Param: param, Message: "may only contain letters, digits and underscores"}
	}
	return nil
}

func validateLikePattern(param, value string) error {
	if !likePatternRe.MatchString(value) {
		return &ValidationError{Param: param, Message: "may only contain letters, digits, underscores and the wildcards % and _"}
	}
	return nil
}

// tableRef quotes an already validated table, optionally qualified by database.
func tableRef(database, table string) string {
	if database == "" {
		return "`" + table + "`"
	}
	return "`" + database + "`.`" + table + "`"
}

// ShowDatabasesInput is the input for ShowDatabases. Limit 0 means no limit.
type ShowDatabasesInput struct {
	Pattern       string
	Limit         int
	IncludeSystem bool
}

// ShowDatabases lists databases, filtered in process by Pattern (LIKE syntax).
func (p *MysqlMcp) ShowDatabases(ctx context.Context, input ShowDatabasesInput) (*MetadataOutput, error) {
	var match *regexp.Regexp
	if input.Pattern != "" {
		if err := validateLikePattern("pattern", input.Pattern); err != nil {
			return nil, err
		}
		match = likeToRegexp(input.Pattern)
	}
	if input.Limit < 0 {
		return nil, &ValidationError{Param: "limit", Message: "must be a non-negative integer"}
	}

	out := p.Execute(ctx, "SHOW DATABASES")
	if err := out.Err(); err != nil {
		return nil, err
	}

	dbCol := findColumn(out.Columns, []string{"database"})
	filtered := make([]map[string]any, 0, len(out.Rows))
	for _, row := range out.Rows {
		if dbCol != "" {
			name := fmt.Sprint(row[dbCol])
			if !input.IncludeSystem && systemDatabases[strings.ToLower(name)] {
				continue
			}
			if match != nil && !match.MatchString(name) {
				continue
			}
		}
		filtered = append(filtered, row)
	}
	results, limited := applyLimit(filtered, input.Limit)

	return &MetadataOutput{
		MetadataInfo: map[string]any{
			"operation_type": "show_databases",
			"result_count":   len(results),
			"total_count":    out.TotalRows,
			"truncated":      out.Truncated,
			"filtered": map[string]any{
				"pattern":        input.Pattern,
				"exclude_system": !input.IncludeSystem,
				"limited":        limited,
			},
		},
		Results: results,
	}, nil
}

// ShowTablesInput is the input for ShowTables. Limit 0 means no limit.
type ShowTablesInput struct {
	Database     string
	Pattern      string
	Limit        int
	ExcludeViews bool
}

// ShowTables lists tables in Database, or the connection's default database.
func (p *MysqlMcp) ShowTables(ctx context.Context, input ShowTablesInput) (*MetadataOutput, error) {
	if input.Database != "" {
		if err := validateIdentifier("database", input.Database); err != nil {
			return nil, err
		}
	}
	if input.Pattern != "" {
		if err := validateLikePattern("pattern", input.Pattern); err != nil {
			return nil, err
		}
	}
	if input.Limit < 0 {
		return nil, &ValidationError{Param: "limit", Message: "must be a non-negative integer"}
	}

	var sb strings.Builder
	if input.ExcludeViews {
		sb.WriteString("SHOW FULL TABLES")
	} else {
		sb.WriteString("SHOW TABLES")
	}
	if input.Database != "" {
		sb.WriteString(" FROM `" + input.Database + "`")
	}
	if input.Pattern != "" {
		sb.WriteString(" LIKE '" + input.Pattern + "'")
	}

	out := p.Execute(ctx, sb.String())
	if err := out.Err(); err != nil {
		return nil, err
	}

	filtered := out.Rows
	if input.ExcludeViews && len(out.Columns) > 1 {
		typeCol := out.Columns[1]
		filtered = make([]map[string]any, 0, len(out.Rows))
		for _, row := range out.Rows {
			if fmt.Sprint(row[typeCol]) == "BASE TABLE" {
				filtered = append(filtered, row)
			}
		}
	}
	results, limited := applyLimit(filtered, input.Limit)

	return &MetadataOutput{
		MetadataInfo: map[string]any{
			"operation_type": "show_tables",
			"result_count":   len(results),
			"total_count":    out.TotalRows,
			"truncated":      out.Truncated,
			"filtered": map[string]any{
				"database":      input.Database,
				"pattern":       input.Pattern,
				"exclude_views": input.ExcludeViews,
				"limited":       limited,
			},
		},
		Results: results,
	}, nil
}

// TableInput names a table, optionally qualified by database.
type TableInput struct {
	Table    string
	Database string
}

func (in TableInput) validate() error {
	if err := validateIdentifier("table", in.Table); err != nil {
		return err
	}
	if in.Database != "" {
		return validateIdentifier("database", in.Database)
	}
	return nil
}

// ShowColumns runs SHOW COLUMNS for a table.
func (p *MysqlMcp) ShowColumns(ctx context.Context, input TableInput) (*MetadataOutput, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return p.metadataQuery(ctx, "show_columns", "SHOW COLUMNS FROM "+tableRef(input.Database, input.Table))
}

// DescribeTable runs DESCRIBE for a table.
func (p *MysqlMcp) DescribeTable(ctx context.Context, input TableInput) (*MetadataOutput, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return p.metadataQuery(ctx, "describe_table", "DESCRIBE "+tableRef(input.Database, input.Table))
}

// ShowCreateTable runs SHOW CREATE TABLE for a table.
func (p *MysqlMcp) ShowCreateTable(ctx context.Context, input TableInput) (*MetadataOutput, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return p.metadataQuery(ctx, "show_create_table", "SHOW CREATE TABLE "+tableRef(input.Database, input.Table))
}

// ShowIndexes runs SHOW INDEX for a table.
func (p *MysqlMcp) ShowIndexes(ctx context.Context, input TableInput) (*MetadataOutput, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return p.metadataQuery(ctx, "show_indexes", "SHOW INDEX FROM "+tableRef(input.Database, input.Table))
}

// ShowTableStatusInput is the input for ShowTableStatus.
type ShowTableStatusInput struct {
	Database string
	Pattern  string
}

// ShowTableStatus runs SHOW TABLE STATUS.
func (p *MysqlMcp) ShowTableStatus(ctx context.Context, input ShowTableStatusInput) (*MetadataOutput, error) {
	query := "SHOW TABLE STATUS"
	if input.Database != "" {
		if err := validateIdentifier("database", input.Database); err != nil {
			return nil, err
		}
		query += " FROM `" + input.Database + "`"
	}
	if input.Pattern != "" {
		if err := validateLikePattern("like_pattern", input.Pattern); err != nil {
			return nil, err
		}
		query += " LIKE '" + input.Pattern + "'"
	}
	return p.metadataQuery(ctx, "show_table_status", query)
}

const foreignKeysSQL = `SELECT
    kcu.CONSTRAINT_NAME,
    kcu.TABLE_NAME,
    kcu.COLUMN_NAME,
    kcu.REFERENCED_TABLE_NAME,
    kcu.REFERENCED_COLUMN_NAME,
    rc.UPDATE_RULE,
    rc.DELETE_RULE
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
    ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
    AND kcu.CONSTRAINT_SCHEMA = rc.CONSTRAINT_SCHEMA
WHERE kcu.TABLE_SCHEMA = ?
    AND kcu.TABLE_NAME = ?
    AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

// ShowForeignKeys lists the foreign keys of a table from information_schema.
// Without Database the connection's current database is used.
func (p *MysqlMcp) ShowForeignKeys(ctx context.Context, input TableInput) (*MetadataOutput, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	database := input.Database
	if database == "" {
		out := p.Execute(ctx, "SELECT DATABASE() AS db")
		if err := out.Err(); err != nil {
			return nil, err
		}
		if len(out.Rows) > 0 && out.Rows[0]["db"] != nil {
			database = fmt.Sprint(out.Rows[0]["db"])
		}
		if database == "" {
			return nil, &ValidationError{Param: "database", Message: "no database selected, specify the database parameter"}
		}
	}

	return p.metadataQuery(ctx, "show_foreign_keys", foreignKeysSQL, database, input.Table)
}

// ShowVariablesInput is the input for ShowVariables and ShowStatus.
type ShowVariablesInput struct {
	Pattern string
	Global  bool
}

// ShowVariables runs SHOW SESSION|GLOBAL VARIABLES. Sensitive values are redacted.
func (p *MysqlMcp) ShowVariables(ctx context.Context, input ShowVariablesInput) (*MetadataOutput, error) {
	query, err := showScoped("VARIABLES", input)
	if err != nil {
		return nil, err
	}
	return p.metadataQuery(ctx, "show_variables", query)
}

// ShowStatus runs SHOW SESSION|GLOBAL STATUS. Sensitive values are redacted.
func (p *MysqlMcp) ShowStatus(ctx context.Context, input ShowVariablesInput) (*MetadataOutput, error) {
	query, err := showScoped("STATUS", input)
	if err != nil {
		return nil, err
	}
	return p.metadataQuery(ctx, "show_status", query)
}

func showScoped(what string, input ShowVariablesInput) (string, error) {
	scope := "SESSION"
	if input.Global {
		scope = "GLOBAL"
	}
	query := "SHOW " + scope + " " + what
	if input.Pattern != "" {
		if err := validateLikePattern("pattern", input.Pattern); err != nil {
			return "", err
		}
		query += " LIKE '" + input.Pattern + "'"
	}
	return query, nil
}

// PaginateInput is the input for PaginateResults. Zero Page and PageSize
// take the defaults of 1 and 50.
type PaginateInput struct {
	Query    string
	Page     int
	PageSize int
}

// PaginateResults runs one page of a SELECT and a count of all its rows. Both
// statements pass through Execute and its policy.
func (p *MysqlMcp) PaginateResults(ctx context.Context, input PaginateInput) (*MetadataOutput, error) {
	page, pageSize := input.Page, input.PageSize
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = paginate.DefaultPageSize
	}
	// Blocked patterns see the query as sent; the rewritten statements are
	// reprinted by the parser and gated again by Execute.
	if _, denied := p.admit(input.Query, time.Now()); denied != nil {
		return nil, denied.Err()
	}
	plan, err := paginate.Rewrite(input.Query, page, pageSize)
	if err != nil {
		return nil, &ValidationError{Param: "query", Message: err.Error()}
	}

	out := p.Execute(ctx, plan.PageSQL)
	if err := out.Err(); err != nil {
		return nil, err
	}
	count := p.Execute(ctx, plan.CountSQL)
	if err := count.Err(); err != nil {
		return nil, err
	}
	var total int64
	if len(count.Rows) > 0 {
		total = toInt64(count.Rows[0]["total"])
	}

	return &MetadataOutput{
		MetadataInfo: map[string]any{
			"operation_type": "paginate_results",
			"result_count":   len(out.Rows),
			"pagination": map[string]any{
				"page":          plan.Page,
				"page_size":     plan.PageSize,
				"total_records": total,
				"total_pages":   paginate.TotalPages(total, plan.PageSize),
			},
		},
		Results: out.Rows,
	}, nil
}

// metadataQuery runs a read statement and wraps its rows in a MetadataOutput.
func (p *MysqlMcp) metadataQuery(ctx context.Context, operation, query string, params ...any) (*MetadataOutput, error) {
	out := p.Execute(ctx, query, params...)
	if err := out.Err(); err != nil {
		return nil, err
	}
	info := map[string]any{
		"operation_type": operation,
		"result_count":   len(out.Rows),
	}
	if out.Redacted {
		info["redacted"] = true
	}
	if out.Truncated {
		info["truncated"] = true
	}
	rows := out.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return &MetadataOutput{MetadataInfo: info, Results: rows}, nil
}

func applyLimit(rows []map[string]any, limit int) ([]map[string]any, bool) {
	if limit > 0 && len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}

// likeToRegexp converts a validated LIKE pattern into an anchored,
// case-insensitive regexp.
func likeToRegexp(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	}
	return 0
}
