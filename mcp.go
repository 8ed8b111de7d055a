package mysqlmcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers every MySQL tool on the given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, p *MysqlMcp) {
	mcpServer.AddTools(p.Tools()...)
}

// Tools returns the MySQL tools with their logged handlers.
func (p *MysqlMcp) Tools() []server.ServerTool {
	tableParams := []mcp.ToolOption{
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name (letters, digits and underscores)"),
		),
		mcp.WithString("database",
			mcp.Description("Database name (defaults to the current database)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	}
	withTableParams := func(description string) []mcp.ToolOption {
		return append([]mcp.ToolOption{mcp.WithDescription(description)}, tableParams...)
	}

	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{
			mcp.NewTool("mysql_query",
				mcp.WithDescription("Execute a SQL statement against the MySQL database. Every statement is classified by risk and checked against the server policy before it runs. Use ? placeholders with params for values."),
				mcp.WithString("query",
					mcp.Required(),
					mcp.Description("The SQL statement to execute"),
				),
				mcp.WithArray("params",
					mcp.Description("Values bound to the ? placeholders, in order"),
					mcp.Items(map[string]any{"type": []string{"string", "number", "boolean", "null"}}),
				),
			),
			p.handleQuery,
		},
		{
			mcp.NewTool("mysql_show_databases",
				mcp.WithDescription("List databases, optionally filtered by a LIKE pattern."),
				mcp.WithString("pattern", mcp.Description("LIKE pattern such as %test%")),
				mcp.WithNumber("limit", mcp.DefaultNumber(100), mcp.Description("Maximum number of results, 0 for no limit")),
				mcp.WithBoolean("exclude_system", mcp.DefaultBool(true), mcp.Description("Hide information_schema, mysql, performance_schema and sys")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			p.handleShowDatabases,
		},
		{
			mcp.NewTool("mysql_show_tables",
				mcp.WithDescription("List tables in a database, optionally filtered by a LIKE pattern."),
				mcp.WithString("database", mcp.Description("Database name (defaults to the current database)")),
				mcp.WithString("pattern", mcp.Description("LIKE pattern such as %user%")),
				mcp.WithNumber("limit", mcp.DefaultNumber(100), mcp.Description("Maximum number of results, 0 for no limit")),
				mcp.WithBoolean("exclude_views", mcp.DefaultBool(false), mcp.Description("Only return base tables")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			p.handleShowTables,
		},
		{
			mcp.NewTool("mysql_show_columns", withTableParams("Show the columns of a table.")...),
			p.tableHandler(p.ShowColumns),
		},
		{
			mcp.NewTool("mysql_describe_table", withTableParams("Describe the structure of a table.")...),
			p.tableHandler(p.DescribeTable),
		},
		{
			mcp.NewTool("mysql_show_create_table", withTableParams("Show the CREATE TABLE statement of a table.")...),
			p.tableHandler(p.ShowCreateTable),
		},
		{
			mcp.NewTool("mysql_show_indexes", withTableParams("Show the indexes of a table.")...),
			p.tableHandler(p.ShowIndexes),
		},
		{
			mcp.NewTool("mysql_show_foreign_keys", withTableParams("Show the foreign key constraints of a table.")...),
			p.tableHandler(p.ShowForeignKeys),
		},
		{
			mcp.NewTool("mysql_show_table_status",
				mcp.WithDescription("Show storage status of the tables in a database."),
				mcp.WithString("database", mcp.Description("Database name (defaults to the current database)")),
				mcp.WithString("like_pattern", mcp.Description("LIKE pattern for table names")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			p.handleShowTableStatus,
		},
		{
			mcp.NewTool("mysql_show_variables",
				mcp.WithDescription("Show server variables. Sensitive values are hidden unless the server allows them."),
				mcp.WithString("pattern", mcp.Description("LIKE pattern such as %buffer%")),
				mcp.WithBoolean("global_scope", mcp.DefaultBool(false), mcp.Description("Show GLOBAL instead of SESSION variables")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			p.scopedHandler(p.ShowVariables),
		},
		{
			mcp.NewTool("mysql_show_status",
				mcp.WithDescription("Show server status counters. Sensitive values are hidden unless the server allows them."),
				mcp.WithString("pattern", mcp.Description("LIKE pattern such as %conn%")),
				mcp.WithBoolean("global_scope", mcp.DefaultBool(false), mcp.Description("Show GLOBAL instead of SESSION status")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			p.scopedHandler(p.ShowStatus),
		},
		{
			mcp.NewTool("mysql_paginate_results",
				mcp.WithDescription("Run one page of a SELECT query together with the total row count."),
				mcp.WithString("query", mcp.Required(), mcp.Description("A SELECT query without LIMIT")),
				mcp.WithNumber("page", mcp.DefaultNumber(1), mcp.Description("Page number starting at 1")),
				mcp.WithNumber("page_size", mcp.DefaultNumber(50), mcp.Description("Rows per page, 1 to 1000")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			p.handlePaginate,
		},
	}

	out := make([]server.ServerTool, len(tools))
	for i, t := range tools {
		out[i] = server.ServerTool{Tool: t.tool, Handler: p.loggedToolHandler(t.tool.Name, t.handler)}
	}
	return out
}

func (p *MysqlMcp) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	var params []any
	if raw, ok := req.GetArguments()["params"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return mcp.NewToolResultError("params must be an array"), nil
		}
		params = list
	}

	out := p.Execute(ctx, query, params...)
	switch out.Status {
	case StatusDenied:
		return mcp.NewToolResultError(out.Message), nil
	case StatusFailed:
		return mcp.NewToolResultError(out.Failure.Message), nil
	}
	return jsonResult(QueryOutput{
		Columns:        out.Columns,
		Rows:           out.Rows,
		RowsAffected:   out.RowsAffected,
		Truncated:      out.Truncated,
		Classification: out.Classification,
	})
}

func (p *MysqlMcp) handleShowDatabases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return metadataResult(p.ShowDatabases(ctx, ShowDatabasesInput{
		Pattern:       req.GetString("pattern", ""),
		Limit:         req.GetInt("limit", 100),
		IncludeSystem: !req.GetBool("exclude_system", true),
	}))
}

func (p *MysqlMcp) handleShowTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return metadataResult(p.ShowTables(ctx, ShowTablesInput{
		Database:     req.GetString("database", ""),
		Pattern:      req.GetString("pattern", ""),
		Limit:        req.GetInt("limit", 100),
		ExcludeViews: req.GetBool("exclude_views", false),
	}))
}

func (p *MysqlMcp) handleShowTableStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return metadataResult(p.ShowTableStatus(ctx, ShowTableStatusInput{
		Database: req.GetString("database", ""),
		Pattern:  req.GetString("like_pattern", ""),
	}))
}

func (p *MysqlMcp) handlePaginate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	return metadataResult(p.PaginateResults(ctx, PaginateInput{
		Query:    query,
		Page:     req.GetInt("page", 1),
		PageSize: req.GetInt("page_size", 50),
	}))
}

func (p *MysqlMcp) tableHandler(fn func(context.Context, TableInput) (*MetadataOutput, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		return metadataResult(fn(ctx, TableInput{Table: table, Database: req.GetString("database", "")}))
	}
}

func (p *MysqlMcp) scopedHandler(fn func(context.Context, ShowVariablesInput) (*MetadataOutput, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return metadataResult(fn(ctx, ShowVariablesInput{
			Pattern: req.GetString("pattern", ""),
			Global:  req.GetBool("global_scope", false),
		}))
	}
}

// metadataResult turns validation errors, denials and failures into tool
// errors so the agent sees them as text.
func metadataResult(out *MetadataOutput, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (p *MysqlMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		p.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Bool("is_error", result != nil && result.IsError).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
