// Package mysqlmcp provides guarded MySQL access for AI agents through the
// Model Context Protocol (MCP).
//
// Every statement goes through the same gate before it reaches the database.
// It is classified by its leading keyword into a risk level, checked against
// the blocked patterns and the allowed risk levels of the configured
// environment, and only then run inside its own transaction. Reads are always
// rolled back. Everything else is committed when it succeeds and rolled back
// when it fails.
//
// # Environments
//
// Development allows LOW, MEDIUM and HIGH by default and includes driver
// errors in failure messages. Production allows only LOW and reports failures
// with generic messages. AllowedRiskLevels replaces the default for either.
//
// # Library Usage
//
//	db, err := sqldb.OpenMySQL(conn, pool)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	p := mysqlmcp.New(db, mysqlmcp.Config{
//		Environment:     mysqlmcp.Production,
//		BlockedPatterns: []string{`\bGRANT\b`},
//		Pool:            mysqlmcp.PoolConfig{MaxConns: 10},
//		Query:           mysqlmcp.QueryConfig{DefaultTimeoutSeconds: 30},
//	}, logger)
//
//	// Use directly
//	out := p.Execute(ctx, "SELECT * FROM users WHERE id = ?", 42)
//	if err := out.Err(); err != nil {
//		log.Print(err)
//	}
//
//	// Or register as MCP tools
//	mysqlmcp.RegisterMCPTools(mcpServer, p)
//
// Execute never returns a Go error. The Outcome carries one of three statuses
// (executed, denied or failed) and Err maps the latter two onto
// ErrBlockedPattern, ErrRiskLevelDenied, ErrInvalidInput or
// ErrExecutionFailure.
//
// # Metadata tools
//
// The SHOW, DESCRIBE and information_schema tools validate identifiers and
// LIKE patterns before building SQL, then run it through Execute like any
// other statement. Values of sensitive server variables are replaced with
// "*** HIDDEN ***" unless AllowSensitiveInfo is set.
package mysqlmcp
