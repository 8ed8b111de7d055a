package mysqlmcp

import "context"

// ResultSet is the raw result of a read statement. Values are already
// converted to JSON-friendly Go types by the Database implementation.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Database opens transactions. Implementations must be safe for concurrent use.
// See internal/sqldb for the database/sql implementation.
type Database interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a single transaction. Params are always bound by the driver, never
// interpolated into sql. Rollback after Commit, or after the driver has already
// aborted the transaction, must return nil.
type Tx interface {
	Query(ctx context.Context, sql string, params []any) (*ResultSet, error)
	Exec(ctx context.Context, sql string, params []any) (int64, error)
	Commit() error
	Rollback() error
}
