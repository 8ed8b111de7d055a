// Package sqldb adapts a database/sql pool to the mysqlmcp Database interface.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
)

// DB implements mysqlmcp.Database on top of *sql.DB.
type DB struct {
	db *sql.DB
}

var _ mysqlmcp.Database = (*DB)(nil)

// New wraps an existing pool. Any database/sql driver works; the caller keeps
// ownership of the pool's settings.
func New(db *sql.DB) *DB {
	return &DB{db: db}
}

// DSN builds a go-sql-driver/mysql DSN. Client-side interpolation and
// multi-statements stay disabled so params are bound by the server.
func DSN(conn mysqlmcp.ConnectionConfig) (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = conn.User
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.InterpolateParams = false
	cfg.MultiStatements = false
	if conn.ConnectTimeout != "" {
		d, err := time.ParseDuration(conn.ConnectTimeout)
		if err != nil {
			return "", fmt.Errorf("invalid connect timeout %q: %w", conn.ConnectTimeout, err)
		}
		cfg.Timeout = d
	}
	return cfg.FormatDSN(), nil
}

// OpenMySQL opens a MySQL pool with the given pool settings. It does not
// connect; call Ping to check the server is reachable.
func OpenMySQL(conn mysqlmcp.ConnectionConfig, pool mysqlmcp.PoolConfig) (*DB, error) {
	dsn, err := DSN(conn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	if err := configurePool(db, pool); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

func configurePool(db *sql.DB, pool mysqlmcp.PoolConfig) error {
	db.SetMaxOpenConns(pool.MaxConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	if pool.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(pool.ConnMaxLifetime)
		if err != nil {
			return fmt.Errorf("invalid pool.conn_max_lifetime %q: %w", pool.ConnMaxLifetime, err)
		}
		db.SetConnMaxLifetime(d)
	}
	if pool.ConnMaxIdleTime != "" {
		d, err := time.ParseDuration(pool.ConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("invalid pool.conn_max_idle_time %q: %w", pool.ConnMaxIdleTime, err)
		}
		db.SetConnMaxIdleTime(d)
	}
	return nil
}

// Ping verifies a connection can be established.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// BeginTx starts a transaction bound to ctx. database/sql rolls it back on
// its own if ctx is cancelled.
func (d *DB) BeginTx(ctx context.Context) (mysqlmcp.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx implements mysqlmcp.Tx.
type Tx struct {
	tx *sql.Tx
}

// Query runs a statement that returns rows and reads them all.
func (t *Tx) Query(ctx context.Context, query string, params []any) (*mysqlmcp.ResultSet, error) {
	rows, err := t.tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &mysqlmcp.ResultSet{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = convertValue(v)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Exec runs a statement and returns the affected row count. Drivers that
// cannot report a count yield 0.
func (t *Tx) Exec(ctx context.Context, query string, params []any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback treats an already finished transaction as rolled back.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// convertValue converts a scanned driver value to a JSON-friendly Go type.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		// MySQL returns most text and decimal columns as bytes.
		if utf8.Valid(val) {
			return string(val)
		}
		return base64.StdEncoding.EncodeToString(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}
