package mysqlmcp_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() mysqlmcp.Config {
	return mysqlmcp.Config{
		Environment: mysqlmcp.Development,
		Pool:        mysqlmcp.PoolConfig{MaxConns: 5},
		Query: mysqlmcp.QueryConfig{
			DefaultTimeoutSeconds:  30,
			MetadataTimeoutSeconds: 10,
			MaxSQLLength:           1000,
			MaxResultLength:        100000,
		},
	}
}

func newTestInstance(t *testing.T, db mysqlmcp.Database, config mysqlmcp.Config) *mysqlmcp.MysqlMcp {
	t.Helper()
	return mysqlmcp.New(db, config, testLogger())
}

// fakeDB records every call so tests can assert what reached the database.
// queryFn and execFn default to one row and one affected row.
type fakeDB struct {
	mu         sync.Mutex
	beginCalls int
	beginErr   error
	commitErr  error
	txs        []*fakeTx

	queryFn func(ctx context.Context, sql string, params []any) (*mysqlmcp.ResultSet, error)
	execFn  func(ctx context.Context, sql string, params []any) (int64, error)

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

type fakeTx struct {
	db         *fakeDB
	queries    []string
	execs      []string
	params     [][]any
	committed  int
	rolledBack int
}

func (d *fakeDB) BeginTx(ctx context.Context) (mysqlmcp.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beginCalls++
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	tx := &fakeTx{db: d}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) begins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.beginCalls
}

func (d *fakeDB) lastTx(t *testing.T) *fakeTx {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.txs) == 0 {
		t.Fatal("no transaction was started")
	}
	return d.txs[len(d.txs)-1]
}

func (d *fakeDB) enter() func() {
	n := d.inflight.Add(1)
	for {
		max := d.maxInflight.Load()
		if n <= max || d.maxInflight.CompareAndSwap(max, n) {
			break
		}
	}
	return func() { d.inflight.Add(-1) }
}

func (tx *fakeTx) Query(ctx context.Context, sql string, params []any) (*mysqlmcp.ResultSet, error) {
	defer tx.db.enter()()
	tx.db.mu.Lock()
	tx.queries = append(tx.queries, sql)
	tx.params = append(tx.params, params)
	fn := tx.db.queryFn
	tx.db.mu.Unlock()
	if fn != nil {
		return fn(ctx, sql, params)
	}
	return &mysqlmcp.ResultSet{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}}, nil
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, params []any) (int64, error) {
	defer tx.db.enter()()
	tx.db.mu.Lock()
	tx.execs = append(tx.execs, sql)
	tx.params = append(tx.params, params)
	fn := tx.db.execFn
	tx.db.mu.Unlock()
	if fn != nil {
		return fn(ctx, sql, params)
	}
	return 1, nil
}

func (tx *fakeTx) Commit() error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if tx.db.commitErr != nil {
		return tx.db.commitErr
	}
	tx.committed++
	return nil
}

func (tx *fakeTx) Rollback() error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	tx.rolledBack++
	return nil
}

func (tx *fakeTx) state() (committed, rolledBack int) {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	return tx.committed, tx.rolledBack
}
