package mysqlmcp_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
	"github.com/rickchristie/mysql-mcp/internal/classify"
	"github.com/rickchristie/mysql-mcp/internal/policy"
	"github.com/rickchristie/mysql-mcp/internal/redact"
	"github.com/rickchristie/mysql-mcp/internal/timeout"
)

var raceQueries = []string{
	"SELECT * FROM users",
	"INSERT INTO users (name) VALUES ('test')",
	"UPDATE users SET name = 'test' WHERE id = 1",
	"UPDATE users SET name = 'test'",
	"DELETE FROM users WHERE id = 1",
	"DROP TABLE users",
	"CREATE TABLE foo (id int)",
	"SHOW VARIABLES",
	"DESCRIBE users",
	"GRANT ALL ON *.* TO 'x'@'%'",
}

func TestRace_ConcurrentClassifyAndEvaluate(t *testing.T) {
	engine, err := policy.NewEngine(policy.Config{
		Environment:     policy.Production,
		BlockedPatterns: []string{`\bGRANT\b`},
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sql := raceQueries[(id+j)%len(raceQueries)]
				c := classify.Classify(sql)
				d := engine.Evaluate(sql, c)
				if !d.Allowed {
					_ = engine.Message(d.Denial, c)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentRedaction(t *testing.T) {
	r := redact.NewRedactor(redact.Config{Terms: []string{"token"}})
	pairs := []redact.Pair{
		{Key: "ssl_cert", Value: "/etc/cert.pem"},
		{Key: "max_connections", Value: "151"},
		{Key: "api_token", Value: "abc"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				out := r.Redact(pairs)
				if out[1].Value != "151" {
					t.Errorf("ordinary value changed: %v", out[1].Value)
					return
				}
			}
		}()
	}
	wg.Wait()
	if pairs[0].Value != "/etc/cert.pem" {
		t.Fatal("input pairs were mutated")
	}
}

func TestRace_ConcurrentTimeout(t *testing.T) {
	m, err := timeout.NewManager(timeout.Config{
		DefaultTimeout:  30 * time.Second,
		MetadataTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c := classify.Classify(raceQueries[(id+j)%len(raceQueries)])
				_ = m.GetTimeout(c.StatementType)
			}
		}(i)
	}
	wg.Wait()
}

func TestRace_ConcurrentExecuteBoundedByMaxConns(t *testing.T) {
	t.Parallel()
	db := &fakeDB{
		queryFn: func(ctx context.Context, sql string, params []any) (*mysqlmcp.ResultSet, error) {
			time.Sleep(2 * time.Millisecond)
			return &mysqlmcp.ResultSet{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}, nil
		},
	}
	config := defaultConfig()
	config.Pool.MaxConns = 3
	p := newTestInstance(t, db, config)

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				sql := raceQueries[(id+j)%len(raceQueries)]
				out := p.Execute(context.Background(), sql)
				if out == nil {
					errs <- fmt.Errorf("nil outcome for %q", sql)
					return
				}
				if out.Status == mysqlmcp.StatusFailed {
					errs <- fmt.Errorf("unexpected failure for %q: %s", sql, out.Failure.Message)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if got := db.maxInflight.Load(); got > 3 {
		t.Fatalf("expected at most 3 statements in flight, saw %d", got)
	}
	if got := db.inflight.Load(); got != 0 {
		t.Fatalf("expected no statements in flight after completion, saw %d", got)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	for i, tx := range db.txs {
		if tx.committed+tx.rolledBack != 1 {
			t.Fatalf("tx %d: committed=%d rolledBack=%d, want exactly one", i, tx.committed, tx.rolledBack)
		}
	}
}
