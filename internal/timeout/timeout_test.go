package timeout

import (
	"strings"
	"testing"
	"time"

	"github.com/rickchristie/mysql-mcp/internal/classify"
)

func TestMetadataStatementsUseMetadataTimeout(t *testing.T) {
	t.Parallel()
	m, err := NewManager(Config{
		DefaultTimeout:  30 * time.Second,
		MetadataTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, st := range []classify.StatementType{classify.Show, classify.Describe} {
		if got := m.GetTimeout(st); got != 5*time.Second {
			t.Errorf("%s: expected 5s, got %v", st, got)
		}
	}
}

func TestOtherStatementsUseDefaultTimeout(t *testing.T) {
	t.Parallel()
	m, err := NewManager(Config{
		DefaultTimeout:  30 * time.Second,
		MetadataTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, st := range []classify.StatementType{
		classify.Select, classify.Insert, classify.Alter, classify.Update,
		classify.Delete, classify.Create, classify.Drop, classify.Truncate, classify.Other,
	} {
		if got := m.GetTimeout(st); got != 30*time.Second {
			t.Errorf("%s: expected 30s, got %v", st, got)
		}
	}
}

func TestZeroMetadataTimeoutFallsBackToDefault(t *testing.T) {
	t.Parallel()
	m, err := NewManager(Config{DefaultTimeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := m.GetTimeout(classify.Show); got != 30*time.Second {
		t.Errorf("expected 30s (default), got %v", got)
	}
}

func TestNewManagerErrorsOnZeroDefault(t *testing.T) {
	t.Parallel()
	_, err := NewManager(Config{})
	if err == nil {
		t.Fatal("expected error for zero default timeout")
	}
	if !strings.Contains(err.Error(), "default timeout must be > 0") {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestNewManagerErrorsOnNegativeMetadata(t *testing.T) {
	t.Parallel()
	_, err := NewManager(Config{DefaultTimeout: time.Second, MetadataTimeout: -time.Second})
	if err == nil {
		t.Fatal("expected error for negative metadata timeout")
	}
}
