package store

import (
	"context"
	"os"
	"testing"
)

func TestPostgresBackendRoundTrip(t *testing.T) {
	dsn := os.Getenv("BRANCHAUTH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BRANCHAUTH_TEST_POSTGRES_DSN not set")
	}

	s := New(PostgresOpener(dsn, "branchauth_kv_test"))
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "currentBranch", `{"branch":"1"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "currentBranch", `{"branch":"2"}`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, "currentBranch")
	if err != nil || !ok || v != `{"branch":"2"}` {
		t.Fatalf("unexpected get %q ok=%v err=%v", v, ok, err)
	}
	if err := s.Delete(ctx, "currentBranch"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestPostgresOpenerRejectsBadTableName(t *testing.T) {
	if tableNamePattern.MatchString("kv; DROP TABLE users") {
		t.Fatal("table name pattern must reject injection")
	}
	if !tableNamePattern.MatchString("branchauth_kv") {
		t.Fatal("table name pattern must accept plain identifiers")
	}
}
