package db_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/HendryAvila/taskr/internal/db"
)

// newPostgresAdapter connects to TASKR_TEST_POSTGRES_URL or skips.
func newPostgresAdapter(t *testing.T) *db.PostgresAdapter {
	t.Helper()
	url := os.Getenv("TASKR_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TASKR_TEST_POSTGRES_URL not set")
	}
	a := db.NewPostgresAdapter(url, nil)
	ctx := context.Background()
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := a.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestPostgres_ConnectFailsClearly(t *testing.T) {
	a := db.NewPostgresAdapter("postgres://taskr@127.0.0.1:1/none?connect_timeout=1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Connect(ctx)
	if !errors.Is(err, db.ErrStore) {
		t.Errorf("Connect() error = %v, want ErrStore", err)
	}
}

func TestPostgres_SearchFallsBackWithoutSearchVector(t *testing.T) {
	a := newPostgresAdapter(t)
	ctx := context.Background()
	table := fmt.Sprintf("search_fallback_%d", time.Now().UnixNano())
	full := db.Namespace + "." + table

	if _, err := a.Execute(ctx, "CREATE TABLE "+full+" (id TEXT, title TEXT, created_at TIMESTAMPTZ, deleted_at TIMESTAMPTZ)"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _, _ = a.Execute(context.Background(), "DROP TABLE "+full) })

	if _, err := a.Execute(ctx, "INSERT INTO "+full+" VALUES ($1, $2, now(), NULL)", "a", "Login Fix"); err != nil {
		t.Fatal(err)
	}
	rows, err := a.SearchText(ctx, db.SearchRequest{Table: table, Query: "login", Columns: []string{"title"}})
	if err != nil {
		t.Fatalf("SearchText() error: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "a" {
		t.Errorf("rows = %v", rows)
	}
}

func TestPostgres_ExecuteTagAndClose(t *testing.T) {
	a := newPostgresAdapter(t)
	ctx := context.Background()
	res, err := a.Execute(ctx, "SELECT 1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tag != "SELECT 1" {
		t.Errorf("Tag = %q", res.Tag)
	}
	_ = a.Close()
	if _, err := a.FetchScalar(ctx, "SELECT 1"); err != nil {
		t.Errorf("use after Close did not reconnect: %v", err)
	}
}
