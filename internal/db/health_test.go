package db_test

import (
	"context"
	"testing"

	"github.com/HendryAvila/taskr/internal/db"
)

func TestHealth_SQLite(t *testing.T) {
	a := newTestAdapter(t)
	r := db.Health(context.Background(), a)
	if r.Status != db.StatusHealthy || r.Error != "" {
		t.Fatalf("Health() = %+v", r)
	}
	if r.DatabaseType != db.KindSQLite || r.FTS || r.Placeholder != db.PlaceholderQMark {
		t.Errorf("Health() = %+v", r)
	}
}

func TestHealth_UnreachablePostgres(t *testing.T) {
	a := db.NewPostgresAdapter("postgres://taskr@127.0.0.1:1/none?connect_timeout=1", nil)
	defer a.Close()

	r := db.Health(context.Background(), a)
	if r.Status != db.StatusUnhealthy || r.Error == "" {
		t.Fatalf("Health() = %+v, want unhealthy with error", r)
	}
	if r.DatabaseType != db.KindPostgres || !r.FTS {
		t.Errorf("Health() = %+v", r)
	}
}
