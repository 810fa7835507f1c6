package database

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}
}

func TestOptimizeAndVacuum(t *testing.T) {
	db := newTestDB(t)

	server := &Server{URL: "http://jf.local", Username: "amy", LastLogin: time.Now()}
	if _, err := db.UpsertServer(server); err != nil {
		t.Fatalf("UpsertServer returned error: %v", err)
	}

	if err := db.Optimize(); err != nil {
		t.Errorf("Optimize returned error: %v", err)
	}
	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum returned error: %v", err)
	}

	got, err := db.GetServer(server.ID)
	if err != nil {
		t.Fatalf("GetServer returned error: %v", err)
	}
	if got == nil || got.URL != "http://jf.local" {
		t.Error("data should survive maintenance")
	}
}
