// Package db tests for database migration management.
package db

import (
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"V1__create_a.up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"V2__create_b.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"V2__create_b.down.sql": {Data: []byte("DROP TABLE b;")},
		"README.md":             {Data: []byte("ignored")},
		"Vx__broken.up.sql":     {Data: []byte("ignored")},
	}
}

// TestMigrator_Up verifies migrations are applied in order and recorded.
func TestMigrator_Up(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, testMigrations())

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='b'").Scan(&name); err != nil {
		t.Errorf("table b not created: %v", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations() failed: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("applied = %d, want 2", len(applied))
	}
	if applied[0].Description != "create_a" || len(applied[0].Checksum) != 64 {
		t.Errorf("unexpected migration record: %+v", applied[0])
	}

	// idempotent
	if err := m.Up(); err != nil {
		t.Errorf("second Up() failed: %v", err)
	}
}

// TestMigrator_Up_checksumMismatch verifies edited migrations are rejected.
func TestMigrator_Up_checksumMismatch(t *testing.T) {
	db := openMemory(t)
	files := testMigrations()
	m := NewMigrator(db, files)
	if err := m.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := m.Up(); err != nil {
		t.Fatal(err)
	}

	files["V1__create_a.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id INTEGER, x TEXT);")}

	err := m.Up()
	if err == nil || !strings.Contains(err.Error(), "modified") {
		t.Errorf("Up() error = %v, want checksum mismatch", err)
	}
}

// TestMigrations_embedded verifies the shipped migrations are readable.
func TestMigrations_embedded(t *testing.T) {
	m := NewMigrator(nil, Migrations())
	files, err := m.upFiles()
	if err != nil {
		t.Fatalf("upFiles() failed: %v", err)
	}
	if len(files) == 0 || files[0].version != 1 {
		t.Errorf("unexpected embedded migrations: %+v", files)
	}
}
