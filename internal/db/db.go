// Package db provides SQLite connection management and schema migrations
// for the local durable store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "syncqueue.db"

// DB wraps the sql.DB with sync queue configuration.
type DB struct {
	*sql.DB
	lock *dirLock
}

// Open opens (creating if needed) the SQLite database in dataDir and applies
// pending migrations.
// The data directory has a single owner: Open takes an exclusive lock on
// LockFileName and fails with ErrLocked while another DB holds it, since
// each owner keeps the queues in memory and rewrites them whole.
// The database is opened with:
// - WAL mode so status reads do not block queue writes
// - a single connection, since SQLite allows only one writer
// - a busy timeout for checkpoints and external readers
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock, err := lockDir(dataDir)
	if err != nil {
		return nil, err
	}

	db, err := OpenPath(filepath.Join(dataDir, FileName))
	if err != nil {
		lock.release()
		return nil, err
	}
	db.lock = lock
	return db, nil
}

// OpenPath opens the database at an explicit path (":memory:" is allowed).
func OpenPath(path string) (*DB, error) {
	// modernc.org/sqlite is pure Go, no CGO
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	m := NewMigrator(sqlDB, Migrations())
	if err := m.Initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB}, nil
}

// Close closes the database connection and releases the data directory.
func (db *DB) Close() error {
	err := db.DB.Close()
	if db.lock != nil {
		if lerr := db.lock.release(); err == nil {
			err = lerr
		}
		db.lock = nil
	}
	return err
}
