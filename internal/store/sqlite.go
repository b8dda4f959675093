package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/db"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
)

// SQLiteStore keeps values in the kv_store table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store over an opened and migrated database.
func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database.DB, now: time.Now}
}

// OpenSQLite opens the database in dataDir and returns a store plus a close func.
func OpenSQLite(dataDir string) (*SQLiteStore, func() error, error) {
	database, err := db.Open(dataDir)
	if stderrors.Is(err, db.ErrLocked) {
		return nil, nil, errors.Wrap(errors.ErrStoreLocked,
			"data directory "+dataDir+" is in use, stop syncq serve or use its HTTP API", err)
	}
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrDatabase, "failed to open store in "+dataDir, err)
	}
	return NewSQLiteStore(database), database.Close, nil
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
			  ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, s.now().Unix()); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}
