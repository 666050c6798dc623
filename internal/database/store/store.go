// Package store is the hand-written query layer over the SQLite schema.
// Every worker reads and writes through these methods; each method is a
// single statement or a single transaction, which is the only cross-worker
// synchronization in the system.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Store provides query methods over an open database connection.
type Store struct {
	db *sql.DB
}

// New creates a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for transactional helpers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on nil error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Null-conversion helpers shared by the row scanners.

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
