// Package sqlite contains the device-local SQLite implementation of the record store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kazu-apps/carenote-sync/internal/migrate"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the SQLite handle shared by the record, ledger and state repositories.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies migrations.
//
// Transactions start with BEGIN IMMEDIATE so a read-modify-write holds the
// write lock from its first read; a single connection serializes writers.
func Open(ctx context.Context, path string) (*Store, error) {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate.UpSQLite(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Records returns the record repository.
func (s *Store) Records() *RecordRepo { return &RecordRepo{db: s.db} }

// Ledger returns the idempotency ledger repository.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{db: s.db} }

// State returns the sync state repository.
func (s *Store) State() *StateRepo { return &StateRepo{db: s.db} }

// withTx runs fn in a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = e
		}
	}()
	return fn(tx)
}
