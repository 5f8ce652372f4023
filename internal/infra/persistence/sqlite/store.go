// Package sqlite provides the SQLite-backed persistent store, either file
// based or held entirely in memory.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"ledgerql/internal/entitymodel/sqlbundle"
	"ledgerql/internal/infra/persistence/sqlstore"
	"ledgerql/pkg/domain"

	msqlite "modernc.org/sqlite" // pure go sqlite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "ledgerql.db"

// Store persists ledger rows in a SQLite database.
type Store struct {
	*sqlstore.Store
	path string
}

// Dialect returns the SQLite dialect used by the store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                "sqlite",
		Placeholder:         sqlstore.QuestionPlaceholder,
		UniqueViolation:     hasCode(sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY),
		ForeignKeyViolation: hasCode(sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY),
	}
}

func hasCode(codes ...int) func(error) bool {
	return func(err error) bool {
		var sqlErr *msqlite.Error
		if !errors.As(err, &sqlErr) {
			return false
		}
		for _, code := range codes {
			if sqlErr.Code() == code {
				return true
			}
		}
		return false
	}
}

// NewStore opens (creating if needed) a file-backed SQLite store and applies the schema.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_time_format", "sqlite")
	q.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return open(ctx, db, path)
}

// NewMemoryStore opens a private in-memory database. The pool is pinned to a
// single connection because every new connection would see an empty database.
func NewMemoryStore(ctx context.Context) (*Store, error) {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_time_format", "sqlite")
	db, err := sql.Open("sqlite", "file::memory:?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	return open(ctx, db, ":memory:")
}

func open(ctx context.Context, db *sql.DB, path string) (*Store, error) {
	store := sqlstore.New(db, Dialect())
	if err := store.ApplyDDL(ctx, sqlbundle.SQLite()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: store, path: path}, nil
}

// Path returns the configured database path (":memory:" for in-memory stores).
func (s *Store) Path() string { return s.path }
