// Package postgres provides the Postgres-backed persistent store. The schema
// is applied from the embedded DDL bundle on startup; queries are shared with
// the SQLite backend through sqlstore.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"ledgerql/internal/entitymodel/sqlbundle"
	"ledgerql/internal/infra/persistence/sqlstore"
	"ledgerql/pkg/domain"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/ledgerql?sslmode=disable"

	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Store persists ledger rows in Postgres.
type Store struct {
	*sqlstore.Store
}

// Dialect returns the Postgres dialect used by the store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                "postgres",
		Placeholder:         sqlstore.DollarPlaceholder,
		UniqueViolation:     hasSQLState(sqlStateUniqueViolation),
		ForeignKeyViolation: hasSQLState(sqlStateForeignKeyViolation),
	}
}

func hasSQLState(code string) func(error) bool {
	return func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == code
	}
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// defaultDSN), verifies connectivity and applies the DDL bundle.
func NewStore(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, closeOnError(db, fmt.Errorf("ping postgres: %w", err))
	}
	store := sqlstore.New(db, Dialect())
	if err := store.ApplyDDL(ctx, sqlbundle.Postgres()); err != nil {
		return nil, closeOnError(db, err)
	}
	return &Store{Store: store}, nil
}

func closeOnError(db *sql.DB, err error) error {
	if cerr := db.Close(); cerr != nil {
		return multierror.Append(err, fmt.Errorf("close postgres: %w", cerr))
	}
	return err
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
