// Package sqlstore implements domain.PersistentStore over database/sql. The
// sqlite and postgres packages supply a Dialect and an opened *sql.DB; every
// query and write lives here so both backends share one behaviour.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ledgerql/internal/entitymodel/sqlbundle"
	"ledgerql/pkg/domain"

	"github.com/hashicorp/go-multierror"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// MaxInListSize caps the number of bound parameters in one IN (...) clause.
// Larger key sets are split into several queries whose rows are concatenated.
const MaxInListSize = 500

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// UniqueViolation reports whether err is a unique or primary key violation.
	UniqueViolation func(err error) bool
	// ForeignKeyViolation reports whether err is a foreign key violation.
	ForeignKeyViolation func(err error) bool
}

// QuestionPlaceholder renders "?" parameters (SQLite).
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n" parameters (Postgres).
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// Store is a database/sql backed persistent store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an opened database. The schema is not applied; call ApplyDDL.
func New(db *sql.DB, dialect Dialect) *Store {
	if dialect.Placeholder == nil {
		dialect.Placeholder = QuestionPlaceholder
	}
	if dialect.UniqueViolation == nil {
		dialect.UniqueViolation = func(error) bool { return false }
	}
	if dialect.ForeignKeyViolation == nil {
		dialect.ForeignKeyViolation = func(error) bool { return false }
	}
	return &Store{db: db, dialect: dialect}
}

// ApplyDDL executes every statement of the DDL script in order.
func (s *Store) ApplyDDL(ctx context.Context, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the configured dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTransaction opens a read-write session, commits when fn returns nil
// and rolls back otherwise. A panic inside fn rolls back before propagating.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	return s.session(ctx, false, func(t *txn) error { return fn(t) })
}

// View opens a read-only session. The session is always rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.session(ctx, true, func(t *txn) error { return fn(t) })
}

func (s *Store) session(ctx context.Context, readOnly bool, fn func(*txn) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return &domain.StoreError{Op: "begin", Err: err}
	}
	finished := false
	defer func() {
		if finished {
			return
		}
		// fn panicked; release the connection before the panic continues.
		_ = tx.Rollback()
	}()

	fnErr := fn(&txn{ctx: ctx, tx: tx, dialect: s.dialect})
	if fnErr != nil || readOnly {
		finished = true
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			if fnErr == nil {
				return &domain.StoreError{Op: "rollback", Err: rbErr}
			}
			return multierror.Append(fnErr, &domain.StoreError{Op: "rollback", Err: rbErr})
		}
		return fnErr
	}
	finished = true
	if err := tx.Commit(); err != nil {
		return &domain.StoreError{Op: "commit", Err: err}
	}
	return nil
}

// txn implements domain.Transaction on top of a *sql.Tx bound to ctx.
type txn struct {
	ctx     context.Context
	tx      *sql.Tx
	dialect Dialect
}

// rebind rewrites "?" markers into the dialect's placeholders.
func (t *txn) rebind(query string) string {
	if t.dialect.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(t.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (t *txn) query(op, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(t.ctx, t.rebind(query), args...)
	if err != nil {
		return nil, &domain.StoreError{Op: op, Err: err}
	}
	return rows, nil
}

func (t *txn) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, t.rebind(query), args...)
}

func (t *txn) exec(op, query string, args ...any) error {
	if _, err := t.tx.ExecContext(t.ctx, t.rebind(query), args...); err != nil {
		return &domain.StoreError{Op: op, Err: err}
	}
	return nil
}

// inList renders "(?, ?, ?)" for n parameters.
func inList(n int) string {
	if n <= 0 {
		return "(NULL)"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

// chunks splits keys into slices of at most size elements.
func chunks[K any](keys []K, size int) [][]K {
	if len(keys) == 0 {
		return nil
	}
	out := make([][]K, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		out = append(out, keys[start:end])
	}
	return out
}

func toArgs[K any](keys []K) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
