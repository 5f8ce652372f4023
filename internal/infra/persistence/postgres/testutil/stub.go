// Package testutil provides a recording stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
)

var registered atomic.Int64

// StubConn stores inserted rows per table and records every statement the
// store sends. SELECT statements return all rows of the table; predicates are
// ignored.
type StubConn struct {
	mu sync.Mutex

	Execs     []string
	Queries   []string
	Tables    map[string][]map[string]any
	Begins    int
	ReadOnly  int
	Commits   int
	Rollbacks int

	// Unique lists, per table, a column whose duplicates are rejected with
	// SQLSTATE 23505.
	Unique map[string]string

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	FailDDL    bool

	sequences map[string]int64
}

// NewStubDB registers a sql.DB backed by the stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{
		Tables:    make(map[string][]map[string]any),
		Unique:    make(map[string]string),
		sequences: make(map[string]int64),
	}
	name := fmt.Sprintf("stubpg%d", registered.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.Begins++
	if opts.ReadOnly {
		c.ReadOnly++
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	upper := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(upper, "INSERT INTO") {
		if _, err := c.insert(query, args, false); err != nil {
			return nil, err
		}
		return driver.RowsAffected(1), nil
	}
	if c.FailDDL && strings.HasPrefix(upper, "CREATE") {
		return nil, fmt.Errorf("ddl fail")
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO") {
		id, err := c.insert(query, args, true)
		if err != nil {
			return nil, err
		}
		return &stubRows{cols: []string{"id"}, rows: [][]driver.Value{{id}}}, nil
	}
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	values := make([][]driver.Value, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values}, nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue, generateID bool) (int64, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return 0, err
	}
	if c.FailTables[table] {
		return 0, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(args) {
		return 0, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols)+1)
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if unique, ok := c.Unique[table]; ok {
		for _, existing := range c.Tables[table] {
			if existing[unique] == row[unique] {
				return 0, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
			}
		}
	}
	var id int64
	if generateID {
		c.sequences[table]++
		id = c.sequences[table]
		row["id"] = id
	}
	c.Tables[table] = append(c.Tables[table], row)
	return id, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.Rollbacks++
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.ToLower(query)
	selectPrefix := "select "
	fromToken := " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols := query[len(selectPrefix):fromIdx]
	table := strings.TrimSpace(query[fromIdx+len(fromToken):])
	if table == "" {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	return strings.ToLower(strings.Fields(table)[0]), splitColumns(cols), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
