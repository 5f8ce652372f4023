// Package sqlbundle exposes the embedded ledger DDL to the persistence adapters.
package sqlbundle

import (
	"bufio"
	"strings"

	sqldocs "ledgerql/docs/schema/sql"
)

// Tables lists every table the schema creates, in dependency order.
var Tables = []string{
	"authors",
	"books",
	"document_types",
	"operations",
	"documents",
	"accounting_entries",
	"accounting_entry_details",
	"states",
	"aliquots_iva",
	"activities",
	"tax_credit_options",
	"liquidation_entries",
	"taxes",
	"tax_payment_types",
	"tax_payments",
}

// SQLite returns the SQLite DDL.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres DDL.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// Blank lines and whole-line "--" comments are dropped. A statement ends on the
// first line whose trimmed text ends with ";".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}
