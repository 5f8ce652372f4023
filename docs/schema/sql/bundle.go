// Package sqldocs embeds the relational DDL for each supported SQL dialect.
package sqldocs

import _ "embed"

// SQLite holds the SQLite dialect of the ledger schema.
//
//go:embed sqlite.sql
var SQLite string

// Postgres holds the Postgres dialect of the ledger schema.
//
//go:embed postgres.sql
var Postgres string
