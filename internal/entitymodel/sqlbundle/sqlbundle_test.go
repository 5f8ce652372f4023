package sqlbundle

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		stmts := SplitStatements(ddl)
		if len(stmts) == 0 {
			t.Fatalf("%s: expected DDL to produce statements", name)
		}
		for _, stmt := range stmts {
			if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
				t.Fatalf("%s: statement unexpectedly starts with comment: %q", name, stmt)
			}
			if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
				t.Fatalf("%s: statement missing semicolon terminator: %q", name, stmt)
			}
		}
	}
}

func TestSplitStatementsMultiline(t *testing.T) {
	ddl := "-- header\nCREATE TABLE a (\n  id INT\n);\n\nALTER TABLE a\n  ADD x INT;\nSELECT 1"
	stmts := SplitStatements(ddl)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[1], "ADD x INT;") {
		t.Fatalf("expected continuation line kept, got %q", stmts[1])
	}
	if stmts[2] != "SELECT 1" {
		t.Fatalf("expected unterminated tail kept, got %q", stmts[2])
	}
}

func TestBundlesCreateEveryTable(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		for _, table := range Tables {
			if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				t.Fatalf("%s bundle missing table %s", name, table)
			}
		}
	}
}

func TestPostgresAttachesBackReferences(t *testing.T) {
	ddl := Postgres()
	for _, constraint := range []string{"documents_accounting_entry_id_fkey", "operations_document_id_fkey"} {
		if !strings.Contains(ddl, "DROP CONSTRAINT IF EXISTS "+constraint) {
			t.Fatalf("expected idempotent drop of %s", constraint)
		}
		if !strings.Contains(ddl, "ADD CONSTRAINT "+constraint) {
			t.Fatalf("expected %s to be attached", constraint)
		}
	}
}
