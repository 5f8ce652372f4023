// Command schema-check verifies that the SQL bundles for every dialect and
// the GraphQL schema describe the same ledger.
package main

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"ledgerql/internal/adapters/gqlapi"
	"ledgerql/internal/entitymodel/sqlbundle"
	"ledgerql/pkg/domain"

	"github.com/hashicorp/go-multierror"
)

var (
	exitFn              = os.Exit
	outWriter io.Writer = os.Stdout
	errWriter io.Writer = os.Stderr
)

// entityTables maps GraphQL object types to the table that stores them.
var entityTables = map[string]string{
	"Author":                "authors",
	"Book":                  "books",
	"DocumentType":          "document_types",
	"Document":              "documents",
	"AccountingEntry":       "accounting_entries",
	"AccountingEntryDetail": "accounting_entry_details",
	"LiquidationEntry":      "liquidation_entries",
	"TaxPayment":            "tax_payments",
}

var createTable = regexp.MustCompile(`(?i)create\s+table\s+(?:if\s+not\s+exists\s+)?([a-z_][a-z0-9_]*)`)

type dialectReport struct {
	Name       string
	Statements int
	Tables     []string
}

type report struct {
	Dialects []dialectReport
	Types    []string
}

func main() {
	rep, err := check()
	if err != nil {
		fmt.Fprintln(errWriter, "schema-check:", err)
		exitFn(1)
		return
	}
	write(outWriter, rep)
}

func inspectDDL(name, ddl string) dialectReport {
	rep := dialectReport{Name: name}
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		rep.Statements++
		if m := createTable.FindStringSubmatch(stmt); m != nil {
			rep.Tables = append(rep.Tables, strings.ToLower(m[1]))
		}
	}
	sort.Strings(rep.Tables)
	return rep
}

func graphQLTypes() ([]string, error) {
	schema, err := gqlapi.NewSchema(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}
	var names []string
	for name := range schema.TypeMap() {
		if strings.HasPrefix(name, "__") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func check() (report, error) {
	rep := report{Dialects: []dialectReport{
		inspectDDL("sqlite", sqlbundle.SQLite()),
		inspectDDL("postgres", sqlbundle.Postgres()),
	}}
	types, err := graphQLTypes()
	if err != nil {
		return rep, err
	}
	rep.Types = types

	var result *multierror.Error
	base := rep.Dialects[0]
	for _, d := range rep.Dialects[1:] {
		if missing := difference(base.Tables, d.Tables); len(missing) > 0 {
			result = multierror.Append(result, fmt.Errorf("%s lacks tables %v", d.Name, missing))
		}
		if extra := difference(d.Tables, base.Tables); len(extra) > 0 {
			result = multierror.Append(result, fmt.Errorf("%s lacks tables %v", base.Name, extra))
		}
	}
	for _, kind := range domain.CatalogKinds {
		if !contains(base.Tables, string(kind)) {
			result = multierror.Append(result, fmt.Errorf("catalog %s has no table", kind))
		}
	}
	for typ, table := range entityTables {
		if !contains(types, typ) {
			result = multierror.Append(result, fmt.Errorf("graphql type %s is missing", typ))
		}
		if !contains(base.Tables, table) {
			result = multierror.Append(result, fmt.Errorf("type %s has no table %s", typ, table))
		}
	}
	if result != nil {
		sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Error() < result.Errors[j].Error() })
	}
	return rep, result.ErrorOrNil()
}

func write(w io.Writer, rep report) {
	for _, d := range rep.Dialects {
		fmt.Fprintf(w, "%s: %d statements, %d tables\n", d.Name, d.Statements, len(d.Tables))
	}
	fmt.Fprintf(w, "graphql: %d types\n", len(rep.Types))
	for _, name := range rep.Types {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w, "schema-check: OK")
}

func difference(a, b []string) []string {
	var out []string
	for _, v := range a {
		if !contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	i := sort.SearchStrings(list, v)
	return i < len(list) && list[i] == v
}
