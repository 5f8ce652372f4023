package gqlapi

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"

	"ledgerql/internal/adapters/exports"
	"ledgerql/internal/core"
	"ledgerql/internal/infra/blob/memory"
	"ledgerql/internal/loader"
	"ledgerql/pkg/domain"
)

func TestAuthorsBooksBatchOncePerLevel(t *testing.T) {
	svc := newService(t)
	seedLibrary(t, svc)
	rec := newBatchRecorder()
	h := newHandler(t, svc, nil, WithLoaderOptions(loader.WithObserver(rec)))

	result := h.Execute(context.Background(), Request{Query: `{
		authors { name nameUpper books { name author { name } } }
	}`})
	var data struct {
		Authors []struct {
			Name      string
			NameUpper string
			Books     []struct {
				Name   string
				Author *struct{ Name string }
			}
		}
	}
	requireNoErrors(t, decode(t, result, &data))

	var names []string
	for _, a := range data.Authors {
		names = append(names, a.Name)
		if a.NameUpper == "" {
			t.Fatalf("author %s missing nameUpper", a.Name)
		}
		for _, b := range a.Books {
			if b.Author == nil || b.Author.Name != a.Name {
				t.Fatalf("book %s resolved author %+v, want %s", b.Name, b.Author, a.Name)
			}
		}
	}
	if want := []string{"Borges", "Cortazar", "Ocampo"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("authors = %v, want %v", names, want)
	}
	if data.Authors[0].NameUpper != "BORGES" {
		t.Fatalf("nameUpper = %q", data.Authors[0].NameUpper)
	}
	if got := len(data.Authors[0].Books); got != 2 || data.Authors[0].Books[0].Name != "El Aleph" {
		t.Fatalf("Borges books = %+v", data.Authors[0].Books)
	}
	if data.Authors[2].Books == nil || len(data.Authors[2].Books) != 0 {
		t.Fatalf("Ocampo books = %#v, want empty list", data.Authors[2].Books)
	}

	if got := rec.batchSizes("books_by_author"); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("books_by_author batches = %v, want [3]", got)
	}
	if got := rec.batchSizes("author_by_id"); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("author_by_id batches = %v, want [2]", got)
	}
	if got := rec.cacheHits("author_by_id"); got != 1 {
		t.Fatalf("author_by_id cache hits = %d, want 1", got)
	}
}

func TestLedgerRelationshipsBatch(t *testing.T) {
	svc := newService(t)
	_, docIDs := seedLedger(t, svc)
	rec := newBatchRecorder()
	h := newHandler(t, svc, nil, WithLoaderOptions(loader.WithObserver(rec)))

	result := h.Execute(context.Background(), Request{Query: `{
		accountingEntries {
			id name
			document { id type { description afipCode } }
			details { amount column liquidationEntries { id } }
		}
	}`})
	var data struct {
		AccountingEntries []struct {
			ID       string
			Name     string
			Document *struct {
				ID   string
				Type *struct {
					Description string
					AfipCode    *string
				}
			}
			Details []struct {
				Amount             string
				Column             string
				LiquidationEntries []struct{ ID string }
			}
		}
	}
	requireNoErrors(t, decode(t, result, &data))
	if len(data.AccountingEntries) != 3 {
		t.Fatalf("entries = %d, want 3", len(data.AccountingEntries))
	}
	seen := map[string]bool{}
	for _, e := range data.AccountingEntries[:2] {
		if e.Name != "Factura A" || e.Document == nil {
			t.Fatalf("generated entry = %+v", e)
		}
		if e.Document.Type == nil || e.Document.Type.Description != "Factura A" || e.Document.Type.AfipCode == nil || *e.Document.Type.AfipCode != "001" {
			t.Fatalf("document type = %+v", e.Document.Type)
		}
		if len(e.Details) != 0 {
			t.Fatalf("generated entry details = %+v", e.Details)
		}
		seen[e.Document.ID] = true
	}
	for _, id := range docIDs {
		if !seen[id] {
			t.Fatalf("document %s not reached through its entry", id)
		}
	}
	ventas := data.AccountingEntries[2]
	if ventas.ID != ventasID || ventas.Document != nil || len(ventas.Details) != 2 {
		t.Fatalf("ventas = %+v", ventas)
	}
	columns := map[string]bool{}
	for _, d := range ventas.Details {
		if d.Amount != "100.50" || d.LiquidationEntries == nil {
			t.Fatalf("ventas detail = %+v", d)
		}
		columns[d.Column] = true
	}
	if !columns["D"] || !columns["H"] {
		t.Fatalf("ventas columns = %v", columns)
	}

	if got := rec.batchSizes("document_by_id"); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("document_by_id batches = %v", got)
	}
	if got := rec.batchSizes("document_type_by_id"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("document_type_by_id batches = %v", got)
	}
	if got := rec.batchSizes("details_by_entry"); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("details_by_entry batches = %v", got)
	}
	if got := rec.batchSizes("liquidation_entries_by_detail"); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("liquidation_entries_by_detail batches = %v", got)
	}
}

func TestDocumentTypeDocumentsAndLookups(t *testing.T) {
	svc := newService(t)
	typeID, docIDs := seedLedger(t, svc)
	h := newHandler(t, svc, nil)

	result := h.Execute(context.Background(), Request{
		Query: `query Lookup($type: ID!, $doc: ID!, $entry: ID!) {
			documentType(id: $type) { description documents { id issuance } }
			document(id: $doc) { id settlement type { id } accountingEntry { id } taxPayments { id } }
			accountingEntry(id: $entry) { name details { accountingEntry { name } } }
			missing: document(id: "00000000-0000-0000-0000-000000000000") { id }
		}`,
		Variables: map[string]interface{}{
			"type":  strconv.FormatInt(typeID, 10),
			"doc":   docIDs[1],
			"entry": ventasID,
		},
	})
	var data struct {
		DocumentType struct {
			Description string
			Documents   []struct {
				ID       string
				Issuance time.Time
			}
		}
		Document struct {
			ID              string
			Settlement      time.Time
			Type            struct{ ID string }
			AccountingEntry *struct{ ID string }
			TaxPayments     []struct{ ID string }
		}
		AccountingEntry struct {
			Name    string
			Details []struct {
				AccountingEntry struct{ Name string }
			}
		}
		Missing *struct{ ID string }
	}
	requireNoErrors(t, decode(t, result, &data))

	if len(data.DocumentType.Documents) != 2 || data.DocumentType.Documents[0].ID != docIDs[0] {
		t.Fatalf("documents by type = %+v", data.DocumentType.Documents)
	}
	if !data.DocumentType.Documents[0].Issuance.Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("issuance = %v", data.DocumentType.Documents[0].Issuance)
	}
	if data.Document.ID != docIDs[1] || data.Document.Type.ID != strconv.FormatInt(typeID, 10) {
		t.Fatalf("document = %+v", data.Document)
	}
	if data.Document.AccountingEntry != nil || data.Document.TaxPayments == nil || len(data.Document.TaxPayments) != 0 {
		t.Fatalf("document relations = %+v", data.Document)
	}
	if len(data.AccountingEntry.Details) != 2 || data.AccountingEntry.Details[0].AccountingEntry.Name != "Ventas" {
		t.Fatalf("entry = %+v", data.AccountingEntry)
	}
	if data.Missing != nil {
		t.Fatalf("missing document = %+v", data.Missing)
	}
}

func TestMutationsReturnProblemsAsUnionMembers(t *testing.T) {
	svc := newService(t)
	seedLibrary(t, svc)
	h := newHandler(t, svc, nil)

	result := h.Execute(context.Background(), Request{Query: `mutation {
		dup: addAuthor(name: "Borges") { __typename ... on AuthorExists { message } }
		blank: addAuthor(name: "  ") { __typename ... on AuthorNameMissing { message } }
		orphan: addBook(name: "Sur", authorName: "Nadie") { __typename ... on AuthorNotFound { message } }
		noAuthor: addBook(name: "Sur") { __typename }
		book: addBook(name: "Sur", authorName: "Ocampo") { __typename ... on Book { name author { name } } }
	}`})
	var data map[string]struct {
		Typename string `json:"__typename"`
		Message  string
		Name     string
		Author   *struct{ Name string }
	}
	requireNoErrors(t, decode(t, result, &data))

	cases := map[string]string{
		"dup":      "AuthorExists",
		"blank":    "AuthorNameMissing",
		"orphan":   "AuthorNotFound",
		"noAuthor": "AuthorNameMissing",
		"book":     "Book",
	}
	for alias, want := range cases {
		if got := data[alias].Typename; got != want {
			t.Fatalf("%s: __typename = %q, want %q", alias, got, want)
		}
	}
	if data["dup"].Message != `Author "Borges" already exists` {
		t.Fatalf("dup message = %q", data["dup"].Message)
	}
	if data["orphan"].Message != `Couldn't find an author with the name "Nadie"` {
		t.Fatalf("orphan message = %q", data["orphan"].Message)
	}
	if data["book"].Author == nil || data["book"].Author.Name != "Ocampo" {
		t.Fatalf("book = %+v", data["book"])
	}

	authors, err := svc.Authors(context.Background())
	if err != nil || len(authors) != 3 {
		t.Fatalf("authors after rejected mutations = %v, %v", authors, err)
	}
}

func TestAddAuthorPrimesLoaders(t *testing.T) {
	svc := newService(t)
	rec := newBatchRecorder()
	h := newHandler(t, svc, nil, WithLoaderOptions(loader.WithObserver(rec)))

	result := h.Execute(context.Background(), Request{Query: `mutation {
		addAuthor(name: "Silvina") { ... on Author { id name books { name } } }
	}`})
	var data struct {
		AddAuthor struct {
			ID    string
			Name  string
			Books []struct{ Name string }
		}
	}
	requireNoErrors(t, decode(t, result, &data))
	if data.AddAuthor.Name != "Silvina" || data.AddAuthor.ID == "" || data.AddAuthor.Books == nil {
		t.Fatalf("addAuthor = %+v", data.AddAuthor)
	}
	if got := rec.batchSizes("books_by_author"); len(got) != 0 {
		t.Fatalf("books_by_author batches = %v, want none", got)
	}
}

func TestLedgerMutations(t *testing.T) {
	svc := newService(t)
	if _, err := svc.SeedCatalogs(context.Background()); err != nil {
		t.Fatalf("seed catalogs: %v", err)
	}
	_, docIDs := seedLedger(t, svc)
	h := newHandler(t, svc, nil)
	ctx := context.Background()

	catalogID := func(kind domain.CatalogKind) string {
		entries, err := svc.Catalog(ctx, kind)
		if err != nil || len(entries) == 0 {
			t.Fatalf("catalog %s: %v %v", kind, entries, err)
		}
		return strconv.FormatInt(entries[0].ID, 10)
	}

	details, err := svc.DetailsByEntry(ctx, []string{ventasID})
	if err != nil || len(details[0]) == 0 {
		t.Fatalf("details: %v %v", details, err)
	}

	result := h.Execute(ctx, Request{
		Query: `mutation Ledger($detail: ID!, $state: ID!, $aliquot: ID!, $activity: ID!, $doc: ID!, $tax: ID!, $ptype: ID!) {
			badAmount: addAccountingEntryDetail(accountingEntryId: "` + ventasID + `", amount: "-5", column: "D") { __typename }
			badColumn: addAccountingEntryDetail(accountingEntryId: "` + ventasID + `", amount: 1, column: "X") { __typename }
			detail: addAccountingEntryDetail(accountingEntryId: "` + ventasID + `", amount: 12.5, column: "h") {
				... on AccountingEntryDetail { amount column }
			}
			badEntry: addAccountingEntry(id: "not-a-uuid", name: "x") { __typename }
			liquidation: addLiquidationEntry(accountingEntryDetailId: $detail, stateId: $state, aliquotIvaId: $aliquot, activityId: $activity, netoIva: true) {
				__typename ... on LiquidationEntry { netoIva netoIibb taxCreditOptionId }
			}
			missingCatalog: addLiquidationEntry(accountingEntryDetailId: $detail, stateId: "999", aliquotIvaId: $aliquot, activityId: $activity) {
				__typename ... on CatalogEntryNotFound { message }
			}
			payment: addTaxPayment(documentId: $doc, emitterCuit: "20123456789", senderCuit: "30712345678", issuance: "2024-02-01T00:00:00Z",
				triggerAmount: "1000", amount: "35.25", certificate: "42", taxId: $tax, typeId: $ptype) {
				__typename ... on TaxPayment { emitterCuit amount triggerAmount document { id } }
			}
			aliquot: addCatalogEntry(kind: "aliquots_iva", description: "IVA 5%", percentage: "0.05") {
				__typename ... on CatalogEntry { kind percentage }
			}
			badAfip: addDocumentType(description: "Recibo", afipCode: "12345") { __typename }
		}`,
		Variables: map[string]interface{}{
			"detail":   details[0][0].ID,
			"state":    catalogID(domain.CatalogStates),
			"aliquot":  catalogID(domain.CatalogAliquotsIVA),
			"activity": catalogID(domain.CatalogActivities),
			"doc":      docIDs[0],
			"tax":      catalogID(domain.CatalogTaxes),
			"ptype":    catalogID(domain.CatalogTaxPaymentTypes),
		},
	})
	var data struct {
		BadAmount struct {
			Typename string `json:"__typename"`
		}
		BadColumn struct {
			Typename string `json:"__typename"`
		}
		Detail   struct{ Amount, Column string }
		BadEntry struct {
			Typename string `json:"__typename"`
		}
		Liquidation struct {
			Typename          string `json:"__typename"`
			NetoIva, NetoIibb bool
			TaxCreditOptionID *string `json:"taxCreditOptionId"`
		}
		MissingCatalog struct {
			Typename string `json:"__typename"`
			Message  string
		}
		Payment struct {
			Typename      string `json:"__typename"`
			EmitterCuit   string
			Amount        string
			TriggerAmount string
			Document      struct{ ID string }
		}
		Aliquot struct {
			Typename   string `json:"__typename"`
			Kind       string
			Percentage string
		}
		BadAfip struct {
			Typename string `json:"__typename"`
		}
	}
	requireNoErrors(t, decode(t, result, &data))

	if data.BadAmount.Typename != "InvalidAmount" || data.BadColumn.Typename != "InvalidColumn" {
		t.Fatalf("detail problems = %+v %+v", data.BadAmount, data.BadColumn)
	}
	if data.Detail.Amount != "12.50" || data.Detail.Column != "H" {
		t.Fatalf("detail = %+v", data.Detail)
	}
	if data.BadEntry.Typename != "InvalidIdentifier" {
		t.Fatalf("badEntry = %+v", data.BadEntry)
	}
	if data.Liquidation.Typename != "LiquidationEntry" || !data.Liquidation.NetoIva || data.Liquidation.NetoIibb || data.Liquidation.TaxCreditOptionID != nil {
		t.Fatalf("liquidation = %+v", data.Liquidation)
	}
	if data.MissingCatalog.Typename != "CatalogEntryNotFound" || data.MissingCatalog.Message == "" {
		t.Fatalf("missingCatalog = %+v", data.MissingCatalog)
	}
	if data.Payment.Typename != "TaxPayment" || data.Payment.EmitterCuit != "20123456789" ||
		data.Payment.Amount != "35.25" || data.Payment.TriggerAmount != "1000.00" || data.Payment.Document.ID != docIDs[0] {
		t.Fatalf("payment = %+v", data.Payment)
	}
	if data.Aliquot.Typename != "CatalogEntry" || data.Aliquot.Kind != "aliquots_iva" || data.Aliquot.Percentage != "0.050" {
		t.Fatalf("aliquot = %+v", data.Aliquot)
	}
	if data.BadAfip.Typename != "InvalidAfipCode" {
		t.Fatalf("badAfip = %+v", data.BadAfip)
	}

	follow := h.Execute(ctx, Request{
		Query:     `query($doc: ID!) { document(id: $doc) { taxPayments { senderCuit certificate } } }`,
		Variables: map[string]interface{}{"doc": docIDs[0]},
	})
	var after struct {
		Document struct {
			TaxPayments []struct{ SenderCuit, Certificate string }
		}
	}
	requireNoErrors(t, decode(t, follow, &after))
	if len(after.Document.TaxPayments) != 1 || after.Document.TaxPayments[0].SenderCuit != "30712345678" || after.Document.TaxPayments[0].Certificate != "42" {
		t.Fatalf("tax payments = %+v", after.Document.TaxPayments)
	}
}

func TestCatalogQuery(t *testing.T) {
	svc := newService(t)
	if _, err := svc.SeedCatalogs(context.Background()); err != nil {
		t.Fatalf("seed catalogs: %v", err)
	}
	h := newHandler(t, svc, nil)

	var data struct {
		Catalog []struct {
			Description string
			AfipCode    *string
			Percentage  *string
		}
	}
	requireNoErrors(t, decode(t, h.Execute(context.Background(), Request{
		Query: `{ catalog(kind: "ALIQUOTS_IVA") { description afipCode percentage } }`,
	}), &data))
	if len(data.Catalog) != 4 {
		t.Fatalf("aliquots = %+v", data.Catalog)
	}
	for _, row := range data.Catalog {
		if row.AfipCode != nil || row.Percentage == nil {
			t.Fatalf("aliquot row = %+v", row)
		}
	}

	resp := decode(t, h.Execute(context.Background(), Request{Query: `{ catalog(kind: "planets") { id } }`}), nil)
	if len(resp.Errors) != 1 || resp.Errors[0].code() != CodeInvalidInput {
		t.Fatalf("unknown catalog errors = %+v", resp.Errors)
	}
}

func TestExportLedgerMutation(t *testing.T) {
	svc := newService(t)
	seedLedger(t, svc)
	worker := exports.NewWorker(svc, memory.New(), exports.WithIDGenerator(func() string { return "exp-1" }))
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })
	h := newHandler(t, svc, worker)

	var data struct {
		ExportLedger struct {
			ID      string
			Status  string
			Formats []string
		}
	}
	requireNoErrors(t, decode(t, h.Execute(context.Background(), Request{
		Query: `mutation { exportLedger(formats: ["CSV"]) { id status formats } }`,
	}), &data))
	if data.ExportLedger.ID != "exp-1" || data.ExportLedger.Status != string(exports.StatusQueued) ||
		!reflect.DeepEqual(data.ExportLedger.Formats, []string{"csv"}) {
		t.Fatalf("exportLedger = %+v", data.ExportLedger)
	}

	var lookup struct {
		LedgerExport *struct{ ID, Status string }
		Unknown      *struct{ ID string }
	}
	requireNoErrors(t, decode(t, h.Execute(context.Background(), Request{
		Query: `{ ledgerExport(id: "exp-1") { id status } unknown: ledgerExport(id: "nope") { id } }`,
	}), &lookup))
	if lookup.LedgerExport == nil || lookup.LedgerExport.ID != "exp-1" || lookup.Unknown != nil {
		t.Fatalf("ledgerExport = %+v", lookup)
	}

	resp := decode(t, h.Execute(context.Background(), Request{
		Query: `mutation { exportLedger(formats: ["xml"]) { id } }`,
	}), nil)
	if len(resp.Errors) != 1 || resp.Errors[0].code() != CodeInvalidInput {
		t.Fatalf("unsupported format errors = %+v", resp.Errors)
	}
}

func TestExportLedgerWithoutQueue(t *testing.T) {
	svc := newService(t)
	h := newHandler(t, svc, nil)
	resp := decode(t, h.Execute(context.Background(), Request{Query: `mutation { exportLedger { id } }`}), nil)
	if len(resp.Errors) != 1 || resp.Errors[0].code() != CodeInternal || resp.Errors[0].Message != errExportsDisabled.Error() {
		t.Fatalf("errors = %+v", resp.Errors)
	}
}

type failingBooks struct {
	Batcher
}

func (failingBooks) BooksByAuthor(context.Context, []int64) ([][]domain.Book, error) {
	return nil, &domain.StoreError{Op: "books by author", Err: errors.New("connection reset")}
}

func TestBatchFailureReportsCode(t *testing.T) {
	svc := newService(t)
	seedLibrary(t, svc)
	h := newHandler(t, svc, nil)
	h.batcher = failingBooks{Batcher: svc}

	resp := decode(t, h.Execute(context.Background(), Request{Query: `{ authors { name books { name } } }`}), nil)
	if len(resp.Errors) == 0 {
		t.Fatal("expected errors")
	}
	for _, e := range resp.Errors {
		if e.code() != CodeBatchFetchFailed {
			t.Fatalf("code = %q (%+v)", e.code(), e)
		}
		if e.Message != "loading books_by_author failed" {
			t.Fatalf("message = %q", e.Message)
		}
	}
}

func TestInvalidArgumentsAndDeadlines(t *testing.T) {
	svc := newService(t)
	seedLibrary(t, svc)
	h := newHandler(t, svc, nil)

	resp := decode(t, h.Execute(context.Background(), Request{Query: `{ author(id: "abc") { name } }`}), nil)
	if len(resp.Errors) != 1 || resp.Errors[0].code() != CodeInvalidInput {
		t.Fatalf("bad id errors = %+v", resp.Errors)
	}

	resp = decode(t, h.Execute(context.Background(), Request{
		Query: `mutation { addBook(name: " ", authorName: "Borges") { __typename } }`,
	}), nil)
	if len(resp.Errors) != 1 || resp.Errors[0].code() != CodeInvalidInput {
		t.Fatalf("blank book errors = %+v", resp.Errors)
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	resp = decode(t, h.Execute(ctx, Request{Query: `{ authors { name } }`}), nil)
	if len(resp.Errors) == 0 || resp.Errors[0].code() != CodeDeadlineExceeded {
		t.Fatalf("deadline errors = %+v", resp.Errors)
	}
}

func TestSchemaRejectsUnknownFields(t *testing.T) {
	svc := newService(t)
	h := newHandler(t, svc, nil)
	resp := decode(t, h.Execute(context.Background(), Request{Query: `{ authors { salary } }`}), nil)
	if len(resp.Errors) != 1 || resp.Errors[0].code() != "" {
		t.Fatalf("validation errors = %+v", resp.Errors)
	}
}

var _ ExportQueue = (*exports.Worker)(nil)
var _ Batcher = (*core.Service)(nil)
