package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ledgerql/pkg/domain"
)

const (
	authorColumns          = "id, name"
	bookColumns            = "id, name, author_id"
	documentTypeColumns    = "id, description, afip_code"
	documentColumns        = "id, issuance_date, settlement_date, type_id, accounting_entry_id, operation_id"
	accountingEntryColumns = "id, name, document_id, created, updated"
	detailColumns          = "id, accounting_entry_id, amount_cents, entry_column, created, updated"
	liquidationColumns     = "id, neto_iva, neto_iibb, state_id, accounting_entry_detail_id, aliquots_iva_id, activity_id, tax_credit_option_id, created, updated"
	taxPaymentColumns      = "id, emitter_cuit, sender_cuit, issuance_date, trigger_amount_cents, amount_cents, certificate, tax_id, document_id, state_id, type_tax_payment_id"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthor(r scanner) (domain.Author, error) {
	var a domain.Author
	err := r.Scan(&a.ID, &a.Name)
	return a, err
}

func scanBook(r scanner) (domain.Book, error) {
	var b domain.Book
	var author sql.NullInt64
	if err := r.Scan(&b.ID, &b.Name, &author); err != nil {
		return b, err
	}
	b.AuthorID = int64Ptr(author)
	return b, nil
}

func scanDocumentType(r scanner) (domain.DocumentType, error) {
	var dt domain.DocumentType
	var code sql.NullString
	if err := r.Scan(&dt.ID, &dt.Description, &code); err != nil {
		return dt, err
	}
	dt.AfipCode = stringPtr(code)
	return dt, nil
}

func scanDocument(r scanner) (domain.Document, error) {
	var d domain.Document
	var typeID, operationID sql.NullInt64
	var entryID sql.NullString
	if err := r.Scan(&d.ID, &d.Issuance, &d.Settlement, &typeID, &entryID, &operationID); err != nil {
		return d, err
	}
	d.Issuance = d.Issuance.UTC()
	d.Settlement = d.Settlement.UTC()
	d.TypeID = int64Ptr(typeID)
	d.AccountingEntryID = stringPtr(entryID)
	d.OperationID = int64Ptr(operationID)
	return d, nil
}

func scanAccountingEntry(r scanner) (domain.AccountingEntry, error) {
	var e domain.AccountingEntry
	var documentID sql.NullString
	var updated sql.NullTime
	if err := r.Scan(&e.ID, &e.Name, &documentID, &e.Created, &updated); err != nil {
		return e, err
	}
	e.Created = e.Created.UTC()
	e.DocumentID = stringPtr(documentID)
	e.Updated = timePtr(updated)
	return e, nil
}

func scanDetail(r scanner) (domain.AccountingEntryDetail, error) {
	var d domain.AccountingEntryDetail
	var cents int64
	var column string
	var updated sql.NullTime
	if err := r.Scan(&d.ID, &d.AccountingEntryID, &cents, &column, &d.Created, &updated); err != nil {
		return d, err
	}
	d.Amount = domain.Amount(cents)
	d.Column = domain.Column(column)
	d.Created = d.Created.UTC()
	d.Updated = timePtr(updated)
	return d, nil
}

func scanLiquidation(r scanner) (domain.LiquidationEntry, error) {
	var l domain.LiquidationEntry
	var detailID sql.NullString
	var creditOption sql.NullInt64
	var updated sql.NullTime
	if err := r.Scan(&l.ID, &l.NetoIVA, &l.NetoIIBB, &l.StateID, &detailID, &l.AliquotIVAID, &l.ActivityID, &creditOption, &l.Created, &updated); err != nil {
		return l, err
	}
	l.AccountingEntryDetailID = stringPtr(detailID)
	l.TaxCreditOptionID = int64Ptr(creditOption)
	l.Created = l.Created.UTC()
	l.Updated = timePtr(updated)
	return l, nil
}

func scanTaxPayment(r scanner) (domain.TaxPayment, error) {
	var p domain.TaxPayment
	var trigger, amount int64
	var documentID sql.NullString
	var stateID sql.NullInt64
	if err := r.Scan(&p.ID, &p.EmitterCUIT, &p.SenderCUIT, &p.Issuance, &trigger, &amount, &p.Certificate, &p.TaxID, &documentID, &stateID, &p.TypeID); err != nil {
		return p, err
	}
	p.Issuance = p.Issuance.UTC()
	p.TriggerAmount = domain.Amount(trigger)
	p.Amount = domain.Amount(amount)
	p.DocumentID = stringPtr(documentID)
	p.StateID = int64Ptr(stateID)
	return p, nil
}

func scanCatalog(kind domain.CatalogKind) func(scanner) (domain.CatalogEntry, error) {
	return func(r scanner) (domain.CatalogEntry, error) {
		entry := domain.CatalogEntry{Kind: kind}
		var code sql.NullString
		var percentage sql.NullFloat64
		if err := r.Scan(&entry.ID, &entry.Description, &code, &percentage); err != nil {
			return entry, err
		}
		entry.AfipCode = stringPtr(code)
		if percentage.Valid {
			formatted := strconv.FormatFloat(percentage.Float64, 'f', 3, 64)
			entry.Percentage = &formatted
		}
		return entry, nil
	}
}

func catalogSelect(kind domain.CatalogKind) string {
	code := "NULL"
	if kind.HasAfipCode() {
		code = "afip_code"
	}
	percentage := "NULL"
	if kind == domain.CatalogAliquotsIVA {
		percentage = "percentage"
	}
	return fmt.Sprintf("SELECT id, description, %s, %s FROM %s", code, percentage, kind)
}

func collect[T any](rows *sql.Rows, op string, scan func(scanner) (T, error)) ([]T, error) {
	defer func() { _ = rows.Close() }()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, &domain.StoreError{Op: op, Err: fmt.Errorf("scan: %w", err)}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: op, Err: err}
	}
	return out, nil
}

func list[T any](t *txn, op, query string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := t.query(op, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, op, scan)
}

func find[T any](t *txn, op string, entity domain.EntityType, id string, query string, scan func(scanner) (T, error), args ...any) (T, error) {
	v, err := scan(t.queryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, domain.ErrNotFound{Entity: entity, ID: id}
	}
	if err != nil {
		var zero T
		return zero, &domain.StoreError{Op: op, Err: err}
	}
	return v, nil
}

// byKeys runs "<base> WHERE <column> IN (...) ORDER BY <order>" once per chunk
// of keys. Each key lands in exactly one chunk, so per-key row order holds.
func byKeys[K any, T any](t *txn, op, base, column, order string, keys []K, scan func(scanner) (T, error)) ([]T, error) {
	out := make([]T, 0)
	for _, chunk := range chunks(keys, MaxInListSize) {
		query := base + " WHERE " + column + " IN " + inList(len(chunk)) + " ORDER BY " + order
		rows, err := list(t, op, query, scan, toArgs(chunk)...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (t *txn) ListAuthors() ([]domain.Author, error) {
	return list(t, "list authors", "SELECT "+authorColumns+" FROM authors ORDER BY name, id", scanAuthor)
}

func (t *txn) ListBooks() ([]domain.Book, error) {
	return list(t, "list books", "SELECT "+bookColumns+" FROM books ORDER BY name, id", scanBook)
}

func (t *txn) ListDocumentTypes() ([]domain.DocumentType, error) {
	return list(t, "list document types", "SELECT "+documentTypeColumns+" FROM document_types ORDER BY description, id", scanDocumentType)
}

func (t *txn) ListDocuments() ([]domain.Document, error) {
	return list(t, "list documents", "SELECT "+documentColumns+" FROM documents ORDER BY issuance_date, id", scanDocument)
}

func (t *txn) ListAccountingEntries() ([]domain.AccountingEntry, error) {
	return list(t, "list accounting entries", "SELECT "+accountingEntryColumns+" FROM accounting_entries ORDER BY name, id", scanAccountingEntry)
}

func (t *txn) ListCatalog(kind domain.CatalogKind) ([]domain.CatalogEntry, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalid{Field: "catalog", Reason: fmt.Sprintf("unknown catalog %q", kind)}
	}
	return list(t, "list "+string(kind), catalogSelect(kind)+" ORDER BY description, id", scanCatalog(kind))
}

func (t *txn) FindAuthor(id int64) (domain.Author, error) {
	return find(t, "find author", domain.EntityAuthor, strconv.FormatInt(id, 10),
		"SELECT "+authorColumns+" FROM authors WHERE id = ?", scanAuthor, id)
}

func (t *txn) FindAuthorByName(name string) (domain.Author, error) {
	return find(t, "find author by name", domain.EntityAuthor, name,
		"SELECT "+authorColumns+" FROM authors WHERE name = ?", scanAuthor, name)
}

func (t *txn) FindBook(id int64) (domain.Book, error) {
	return find(t, "find book", domain.EntityBook, strconv.FormatInt(id, 10),
		"SELECT "+bookColumns+" FROM books WHERE id = ?", scanBook, id)
}

func (t *txn) FindDocumentType(id int64) (domain.DocumentType, error) {
	return find(t, "find document type", domain.EntityDocumentType, strconv.FormatInt(id, 10),
		"SELECT "+documentTypeColumns+" FROM document_types WHERE id = ?", scanDocumentType, id)
}

func (t *txn) FindDocument(id string) (domain.Document, error) {
	return find(t, "find document", domain.EntityDocument, id,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", scanDocument, id)
}

func (t *txn) FindAccountingEntry(id string) (domain.AccountingEntry, error) {
	return find(t, "find accounting entry", domain.EntityAccountingEntry, id,
		"SELECT "+accountingEntryColumns+" FROM accounting_entries WHERE id = ?", scanAccountingEntry, id)
}

func (t *txn) FindAccountingEntryDetail(id string) (domain.AccountingEntryDetail, error) {
	return find(t, "find accounting entry detail", domain.EntityAccountingEntryDetail, id,
		"SELECT "+detailColumns+" FROM accounting_entry_details WHERE id = ?", scanDetail, id)
}

func (t *txn) FindCatalogEntry(kind domain.CatalogKind, id int64) (domain.CatalogEntry, error) {
	if !kind.Valid() {
		return domain.CatalogEntry{}, domain.ErrInvalid{Field: "catalog", Reason: fmt.Sprintf("unknown catalog %q", kind)}
	}
	return find(t, "find "+string(kind), domain.EntityCatalogEntry, fmt.Sprintf("%s/%d", kind, id),
		catalogSelect(kind)+" WHERE id = ?", scanCatalog(kind), id)
}

func (t *txn) AuthorsByIDs(ids []int64) ([]domain.Author, error) {
	return byKeys(t, "authors by id", "SELECT "+authorColumns+" FROM authors", "id", "id", ids, scanAuthor)
}

func (t *txn) BooksByAuthorIDs(authorIDs []int64) ([]domain.Book, error) {
	return byKeys(t, "books by author", "SELECT "+bookColumns+" FROM books", "author_id", "name, id", authorIDs, scanBook)
}

func (t *txn) DocumentTypesByIDs(ids []int64) ([]domain.DocumentType, error) {
	return byKeys(t, "document types by id", "SELECT "+documentTypeColumns+" FROM document_types", "id", "id", ids, scanDocumentType)
}

func (t *txn) DocumentsByIDs(ids []string) ([]domain.Document, error) {
	return byKeys(t, "documents by id", "SELECT "+documentColumns+" FROM documents", "id", "id", ids, scanDocument)
}

func (t *txn) DocumentsByTypeIDs(typeIDs []int64) ([]domain.Document, error) {
	return byKeys(t, "documents by type", "SELECT "+documentColumns+" FROM documents", "type_id", "issuance_date, id", typeIDs, scanDocument)
}

func (t *txn) AccountingEntriesByIDs(ids []string) ([]domain.AccountingEntry, error) {
	return byKeys(t, "accounting entries by id", "SELECT "+accountingEntryColumns+" FROM accounting_entries", "id", "id", ids, scanAccountingEntry)
}

func (t *txn) AccountingEntryDetailsByEntryIDs(entryIDs []string) ([]domain.AccountingEntryDetail, error) {
	return byKeys(t, "details by entry", "SELECT "+detailColumns+" FROM accounting_entry_details", "accounting_entry_id", "created, id", entryIDs, scanDetail)
}

func (t *txn) LiquidationEntriesByDetailIDs(detailIDs []string) ([]domain.LiquidationEntry, error) {
	return byKeys(t, "liquidation entries by detail", "SELECT "+liquidationColumns+" FROM liquidation_entries", "accounting_entry_detail_id", "created, id", detailIDs, scanLiquidation)
}

func (t *txn) TaxPaymentsByDocumentIDs(documentIDs []string) ([]domain.TaxPayment, error) {
	return byKeys(t, "tax payments by document", "SELECT "+taxPaymentColumns+" FROM tax_payments", "document_id", "issuance_date, id", documentIDs, scanTaxPayment)
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	out := v.String
	return &out
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	out := v.Time.UTC()
	return &out
}
