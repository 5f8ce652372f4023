package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ledgerql/pkg/domain"
)

// classify maps constraint violations onto domain errors; everything else is
// reported as a store failure.
func (t *txn) classify(op string, err error, conflict domain.ErrConflict) error {
	switch {
	case t.dialect.UniqueViolation(err):
		return conflict
	case t.dialect.ForeignKeyViolation(err):
		return domain.ErrInvalid{Field: "reference", Reason: err.Error()}
	default:
		return &domain.StoreError{Op: op, Err: err}
	}
}

func (t *txn) insertReturningID(op string, conflict domain.ErrConflict, query string, args ...any) (int64, error) {
	var id int64
	if err := t.queryRow(query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, t.classify(op, err, conflict)
	}
	return id, nil
}

func (t *txn) insert(op string, conflict domain.ErrConflict, query string, args ...any) error {
	if _, err := t.tx.ExecContext(t.ctx, t.rebind(query), args...); err != nil {
		return t.classify(op, err, conflict)
	}
	return nil
}

func utc(ts time.Time) time.Time { return ts.UTC() }

func utcPtr(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return ts.UTC()
}

func (t *txn) CreateAuthor(a domain.Author) (domain.Author, error) {
	id, err := t.insertReturningID("create author",
		domain.ErrConflict{Entity: domain.EntityAuthor, Field: "name", Value: a.Name},
		"INSERT INTO authors (name) VALUES (?)", a.Name)
	if err != nil {
		return domain.Author{}, err
	}
	a.ID = id
	return a, nil
}

func (t *txn) CreateBook(b domain.Book) (domain.Book, error) {
	id, err := t.insertReturningID("create book",
		domain.ErrConflict{Entity: domain.EntityBook, Field: "name", Value: b.Name},
		"INSERT INTO books (name, author_id) VALUES (?, ?)", b.Name, b.AuthorID)
	if err != nil {
		return domain.Book{}, err
	}
	b.ID = id
	return b, nil
}

func (t *txn) CreateDocumentType(dt domain.DocumentType) (domain.DocumentType, error) {
	id, err := t.insertReturningID("create document type",
		domain.ErrConflict{Entity: domain.EntityDocumentType, Field: "description", Value: dt.Description},
		"INSERT INTO document_types (description, afip_code) VALUES (?, ?)", dt.Description, dt.AfipCode)
	if err != nil {
		return domain.DocumentType{}, err
	}
	dt.ID = id
	return dt, nil
}

func (t *txn) CreateDocument(d domain.Document) (domain.Document, error) {
	d.Issuance, d.Settlement = utc(d.Issuance), utc(d.Settlement)
	err := t.insert("create document",
		domain.ErrConflict{Entity: domain.EntityDocument, Field: "id", Value: d.ID},
		"INSERT INTO documents ("+documentColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		d.ID, d.Issuance, d.Settlement, d.TypeID, d.AccountingEntryID, d.OperationID)
	if err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

func (t *txn) CreateAccountingEntry(e domain.AccountingEntry) (domain.AccountingEntry, error) {
	e.Created = utc(e.Created)
	err := t.insert("create accounting entry",
		domain.ErrConflict{Entity: domain.EntityAccountingEntry, Field: "id", Value: e.ID},
		"INSERT INTO accounting_entries ("+accountingEntryColumns+") VALUES (?, ?, ?, ?, ?)",
		e.ID, e.Name, e.DocumentID, e.Created, utcPtr(e.Updated))
	if err != nil {
		return domain.AccountingEntry{}, err
	}
	return e, nil
}

func (t *txn) LinkAccountingEntryDocument(entryID, documentID string, at time.Time) error {
	res, err := t.tx.ExecContext(t.ctx, t.rebind("UPDATE accounting_entries SET document_id = ?, updated = ? WHERE id = ?"),
		documentID, utc(at), entryID)
	if err != nil {
		return t.classify("link accounting entry", err, domain.ErrConflict{Entity: domain.EntityAccountingEntry, Field: "document_id", Value: documentID})
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StoreError{Op: "link accounting entry", Err: err}
	}
	if n == 0 {
		return domain.ErrNotFound{Entity: domain.EntityAccountingEntry, ID: entryID}
	}
	return nil
}

func (t *txn) CreateAccountingEntryDetail(d domain.AccountingEntryDetail) (domain.AccountingEntryDetail, error) {
	d.Created = utc(d.Created)
	err := t.insert("create accounting entry detail",
		domain.ErrConflict{Entity: domain.EntityAccountingEntryDetail, Field: "id", Value: d.ID},
		"INSERT INTO accounting_entry_details ("+detailColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		d.ID, d.AccountingEntryID, d.Amount.Cents(), string(d.Column), d.Created, utcPtr(d.Updated))
	if err != nil {
		return domain.AccountingEntryDetail{}, err
	}
	return d, nil
}

func (t *txn) CreateLiquidationEntry(l domain.LiquidationEntry) (domain.LiquidationEntry, error) {
	l.Created = utc(l.Created)
	err := t.insert("create liquidation entry",
		domain.ErrConflict{Entity: domain.EntityLiquidationEntry, Field: "id", Value: l.ID},
		"INSERT INTO liquidation_entries ("+liquidationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		l.ID, l.NetoIVA, l.NetoIIBB, l.StateID, l.AccountingEntryDetailID, l.AliquotIVAID, l.ActivityID, l.TaxCreditOptionID, l.Created, utcPtr(l.Updated))
	if err != nil {
		return domain.LiquidationEntry{}, err
	}
	return l, nil
}

func (t *txn) CreateTaxPayment(p domain.TaxPayment) (domain.TaxPayment, error) {
	p.Issuance = utc(p.Issuance)
	err := t.insert("create tax payment",
		domain.ErrConflict{Entity: domain.EntityTaxPayment, Field: "id", Value: p.ID},
		"INSERT INTO tax_payments ("+taxPaymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.EmitterCUIT, p.SenderCUIT, p.Issuance, p.TriggerAmount.Cents(), p.Amount.Cents(), p.Certificate, p.TaxID, p.DocumentID, p.StateID, p.TypeID)
	if err != nil {
		return domain.TaxPayment{}, err
	}
	return p, nil
}

func (t *txn) CreateCatalogEntry(c domain.CatalogEntry) (domain.CatalogEntry, error) {
	if !c.Kind.Valid() {
		return domain.CatalogEntry{}, domain.ErrInvalid{Field: "catalog", Reason: fmt.Sprintf("unknown catalog %q", c.Kind)}
	}
	columns := []string{"description"}
	args := []any{c.Description}
	if c.Kind.HasAfipCode() {
		columns = append(columns, "afip_code")
		args = append(args, c.AfipCode)
	}
	if c.Kind == domain.CatalogAliquotsIVA {
		if c.Percentage == nil {
			return domain.CatalogEntry{}, domain.ErrInvalid{Field: "percentage", Reason: "required for IVA aliquots"}
		}
		pct, err := strconv.ParseFloat(*c.Percentage, 64)
		if err != nil || pct < 0 || pct >= 10 {
			return domain.CatalogEntry{}, domain.ErrInvalid{Field: "percentage", Reason: fmt.Sprintf("%q is not a NUMERIC(4,3) value", *c.Percentage)}
		}
		columns = append(columns, "percentage")
		args = append(args, pct)
		formatted := strconv.FormatFloat(pct, 'f', 3, 64)
		c.Percentage = &formatted
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", c.Kind, strings.Join(columns, ", "), inList(len(columns)))
	id, err := t.insertReturningID("create "+string(c.Kind),
		domain.ErrConflict{Entity: domain.EntityCatalogEntry, Field: "description", Value: c.Description},
		query, args...)
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	c.ID = id
	if !c.Kind.HasAfipCode() {
		c.AfipCode = nil
	}
	return c, nil
}
