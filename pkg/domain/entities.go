// Package domain defines the persistent ledger entities, value types and the
// persistence contracts implemented by the storage backends.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the kind of record stored in the ledger.
type EntityType string

// Supported entity type identifiers used in errors and logs.
const (
	EntityAuthor                EntityType = "author"
	EntityBook                  EntityType = "book"
	EntityDocumentType          EntityType = "document_type"
	EntityDocument              EntityType = "document"
	EntityAccountingEntry       EntityType = "accounting_entry"
	EntityAccountingEntryDetail EntityType = "accounting_entry_detail"
	EntityLiquidationEntry      EntityType = "liquidation_entry"
	EntityTaxPayment            EntityType = "tax_payment"
	EntityCatalogEntry          EntityType = "catalog_entry"
)

// Author is a demo library author. Names are unique.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NameUpper returns the author's name in upper case.
func (a Author) NameUpper() string {
	return strings.ToUpper(a.Name)
}

// Book is a demo library book optionally linked to an author.
type Book struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	AuthorID *int64 `json:"author_id,omitempty"`
}

// DocumentType classifies documents (invoice, credit note, ...).
type DocumentType struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	AfipCode    *string `json:"afip_code,omitempty"`
}

// MaxAfipCodeLength bounds tax authority codes on document types and states.
const MaxAfipCodeLength = 3

// Document is a billing document. Identifiers are UUID strings.
type Document struct {
	ID                string    `json:"id"`
	Issuance          time.Time `json:"issuance_date"`
	Settlement        time.Time `json:"settlement_date"`
	TypeID            *int64    `json:"type_id,omitempty"`
	AccountingEntryID *string   `json:"accounting_entry_id,omitempty"`
	OperationID       *int64    `json:"operation_id,omitempty"`
}

// AccountingEntry groups the debit and credit lines of one journal entry.
type AccountingEntry struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	DocumentID *string    `json:"document_id,omitempty"`
	Created    time.Time  `json:"created"`
	Updated    *time.Time `json:"updated,omitempty"`
}

// Column is the side of a journal line: debit (D) or credit (H, "haber").
type Column string

const (
	ColumnDebit  Column = "D"
	ColumnCredit Column = "H"
)

// Valid reports whether c is one of the two journal sides.
func (c Column) Valid() bool {
	return c == ColumnDebit || c == ColumnCredit
}

// AccountingEntryDetail is a single journal line.
type AccountingEntryDetail struct {
	ID                string     `json:"id"`
	AccountingEntryID string     `json:"accounting_entry_id"`
	Amount            Amount     `json:"amount"`
	Column            Column     `json:"column"`
	Created           time.Time  `json:"created"`
	Updated           *time.Time `json:"updated,omitempty"`
}

// LiquidationEntry records how a journal line participates in tax liquidation.
type LiquidationEntry struct {
	ID                      string     `json:"id"`
	NetoIVA                 bool       `json:"neto_iva"`
	NetoIIBB                bool       `json:"neto_iibb"`
	StateID                 int64      `json:"state_id"`
	AccountingEntryDetailID *string    `json:"accounting_entry_detail_id,omitempty"`
	AliquotIVAID            int64      `json:"aliquots_iva_id"`
	ActivityID              int64      `json:"activity_id"`
	TaxCreditOptionID       *int64     `json:"tax_credit_option_id,omitempty"`
	Created                 time.Time  `json:"created"`
	Updated                 *time.Time `json:"updated,omitempty"`
}

// TaxPayment is a withholding or perception certificate attached to a document.
type TaxPayment struct {
	ID            string    `json:"id"`
	EmitterCUIT   int64     `json:"emitter_cuit"`
	SenderCUIT    int64     `json:"sender_cuit"`
	Issuance      time.Time `json:"issuance_date"`
	TriggerAmount Amount    `json:"trigger_amount"`
	Amount        Amount    `json:"amount"`
	Certificate   int64     `json:"certificate"`
	TaxID         int64     `json:"tax_id"`
	DocumentID    *string   `json:"document_id,omitempty"`
	StateID       *int64    `json:"state_id,omitempty"`
	TypeID        int64     `json:"type_tax_payment_id"`
}

// CatalogKind names one of the reference tables backing liquidation and tax records.
type CatalogKind string

// Reference catalogs. The values double as table names.
const (
	CatalogStates           CatalogKind = "states"
	CatalogAliquotsIVA      CatalogKind = "aliquots_iva"
	CatalogActivities       CatalogKind = "activities"
	CatalogTaxCreditOptions CatalogKind = "tax_credit_options"
	CatalogTaxes            CatalogKind = "taxes"
	CatalogTaxPaymentTypes  CatalogKind = "tax_payment_types"
)

// CatalogKinds lists every reference catalog.
var CatalogKinds = []CatalogKind{
	CatalogStates,
	CatalogAliquotsIVA,
	CatalogActivities,
	CatalogTaxCreditOptions,
	CatalogTaxes,
	CatalogTaxPaymentTypes,
}

// Valid reports whether k names a known catalog.
func (k CatalogKind) Valid() bool {
	for _, known := range CatalogKinds {
		if k == known {
			return true
		}
	}
	return false
}

// HasAfipCode reports whether rows of the catalog carry a tax authority code.
func (k CatalogKind) HasAfipCode() bool {
	switch k {
	case CatalogStates, CatalogActivities, CatalogTaxes:
		return true
	default:
		return false
	}
}

// CatalogEntry is a row of a reference catalog. Percentage is only set for
// IVA aliquots and is rendered with three decimals ("0.210").
type CatalogEntry struct {
	ID          int64       `json:"id"`
	Kind        CatalogKind `json:"kind"`
	Description string      `json:"description"`
	AfipCode    *string     `json:"afip_code,omitempty"`
	Percentage  *string     `json:"percentage,omitempty"`
}
