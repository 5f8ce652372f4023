package domain

import (
	"context"
	"time"
)

// TransactionView provides read access within a session. Batch lookups take
// an arbitrary key list and return every matching row in store order; they
// never fail because a key is missing.
type TransactionView interface {
	ListAuthors() ([]Author, error)
	ListBooks() ([]Book, error)
	ListDocumentTypes() ([]DocumentType, error)
	ListDocuments() ([]Document, error)
	ListAccountingEntries() ([]AccountingEntry, error)
	ListCatalog(kind CatalogKind) ([]CatalogEntry, error)

	FindAuthor(id int64) (Author, error)
	FindAuthorByName(name string) (Author, error)
	FindBook(id int64) (Book, error)
	FindDocumentType(id int64) (DocumentType, error)
	FindDocument(id string) (Document, error)
	FindAccountingEntry(id string) (AccountingEntry, error)
	FindAccountingEntryDetail(id string) (AccountingEntryDetail, error)
	FindCatalogEntry(kind CatalogKind, id int64) (CatalogEntry, error)

	AuthorsByIDs(ids []int64) ([]Author, error)
	BooksByAuthorIDs(authorIDs []int64) ([]Book, error)
	DocumentTypesByIDs(ids []int64) ([]DocumentType, error)
	DocumentsByIDs(ids []string) ([]Document, error)
	DocumentsByTypeIDs(typeIDs []int64) ([]Document, error)
	AccountingEntriesByIDs(ids []string) ([]AccountingEntry, error)
	AccountingEntryDetailsByEntryIDs(entryIDs []string) ([]AccountingEntryDetail, error)
	LiquidationEntriesByDetailIDs(detailIDs []string) ([]LiquidationEntry, error)
	TaxPaymentsByDocumentIDs(documentIDs []string) ([]TaxPayment, error)
}

// Transaction extends TransactionView with writes applied atomically on commit.
// Create methods return the stored row including generated identifiers.
type Transaction interface {
	TransactionView
	CreateAuthor(Author) (Author, error)
	CreateBook(Book) (Book, error)
	CreateDocumentType(DocumentType) (DocumentType, error)
	CreateDocument(Document) (Document, error)
	CreateAccountingEntry(AccountingEntry) (AccountingEntry, error)
	// LinkAccountingEntryDocument points an existing entry at a document and
	// stamps its updated time.
	LinkAccountingEntryDocument(entryID, documentID string, at time.Time) error
	CreateAccountingEntryDetail(AccountingEntryDetail) (AccountingEntryDetail, error)
	CreateLiquidationEntry(LiquidationEntry) (LiquidationEntry, error)
	CreateTaxPayment(TaxPayment) (TaxPayment, error)
	CreateCatalogEntry(CatalogEntry) (CatalogEntry, error)
}

// PersistentStore is a durable backend. Each call opens one session that is
// committed (RunInTransaction only) when fn returns nil, rolled back
// otherwise, and released on every exit path.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Ping(ctx context.Context) error
	Close() error
}
