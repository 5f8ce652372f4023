package core

import (
	"context"

	"ledgerql/pkg/domain"
)

func listAll[T any](ctx context.Context, s *Service, op string, fn func(domain.TransactionView) ([]T, error)) ([]T, error) {
	var out []T
	err := s.view(ctx, op, func(v domain.TransactionView) error {
		var err error
		out, err = fn(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// findOne returns nil, nil when the row does not exist.
func findOne[T any](ctx context.Context, s *Service, op string, fn func(domain.TransactionView) (T, error)) (*T, error) {
	var (
		out   T
		found bool
	)
	err := s.view(ctx, op, func(v domain.TransactionView) error {
		var err error
		out, err = fn(v)
		if domain.IsNotFound(err) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// Authors lists every author ordered by name.
func (s *Service) Authors(ctx context.Context) ([]domain.Author, error) {
	return listAll(ctx, s, "list_authors", domain.TransactionView.ListAuthors)
}

// Books lists every book ordered by name.
func (s *Service) Books(ctx context.Context) ([]domain.Book, error) {
	return listAll(ctx, s, "list_books", domain.TransactionView.ListBooks)
}

// DocumentTypes lists document types ordered by description.
func (s *Service) DocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	return listAll(ctx, s, "list_document_types", domain.TransactionView.ListDocumentTypes)
}

// Documents lists documents ordered by issuance date.
func (s *Service) Documents(ctx context.Context) ([]domain.Document, error) {
	return listAll(ctx, s, "list_documents", domain.TransactionView.ListDocuments)
}

// AccountingEntries lists accounting entries ordered by name.
func (s *Service) AccountingEntries(ctx context.Context) ([]domain.AccountingEntry, error) {
	return listAll(ctx, s, "list_accounting_entries", domain.TransactionView.ListAccountingEntries)
}

// Catalog lists the rows of a reference catalog ordered by description.
func (s *Service) Catalog(ctx context.Context, kind domain.CatalogKind) ([]domain.CatalogEntry, error) {
	return listAll(ctx, s, "list_catalog", func(v domain.TransactionView) ([]domain.CatalogEntry, error) {
		return v.ListCatalog(kind)
	})
}

func (s *Service) Author(ctx context.Context, id int64) (*domain.Author, error) {
	return findOne(ctx, s, "get_author", func(v domain.TransactionView) (domain.Author, error) { return v.FindAuthor(id) })
}

func (s *Service) Book(ctx context.Context, id int64) (*domain.Book, error) {
	return findOne(ctx, s, "get_book", func(v domain.TransactionView) (domain.Book, error) { return v.FindBook(id) })
}

func (s *Service) DocumentType(ctx context.Context, id int64) (*domain.DocumentType, error) {
	return findOne(ctx, s, "get_document_type", func(v domain.TransactionView) (domain.DocumentType, error) {
		return v.FindDocumentType(id)
	})
}

func (s *Service) Document(ctx context.Context, id string) (*domain.Document, error) {
	return findOne(ctx, s, "get_document", func(v domain.TransactionView) (domain.Document, error) { return v.FindDocument(id) })
}

func (s *Service) AccountingEntry(ctx context.Context, id string) (*domain.AccountingEntry, error) {
	return findOne(ctx, s, "get_accounting_entry", func(v domain.TransactionView) (domain.AccountingEntry, error) {
		return v.FindAccountingEntry(id)
	})
}

// LedgerEntry is an accounting entry together with its journal lines.
type LedgerEntry struct {
	Entry   domain.AccountingEntry
	Details []domain.AccountingEntryDetail
}

// Ledger reads every accounting entry with its details in a single session.
func (s *Service) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	var out []LedgerEntry
	err := s.view(ctx, "read_ledger", func(v domain.TransactionView) error {
		entries, err := v.ListAccountingEntries()
		if err != nil {
			return err
		}
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		details, err := v.AccountingEntryDetailsByEntryIDs(ids)
		if err != nil {
			return err
		}
		grouped := groupDetails(ids, details)
		out = make([]LedgerEntry, len(entries))
		for i, e := range entries {
			out[i] = LedgerEntry{Entry: e, Details: grouped[i]}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
