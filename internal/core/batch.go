package core

import (
	"context"

	"ledgerql/internal/loader"
	"ledgerql/pkg/domain"
)

// The methods below have the loader.BatchFunc shape: one result per key, in
// key order. Each call is a single read session.

func fetchRows[K any, T any](ctx context.Context, s *Service, op string, keys []K, fn func(domain.TransactionView, []K) ([]T, error)) ([]T, error) {
	var rows []T
	err := s.view(ctx, op, func(v domain.TransactionView) error {
		var err error
		rows, err = fn(v, keys)
		return err
	})
	return rows, err
}

// AuthorsByID resolves authors for Book.author.
func (s *Service) AuthorsByID(ctx context.Context, ids []int64) ([]*domain.Author, error) {
	rows, err := fetchRows(ctx, s, "authors_by_id", ids, domain.TransactionView.AuthorsByIDs)
	if err != nil {
		return nil, err
	}
	return loader.IndexByKey(ids, rows, func(a domain.Author) int64 { return a.ID }), nil
}

// BooksByAuthor resolves Author.books.
func (s *Service) BooksByAuthor(ctx context.Context, authorIDs []int64) ([][]domain.Book, error) {
	rows, err := fetchRows(ctx, s, "books_by_author", authorIDs, domain.TransactionView.BooksByAuthorIDs)
	if err != nil {
		return nil, err
	}
	return loader.GroupByKey(authorIDs, rows, func(b domain.Book) (int64, bool) { return deref(b.AuthorID) }), nil
}

func (s *Service) DocumentTypesByID(ctx context.Context, ids []int64) ([]*domain.DocumentType, error) {
	rows, err := fetchRows(ctx, s, "document_types_by_id", ids, domain.TransactionView.DocumentTypesByIDs)
	if err != nil {
		return nil, err
	}
	return loader.IndexByKey(ids, rows, func(dt domain.DocumentType) int64 { return dt.ID }), nil
}

func (s *Service) DocumentsByID(ctx context.Context, ids []string) ([]*domain.Document, error) {
	rows, err := fetchRows(ctx, s, "documents_by_id", ids, domain.TransactionView.DocumentsByIDs)
	if err != nil {
		return nil, err
	}
	return loader.IndexByKey(ids, rows, func(d domain.Document) string { return d.ID }), nil
}

func (s *Service) DocumentsByType(ctx context.Context, typeIDs []int64) ([][]domain.Document, error) {
	rows, err := fetchRows(ctx, s, "documents_by_type", typeIDs, domain.TransactionView.DocumentsByTypeIDs)
	if err != nil {
		return nil, err
	}
	return loader.GroupByKey(typeIDs, rows, func(d domain.Document) (int64, bool) { return deref(d.TypeID) }), nil
}

func (s *Service) AccountingEntriesByID(ctx context.Context, ids []string) ([]*domain.AccountingEntry, error) {
	rows, err := fetchRows(ctx, s, "accounting_entries_by_id", ids, domain.TransactionView.AccountingEntriesByIDs)
	if err != nil {
		return nil, err
	}
	return loader.IndexByKey(ids, rows, func(e domain.AccountingEntry) string { return e.ID }), nil
}

func (s *Service) DetailsByEntry(ctx context.Context, entryIDs []string) ([][]domain.AccountingEntryDetail, error) {
	rows, err := fetchRows(ctx, s, "details_by_entry", entryIDs, domain.TransactionView.AccountingEntryDetailsByEntryIDs)
	if err != nil {
		return nil, err
	}
	return groupDetails(entryIDs, rows), nil
}

func (s *Service) LiquidationEntriesByDetail(ctx context.Context, detailIDs []string) ([][]domain.LiquidationEntry, error) {
	rows, err := fetchRows(ctx, s, "liquidation_entries_by_detail", detailIDs, domain.TransactionView.LiquidationEntriesByDetailIDs)
	if err != nil {
		return nil, err
	}
	return loader.GroupByKey(detailIDs, rows, func(l domain.LiquidationEntry) (string, bool) {
		return deref(l.AccountingEntryDetailID)
	}), nil
}

func (s *Service) TaxPaymentsByDocument(ctx context.Context, documentIDs []string) ([][]domain.TaxPayment, error) {
	rows, err := fetchRows(ctx, s, "tax_payments_by_document", documentIDs, domain.TransactionView.TaxPaymentsByDocumentIDs)
	if err != nil {
		return nil, err
	}
	return loader.GroupByKey(documentIDs, rows, func(p domain.TaxPayment) (string, bool) { return deref(p.DocumentID) }), nil
}

func groupDetails(entryIDs []string, rows []domain.AccountingEntryDetail) [][]domain.AccountingEntryDetail {
	return loader.GroupByKey(entryIDs, rows, func(d domain.AccountingEntryDetail) (string, bool) {
		return d.AccountingEntryID, true
	})
}

func deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
