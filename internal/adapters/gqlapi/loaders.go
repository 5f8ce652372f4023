package gqlapi

import (
	"context"

	"ledgerql/internal/loader"
	"ledgerql/pkg/domain"
)

// Batcher is the batch read surface the loaders fetch through. *core.Service
// implements it.
type Batcher interface {
	AuthorsByID(ctx context.Context, ids []int64) ([]*domain.Author, error)
	BooksByAuthor(ctx context.Context, authorIDs []int64) ([][]domain.Book, error)
	DocumentTypesByID(ctx context.Context, ids []int64) ([]*domain.DocumentType, error)
	DocumentsByID(ctx context.Context, ids []string) ([]*domain.Document, error)
	DocumentsByType(ctx context.Context, typeIDs []int64) ([][]domain.Document, error)
	AccountingEntriesByID(ctx context.Context, ids []string) ([]*domain.AccountingEntry, error)
	DetailsByEntry(ctx context.Context, entryIDs []string) ([][]domain.AccountingEntryDetail, error)
	LiquidationEntriesByDetail(ctx context.Context, detailIDs []string) ([][]domain.LiquidationEntry, error)
	TaxPaymentsByDocument(ctx context.Context, documentIDs []string) ([][]domain.TaxPayment, error)
}

// Loaders holds the relationship loaders of one request. Each request gets
// a fresh set so cached rows never leak between callers.
type Loaders struct {
	AuthorByID                 *loader.Loader[int64, *domain.Author]
	BooksByAuthor              *loader.Loader[int64, []domain.Book]
	DocumentTypeByID           *loader.Loader[int64, *domain.DocumentType]
	DocumentByID               *loader.Loader[string, *domain.Document]
	DocumentsByType            *loader.Loader[int64, []domain.Document]
	AccountingEntryByID        *loader.Loader[string, *domain.AccountingEntry]
	DetailsByEntry             *loader.Loader[string, []domain.AccountingEntryDetail]
	LiquidationEntriesByDetail *loader.Loader[string, []domain.LiquidationEntry]
	TaxPaymentsByDocument      *loader.Loader[string, []domain.TaxPayment]
}

// NewLoaders builds the loader set for a request bound to ctx.
func NewLoaders(ctx context.Context, b Batcher, opts ...loader.Option) *Loaders {
	named := func(name string) []loader.Option {
		out := make([]loader.Option, 0, len(opts)+1)
		out = append(out, opts...)
		return append(out, loader.WithName(name))
	}
	return &Loaders{
		AuthorByID:                 loader.New(ctx, b.AuthorsByID, named("author_by_id")...),
		BooksByAuthor:              loader.New(ctx, b.BooksByAuthor, named("books_by_author")...),
		DocumentTypeByID:           loader.New(ctx, b.DocumentTypesByID, named("document_type_by_id")...),
		DocumentByID:               loader.New(ctx, b.DocumentsByID, named("document_by_id")...),
		DocumentsByType:            loader.New(ctx, b.DocumentsByType, named("documents_by_type")...),
		AccountingEntryByID:        loader.New(ctx, b.AccountingEntriesByID, named("accounting_entry_by_id")...),
		DetailsByEntry:             loader.New(ctx, b.DetailsByEntry, named("details_by_entry")...),
		LiquidationEntriesByDetail: loader.New(ctx, b.LiquidationEntriesByDetail, named("liquidation_entries_by_detail")...),
		TaxPaymentsByDocument:      loader.New(ctx, b.TaxPaymentsByDocument, named("tax_payments_by_document")...),
	}
}

// Stats reports the counters of every loader keyed by loader name.
func (l *Loaders) Stats() map[string]loader.Stats {
	return map[string]loader.Stats{
		l.AuthorByID.Name():                 l.AuthorByID.Stats(),
		l.BooksByAuthor.Name():              l.BooksByAuthor.Stats(),
		l.DocumentTypeByID.Name():           l.DocumentTypeByID.Stats(),
		l.DocumentByID.Name():               l.DocumentByID.Stats(),
		l.DocumentsByType.Name():            l.DocumentsByType.Stats(),
		l.AccountingEntryByID.Name():        l.AccountingEntryByID.Stats(),
		l.DetailsByEntry.Name():             l.DetailsByEntry.Stats(),
		l.LiquidationEntriesByDetail.Name(): l.LiquidationEntriesByDetail.Stats(),
		l.TaxPaymentsByDocument.Name():      l.TaxPaymentsByDocument.Stats(),
	}
}

type loadersKey struct{}

// WithLoaders attaches l to ctx.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey{}, l)
}

// LoadersFrom returns the loaders attached to ctx, or nil.
func LoadersFrom(ctx context.Context) *Loaders {
	l, _ := ctx.Value(loadersKey{}).(*Loaders)
	return l
}
