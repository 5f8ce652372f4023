package core

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"ledgerql/pkg/domain"

	"github.com/google/uuid"
)

func authorKey(a domain.Author) string                { return strconv.FormatInt(a.ID, 10) }
func bookKey(b domain.Book) string                    { return strconv.FormatInt(b.ID, 10) }
func documentTypeKey(dt domain.DocumentType) string   { return strconv.FormatInt(dt.ID, 10) }
func documentKey(d domain.Document) string            { return d.ID }
func entryKey(e domain.AccountingEntry) string        { return e.ID }
func detailKey(d domain.AccountingEntryDetail) string { return d.ID }
func liquidationKey(l domain.LiquidationEntry) string { return l.ID }
func taxPaymentKey(p domain.TaxPayment) string        { return p.ID }
func catalogKey(c domain.CatalogEntry) string {
	return string(c.Kind) + "/" + strconv.FormatInt(c.ID, 10)
}

// AddAuthor creates an author with a unique, non-blank name.
func (s *Service) AddAuthor(ctx context.Context, name string) (Outcome[domain.Author], error) {
	name = strings.TrimSpace(name)
	return mutate(ctx, s, "add_author", func(tx domain.Transaction) (domain.Author, Problem, error) {
		if name == "" {
			return domain.Author{}, AuthorNameMissing{}, nil
		}
		if _, err := tx.FindAuthorByName(name); err == nil {
			return domain.Author{}, AuthorExists{Name: name}, nil
		} else if !domain.IsNotFound(err) {
			return domain.Author{}, nil, err
		}
		created, err := tx.CreateAuthor(domain.Author{Name: name})
		if domain.IsConflict(err) {
			return domain.Author{}, AuthorExists{Name: name}, nil
		}
		return created, nil, err
	}, authorKey)
}

// AddBook creates a book owned by the author with the given name.
func (s *Service) AddBook(ctx context.Context, name string, authorName *string) (Outcome[domain.Book], error) {
	name = strings.TrimSpace(name)
	return mutate(ctx, s, "add_book", func(tx domain.Transaction) (domain.Book, Problem, error) {
		if name == "" {
			return domain.Book{}, nil, domain.ErrInvalid{Field: "name", Reason: "book name must not be blank"}
		}
		if authorName == nil || strings.TrimSpace(*authorName) == "" {
			return domain.Book{}, AuthorNameMissing{}, nil
		}
		wanted := strings.TrimSpace(*authorName)
		author, err := tx.FindAuthorByName(wanted)
		if domain.IsNotFound(err) {
			return domain.Book{}, AuthorNotFound{Name: wanted}, nil
		}
		if err != nil {
			return domain.Book{}, nil, err
		}
		created, err := tx.CreateBook(domain.Book{Name: name, AuthorID: &author.ID})
		return created, nil, err
	}, bookKey)
}

// AddDocumentType creates a document type. The AFIP code is optional and at
// most three characters long.
func (s *Service) AddDocumentType(ctx context.Context, description string, afipCode *string) (Outcome[domain.DocumentType], error) {
	description = strings.TrimSpace(description)
	return mutate(ctx, s, "add_document_type", func(tx domain.Transaction) (domain.DocumentType, Problem, error) {
		if description == "" {
			return domain.DocumentType{}, DescriptionMissing{}, nil
		}
		code, problem := normalizeAfipCode(afipCode)
		if problem != nil {
			return domain.DocumentType{}, problem, nil
		}
		created, err := tx.CreateDocumentType(domain.DocumentType{Description: description, AfipCode: code})
		return created, nil, err
	}, documentTypeKey)
}

func normalizeAfipCode(code *string) (*string, Problem) {
	if code == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*code)
	switch {
	case trimmed == "":
		return nil, InvalidAfipCode{Code: *code, Reason: "must not be blank"}
	case len(trimmed) > domain.MaxAfipCodeLength:
		return nil, InvalidAfipCode{Code: *code, Reason: "at most 3 characters"}
	}
	return &trimmed, nil
}

// DocumentInput carries the arguments of AddDocument.
type DocumentInput struct {
	Issuance          time.Time
	Settlement        time.Time
	TypeID            int64
	AccountingEntryID *string
}

// AddDocument creates a document and an accounting entry named after the
// document type that points back to it, in one session. A linked existing
// entry without a document is pointed back at the new one as well.
func (s *Service) AddDocument(ctx context.Context, in DocumentInput) (Outcome[domain.Document], error) {
	return mutate(ctx, s, "add_document", func(tx domain.Transaction) (domain.Document, Problem, error) {
		if in.Issuance.IsZero() || in.Settlement.IsZero() {
			return domain.Document{}, nil, domain.ErrInvalid{Field: "date", Reason: "issuance and settlement are required"}
		}
		docType, err := tx.FindDocumentType(in.TypeID)
		if domain.IsNotFound(err) {
			return domain.Document{}, DocumentTypeNotFound{ID: in.TypeID}, nil
		}
		if err != nil {
			return domain.Document{}, nil, err
		}
		var linked *domain.AccountingEntry
		if in.AccountingEntryID != nil {
			entry, err := tx.FindAccountingEntry(*in.AccountingEntryID)
			if domain.IsNotFound(err) {
				return domain.Document{}, AccountingEntryNotFound{ID: *in.AccountingEntryID}, nil
			}
			if err != nil {
				return domain.Document{}, nil, err
			}
			linked = &entry
		}
		doc, err := tx.CreateDocument(domain.Document{
			ID:                s.newID(),
			Issuance:          in.Issuance,
			Settlement:        in.Settlement,
			TypeID:            &docType.ID,
			AccountingEntryID: in.AccountingEntryID,
		})
		if err != nil {
			return domain.Document{}, nil, err
		}
		// An entry already owned by another document keeps that owner.
		if linked != nil && linked.DocumentID == nil {
			if err := tx.LinkAccountingEntryDocument(linked.ID, doc.ID, s.now()); err != nil {
				return domain.Document{}, nil, err
			}
		}
		if _, err := tx.CreateAccountingEntry(domain.AccountingEntry{
			ID:         s.newID(),
			Name:       docType.Description,
			DocumentID: &doc.ID,
			Created:    s.now(),
		}); err != nil {
			return domain.Document{}, nil, err
		}
		return doc, nil, nil
	}, documentKey)
}

// AddAccountingEntry creates an accounting entry. A missing id is generated.
func (s *Service) AddAccountingEntry(ctx context.Context, id *string, name string) (Outcome[domain.AccountingEntry], error) {
	return mutate(ctx, s, "add_accounting_entry", func(tx domain.Transaction) (domain.AccountingEntry, Problem, error) {
		entryID := s.newID()
		if id != nil && strings.TrimSpace(*id) != "" {
			parsed, err := uuid.Parse(strings.TrimSpace(*id))
			if err != nil {
				return domain.AccountingEntry{}, InvalidIdentifier{Value: *id}, nil
			}
			entryID = parsed.String()
			if _, err := tx.FindAccountingEntry(entryID); err == nil {
				return domain.AccountingEntry{}, AccountingEntryExists{ID: entryID}, nil
			} else if !domain.IsNotFound(err) {
				return domain.AccountingEntry{}, nil, err
			}
		}
		created, err := tx.CreateAccountingEntry(domain.AccountingEntry{ID: entryID, Name: strings.TrimSpace(name), Created: s.now()})
		if domain.IsConflict(err) {
			return domain.AccountingEntry{}, AccountingEntryExists{ID: entryID}, nil
		}
		return created, nil, err
	}, entryKey)
}

// AddAccountingEntryDetail appends a journal line to an accounting entry.
// Amounts are positive decimals with at most two fractional digits.
func (s *Service) AddAccountingEntryDetail(ctx context.Context, entryID, amount, column string) (Outcome[domain.AccountingEntryDetail], error) {
	return mutate(ctx, s, "add_accounting_entry_detail", func(tx domain.Transaction) (domain.AccountingEntryDetail, Problem, error) {
		parsed, problem := parsePositiveAmount(amount)
		if problem != nil {
			return domain.AccountingEntryDetail{}, problem, nil
		}
		col := domain.Column(strings.ToUpper(strings.TrimSpace(column)))
		if !col.Valid() {
			return domain.AccountingEntryDetail{}, InvalidColumn{Value: column}, nil
		}
		if _, err := tx.FindAccountingEntry(entryID); domain.IsNotFound(err) {
			return domain.AccountingEntryDetail{}, AccountingEntryNotFound{ID: entryID}, nil
		} else if err != nil {
			return domain.AccountingEntryDetail{}, nil, err
		}
		created, err := tx.CreateAccountingEntryDetail(domain.AccountingEntryDetail{
			ID:                s.newID(),
			AccountingEntryID: entryID,
			Amount:            parsed,
			Column:            col,
			Created:           s.now(),
		})
		return created, nil, err
	}, detailKey)
}

func parsePositiveAmount(raw string) (domain.Amount, Problem) {
	parsed, err := domain.ParseAmount(raw)
	if err != nil {
		var invalid domain.ErrInvalid
		if errors.As(err, &invalid) {
			return 0, InvalidAmount{Value: raw, Reason: invalid.Reason}
		}
		return 0, InvalidAmount{Value: raw, Reason: err.Error()}
	}
	if parsed <= 0 {
		return 0, InvalidAmount{Value: raw, Reason: "must be greater than zero"}
	}
	return parsed, nil
}

// CatalogInput carries the arguments of AddCatalogEntry.
type CatalogInput struct {
	Kind        domain.CatalogKind
	Description string
	AfipCode    *string
	Percentage  *string
}

// AddCatalogEntry appends a row to a reference catalog.
func (s *Service) AddCatalogEntry(ctx context.Context, in CatalogInput) (Outcome[domain.CatalogEntry], error) {
	return mutate(ctx, s, "add_catalog_entry", func(tx domain.Transaction) (domain.CatalogEntry, Problem, error) {
		if !in.Kind.Valid() {
			return domain.CatalogEntry{}, nil, domain.ErrInvalid{Field: "kind", Reason: "unknown catalog " + strconv.Quote(string(in.Kind))}
		}
		description := strings.TrimSpace(in.Description)
		if description == "" {
			return domain.CatalogEntry{}, DescriptionMissing{}, nil
		}
		code, problem := normalizeAfipCode(in.AfipCode)
		if problem != nil {
			return domain.CatalogEntry{}, problem, nil
		}
		if code != nil && !in.Kind.HasAfipCode() {
			return domain.CatalogEntry{}, InvalidAfipCode{Code: *code, Reason: string(in.Kind) + " entries carry no AFIP code"}, nil
		}
		if problem := checkPercentage(in.Kind, in.Percentage); problem != nil {
			return domain.CatalogEntry{}, problem, nil
		}
		created, err := tx.CreateCatalogEntry(domain.CatalogEntry{
			Kind:        in.Kind,
			Description: description,
			AfipCode:    code,
			Percentage:  in.Percentage,
		})
		return created, nil, err
	}, catalogKey)
}

func checkPercentage(kind domain.CatalogKind, pct *string) Problem {
	if kind != domain.CatalogAliquotsIVA {
		if pct != nil {
			return InvalidPercentage{Value: *pct, Reason: "only IVA aliquots carry a percentage"}
		}
		return nil
	}
	if pct == nil {
		return InvalidPercentage{Reason: "required for IVA aliquots"}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*pct), 64)
	if err != nil {
		return InvalidPercentage{Value: *pct, Reason: "not a number"}
	}
	if v < 0 || v >= 10 {
		return InvalidPercentage{Value: *pct, Reason: "must be within [0, 10)"}
	}
	return nil
}

// LiquidationInput carries the arguments of AddLiquidationEntry.
type LiquidationInput struct {
	AccountingEntryDetailID string
	StateID                 int64
	AliquotIVAID            int64
	ActivityID              int64
	TaxCreditOptionID       *int64
	NetoIVA                 bool
	NetoIIBB                bool
}

// AddLiquidationEntry records how a journal line takes part in tax liquidation.
func (s *Service) AddLiquidationEntry(ctx context.Context, in LiquidationInput) (Outcome[domain.LiquidationEntry], error) {
	return mutate(ctx, s, "add_liquidation_entry", func(tx domain.Transaction) (domain.LiquidationEntry, Problem, error) {
		if _, err := tx.FindAccountingEntryDetail(in.AccountingEntryDetailID); domain.IsNotFound(err) {
			return domain.LiquidationEntry{}, AccountingEntryDetailNotFound{ID: in.AccountingEntryDetailID}, nil
		} else if err != nil {
			return domain.LiquidationEntry{}, nil, err
		}
		refs := []catalogRef{
			{domain.CatalogStates, in.StateID},
			{domain.CatalogAliquotsIVA, in.AliquotIVAID},
			{domain.CatalogActivities, in.ActivityID},
		}
		if in.TaxCreditOptionID != nil {
			refs = append(refs, catalogRef{domain.CatalogTaxCreditOptions, *in.TaxCreditOptionID})
		}
		if problem, err := checkCatalogRefs(tx, refs); problem != nil || err != nil {
			return domain.LiquidationEntry{}, problem, err
		}
		detail := in.AccountingEntryDetailID
		created, err := tx.CreateLiquidationEntry(domain.LiquidationEntry{
			ID:                      s.newID(),
			NetoIVA:                 in.NetoIVA,
			NetoIIBB:                in.NetoIIBB,
			StateID:                 in.StateID,
			AccountingEntryDetailID: &detail,
			AliquotIVAID:            in.AliquotIVAID,
			ActivityID:              in.ActivityID,
			TaxCreditOptionID:       in.TaxCreditOptionID,
			Created:                 s.now(),
		})
		return created, nil, err
	}, liquidationKey)
}

// TaxPaymentInput carries the arguments of AddTaxPayment.
type TaxPaymentInput struct {
	DocumentID    string
	EmitterCUIT   int64
	SenderCUIT    int64
	Issuance      time.Time
	TriggerAmount string
	Amount        string
	Certificate   int64
	TaxID         int64
	TypeID        int64
	StateID       *int64
}

// AddTaxPayment attaches a withholding or perception certificate to a document.
func (s *Service) AddTaxPayment(ctx context.Context, in TaxPaymentInput) (Outcome[domain.TaxPayment], error) {
	return mutate(ctx, s, "add_tax_payment", func(tx domain.Transaction) (domain.TaxPayment, Problem, error) {
		amount, problem := parsePositiveAmount(in.Amount)
		if problem != nil {
			return domain.TaxPayment{}, problem, nil
		}
		var trigger domain.Amount
		if strings.TrimSpace(in.TriggerAmount) != "" {
			parsed, err := domain.ParseAmount(in.TriggerAmount)
			if err != nil || parsed < 0 {
				return domain.TaxPayment{}, InvalidAmount{Value: in.TriggerAmount, Reason: "trigger amount must be a non-negative decimal"}, nil
			}
			trigger = parsed
		}
		if _, err := tx.FindDocument(in.DocumentID); domain.IsNotFound(err) {
			return domain.TaxPayment{}, DocumentNotFound{ID: in.DocumentID}, nil
		} else if err != nil {
			return domain.TaxPayment{}, nil, err
		}
		refs := []catalogRef{
			{domain.CatalogTaxes, in.TaxID},
			{domain.CatalogTaxPaymentTypes, in.TypeID},
		}
		if in.StateID != nil {
			refs = append(refs, catalogRef{domain.CatalogStates, *in.StateID})
		}
		if problem, err := checkCatalogRefs(tx, refs); problem != nil || err != nil {
			return domain.TaxPayment{}, problem, err
		}
		issuance := in.Issuance
		if issuance.IsZero() {
			issuance = s.now()
		}
		document := in.DocumentID
		created, err := tx.CreateTaxPayment(domain.TaxPayment{
			ID:            s.newID(),
			EmitterCUIT:   in.EmitterCUIT,
			SenderCUIT:    in.SenderCUIT,
			Issuance:      issuance,
			TriggerAmount: trigger,
			Amount:        amount,
			Certificate:   in.Certificate,
			TaxID:         in.TaxID,
			DocumentID:    &document,
			StateID:       in.StateID,
			TypeID:        in.TypeID,
		})
		return created, nil, err
	}, taxPaymentKey)
}

type catalogRef struct {
	kind domain.CatalogKind
	id   int64
}

func checkCatalogRefs(tx domain.TransactionView, refs []catalogRef) (Problem, error) {
	for _, ref := range refs {
		_, err := tx.FindCatalogEntry(ref.kind, ref.id)
		if domain.IsNotFound(err) {
			return CatalogEntryNotFound{Kind: ref.kind, ID: ref.id}, nil
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}
