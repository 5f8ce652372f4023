// Package gqlapi exposes the ledger over GraphQL. Relationship fields resolve
// through request-scoped batching loaders; mutations return a union of the
// created object and the problems that can prevent it.
package gqlapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"ledgerql/internal/adapters/exports"
	"ledgerql/internal/core"
	"ledgerql/pkg/domain"

	"github.com/graphql-go/graphql"
)

// ExportQueue schedules ledger exports. *exports.Worker implements it.
type ExportQueue interface {
	Enqueue(ctx context.Context, formats []string) (exports.Record, error)
	Get(id string) (exports.Record, bool)
}

var errExportsDisabled = errors.New("ledger exports are not configured")

type resolver struct {
	svc     *core.Service
	exports ExportQueue
}

// NewSchema builds the GraphQL schema over svc. queue may be nil, in which
// case exportLedger fails with an internal error.
func NewSchema(svc *core.Service, queue ExportQueue) (graphql.Schema, error) {
	r := &resolver{svc: svc, exports: queue}
	o := newObjects()
	problems := defaultProblems()
	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    r.query(o),
		Mutation: r.mutation(o, problems),
	})
}

func idArg(t graphql.Input) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(t)}}
}

func (r *resolver) query(o *objects) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"authors": &graphql.Field{
				Type: listOf(o.author),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					out, err := r.svc.Authors(p.Context)
					return out, wrap(err)
				},
			},
			"books": &graphql.Field{
				Type: listOf(o.book),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					out, err := r.svc.Books(p.Context)
					return out, wrap(err)
				},
			},
			"documentTypes": &graphql.Field{
				Type: listOf(o.documentType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					out, err := r.svc.DocumentTypes(p.Context)
					return out, wrap(err)
				},
			},
			"documents": &graphql.Field{
				Type: listOf(o.document),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					out, err := r.svc.Documents(p.Context)
					return out, wrap(err)
				},
			},
			"accountingEntries": &graphql.Field{
				Type: listOf(o.accountingEntry),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					out, err := r.svc.AccountingEntries(p.Context)
					return out, wrap(err)
				},
			},
			"catalog": &graphql.Field{
				Type: listOf(o.catalogEntry),
				Args: graphql.FieldConfigArgument{
					"kind": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					kind, err := requiredString(p.Args, "kind")
					if err != nil {
						return nil, err
					}
					out, err := r.svc.Catalog(p.Context, domain.CatalogKind(strings.ToLower(kind)))
					return out, wrap(err)
				},
			},
			"author": &graphql.Field{
				Type: o.author,
				Args: idArg(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := requiredID(p.Args, "id")
					if err != nil {
						return nil, err
					}
					out, err := r.svc.Author(p.Context, id)
					return optional(out), wrap(err)
				},
			},
			"book": &graphql.Field{
				Type: o.book,
				Args: idArg(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := requiredID(p.Args, "id")
					if err != nil {
						return nil, err
					}
					out, err := r.svc.Book(p.Context, id)
					return optional(out), wrap(err)
				},
			},
			"documentType": &graphql.Field{
				Type: o.documentType,
				Args: idArg(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := requiredID(p.Args, "id")
					if err != nil {
						return nil, err
					}
					out, err := r.svc.DocumentType(p.Context, id)
					return optional(out), wrap(err)
				},
			},
			"document": &graphql.Field{
				Type: o.document,
				Args: idArg(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := requiredString(p.Args, "id")
					if err != nil {
						return nil, err
					}
					out, err := r.svc.Document(p.Context, id)
					return optional(out), wrap(err)
				},
			},
			"accountingEntry": &graphql.Field{
				Type: o.accountingEntry,
				Args: idArg(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := requiredString(p.Args, "id")
					if err != nil {
						return nil, err
					}
					out, err := r.svc.AccountingEntry(p.Context, id)
					return optional(out), wrap(err)
				},
			},
			"ledgerExport": &graphql.Field{
				Type: o.ledgerExport,
				Args: idArg(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r.exports == nil {
						return nil, wrap(errExportsDisabled)
					}
					id, err := requiredString(p.Args, "id")
					if err != nil {
						return nil, err
					}
					rec, ok := r.exports.Get(id)
					if !ok {
						return nil, nil
					}
					return rec, nil
				},
			},
		},
	})
}

func (r *resolver) mutation(o *objects, problems problemObjects) *graphql.Object {
	str := func() *graphql.ArgumentConfig {
		return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}
	}
	optStr := func() *graphql.ArgumentConfig { return &graphql.ArgumentConfig{Type: graphql.String} }
	id := func() *graphql.ArgumentConfig { return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)} }
	optID := func() *graphql.ArgumentConfig { return &graphql.ArgumentConfig{Type: graphql.ID} }
	decimal := func() *graphql.ArgumentConfig { return &graphql.ArgumentConfig{Type: graphql.NewNonNull(Decimal)} }
	date := func() *graphql.ArgumentConfig {
		return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.DateTime)}
	}
	flag := func() *graphql.ArgumentConfig {
		return &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false}
	}

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"addAuthor": &graphql.Field{
				Type: nonNull(problems.union("AddAuthorResponse", o.author,
					core.AuthorExists{}, core.AuthorNameMissing{})),
				Args: graphql.FieldConfigArgument{"name": str()},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					name, _ := p.Args["name"].(string)
					out, err := r.svc.AddAuthor(p.Context, name)
					if err != nil {
						return nil, wrap(err)
					}
					if out.OK() {
						if l := LoadersFrom(p.Context); l != nil {
							author := out.Value
							l.AuthorByID.Prime(author.ID, &author)
							l.BooksByAuthor.Prime(author.ID, []domain.Book{})
						}
					}
					return out.Result(), nil
				},
			},
			"addBook": &graphql.Field{
				Type: nonNull(problems.union("AddBookResponse", o.book,
					core.AuthorNameMissing{}, core.AuthorNotFound{})),
				Args: graphql.FieldConfigArgument{"name": str(), "authorName": optStr()},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					name, _ := p.Args["name"].(string)
					out, err := r.svc.AddBook(p.Context, name, optionalString(p.Args, "authorName"))
					if err != nil {
						return nil, wrap(err)
					}
					if out.OK() && out.Value.AuthorID != nil {
						if l := LoadersFrom(p.Context); l != nil {
							l.BooksByAuthor.Clear(*out.Value.AuthorID)
						}
					}
					return out.Result(), nil
				},
			},
			"addDocumentType": &graphql.Field{
				Type: nonNull(problems.union("AddDocumentTypeResponse", o.documentType,
					core.DescriptionMissing{}, core.InvalidAfipCode{})),
				Args: graphql.FieldConfigArgument{"description": str(), "afipCode": optStr()},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					description, _ := p.Args["description"].(string)
					out, err := r.svc.AddDocumentType(p.Context, description, optionalString(p.Args, "afipCode"))
					if err != nil {
						return nil, wrap(err)
					}
					return out.Result(), nil
				},
			},
			"addDocument": &graphql.Field{
				Type: nonNull(problems.union("AddDocumentResponse", o.document,
					core.DocumentTypeNotFound{}, core.AccountingEntryNotFound{})),
				Args: graphql.FieldConfigArgument{
					"issuance":          date(),
					"settlement":        date(),
					"documentTypeId":    id(),
					"accountingEntryId": optID(),
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					typeID, err := requiredID(p.Args, "documentTypeId")
					if err != nil {
						return nil, err
					}
					issuance, _ := p.Args["issuance"].(time.Time)
					settlement, _ := p.Args["settlement"].(time.Time)
					out, err := r.svc.AddDocument(p.Context, core.DocumentInput{
						Issuance:          issuance,
						Settlement:        settlement,
						TypeID:            typeID,
						AccountingEntryID: optionalString(p.Args, "accountingEntryId"),
					})
					if err != nil {
						return nil, wrap(err)
					}
					if out.OK() {
						if l := LoadersFrom(p.Context); l != nil {
							l.DocumentsByType.Clear(typeID)
							if entryID := out.Value.AccountingEntryID; entryID != nil {
								l.AccountingEntryByID.Clear(*entryID)
							}
						}
					}
					return out.Result(), nil
				},
			},
			"addAccountingEntry": &graphql.Field{
				Type: nonNull(problems.union("AddAccountingEntryResponse", o.accountingEntry,
					core.InvalidIdentifier{}, core.AccountingEntryExists{})),
				Args: graphql.FieldConfigArgument{"id": optID(), "name": str()},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					name, _ := p.Args["name"].(string)
					out, err := r.svc.AddAccountingEntry(p.Context, optionalString(p.Args, "id"), name)
					if err != nil {
						return nil, wrap(err)
					}
					if out.OK() {
						if l := LoadersFrom(p.Context); l != nil {
							entry := out.Value
							l.AccountingEntryByID.Prime(entry.ID, &entry)
							l.DetailsByEntry.Prime(entry.ID, []domain.AccountingEntryDetail{})
						}
					}
					return out.Result(), nil
				},
			},
			"addAccountingEntryDetail": &graphql.Field{
				Type: nonNull(problems.union("AddAccountingEntryDetailResponse", o.detail,
					core.InvalidAmount{}, core.InvalidColumn{}, core.AccountingEntryNotFound{})),
				Args: graphql.FieldConfigArgument{
					"accountingEntryId": id(),
					"amount":            decimal(),
					"column":            str(),
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					entryID, err := requiredString(p.Args, "accountingEntryId")
					if err != nil {
						return nil, err
					}
					amount, _ := p.Args["amount"].(string)
					column, _ := p.Args["column"].(string)
					out, err := r.svc.AddAccountingEntryDetail(p.Context, entryID, amount, column)
					if err != nil {
						return nil, wrap(err)
					}
					if out.OK() {
						if l := LoadersFrom(p.Context); l != nil {
							l.DetailsByEntry.Clear(entryID)
						}
					}
					return out.Result(), nil
				},
			},
			"addCatalogEntry": &graphql.Field{
				Type: nonNull(problems.union("AddCatalogEntryResponse", o.catalogEntry,
					core.DescriptionMissing{}, core.InvalidAfipCode{}, core.InvalidPercentage{})),
				Args: graphql.FieldConfigArgument{
					"kind":        str(),
					"description": str(),
					"afipCode":    optStr(),
					"percentage":  optStr(),
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					kind, _ := p.Args["kind"].(string)
					description, _ := p.Args["description"].(string)
					out, err := r.svc.AddCatalogEntry(p.Context, core.CatalogInput{
						Kind:        domain.CatalogKind(strings.ToLower(kind)),
						Description: description,
						AfipCode:    optionalString(p.Args, "afipCode"),
						Percentage:  optionalString(p.Args, "percentage"),
					})
					if err != nil {
						return nil, wrap(err)
					}
					return out.Result(), nil
				},
			},
			"addLiquidationEntry": &graphql.Field{
				Type: nonNull(problems.union("AddLiquidationEntryResponse", o.liquidation,
					core.AccountingEntryDetailNotFound{}, core.CatalogEntryNotFound{})),
				Args: graphql.FieldConfigArgument{
					"accountingEntryDetailId": id(),
					"stateId":                 id(),
					"aliquotIvaId":            id(),
					"activityId":              id(),
					"taxCreditOptionId":       optID(),
					"netoIva":                 flag(),
					"netoIibb":                flag(),
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					in, err := liquidationInput(p.Args)
					if err != nil {
						return nil, err
					}
					out, err := r.svc.AddLiquidationEntry(p.Context, in)
					if err != nil {
						return nil, wrap(err)
					}
					if out.OK() {
						if l := LoadersFrom(p.Context); l != nil {
							l.LiquidationEntriesByDetail.Clear(in.AccountingEntryDetailID)
						}
					}
					return out.Result(), nil
				},
			},
			"addTaxPayment": &graphql.Field{
				Type: nonNull(problems.union("AddTaxPaymentResponse", o.taxPayment,
					core.InvalidAmount{}, core.DocumentNotFound{}, core.CatalogEntryNotFound{})),
				Args: graphql.FieldConfigArgument{
					"documentId":    id(),
					"emitterCuit":   str(),
					"senderCuit":    str(),
					"issuance":      date(),
					"triggerAmount": decimal(),
					"amount":        decimal(),
					"certificate":   str(),
					"taxId":         id(),
					"typeId":        id(),
					"stateId":       optID(),
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					in, err := taxPaymentInput(p.Args)
					if err != nil {
						return nil, err
					}
					out, err := r.svc.AddTaxPayment(p.Context, in)
					if err != nil {
						return nil, wrap(err)
					}
					if out.OK() {
						if l := LoadersFrom(p.Context); l != nil {
							l.TaxPaymentsByDocument.Clear(in.DocumentID)
						}
					}
					return out.Result(), nil
				},
			},
			"exportLedger": &graphql.Field{
				Type: nonNull(o.ledgerExport),
				Args: graphql.FieldConfigArgument{
					"formats": &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(graphql.String))},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r.exports == nil {
						return nil, wrap(errExportsDisabled)
					}
					var formats []string
					if raw, ok := p.Args["formats"].([]interface{}); ok {
						for _, f := range raw {
							if s, ok := f.(string); ok {
								formats = append(formats, s)
							}
						}
					}
					rec, err := r.exports.Enqueue(p.Context, formats)
					if err != nil {
						return nil, wrap(err)
					}
					return rec, nil
				},
			},
		},
	})
}

func liquidationInput(args map[string]interface{}) (core.LiquidationInput, error) {
	var (
		in  core.LiquidationInput
		err error
	)
	if in.AccountingEntryDetailID, err = requiredString(args, "accountingEntryDetailId"); err != nil {
		return in, err
	}
	if in.StateID, err = requiredID(args, "stateId"); err != nil {
		return in, err
	}
	if in.AliquotIVAID, err = requiredID(args, "aliquotIvaId"); err != nil {
		return in, err
	}
	if in.ActivityID, err = requiredID(args, "activityId"); err != nil {
		return in, err
	}
	if in.TaxCreditOptionID, err = optionalID(args, "taxCreditOptionId"); err != nil {
		return in, err
	}
	in.NetoIVA = boolArg(args, "netoIva")
	in.NetoIIBB = boolArg(args, "netoIibb")
	return in, nil
}

func taxPaymentInput(args map[string]interface{}) (core.TaxPaymentInput, error) {
	var (
		in  core.TaxPaymentInput
		err error
	)
	if in.DocumentID, err = requiredString(args, "documentId"); err != nil {
		return in, err
	}
	if in.EmitterCUIT, err = requiredID(args, "emitterCuit"); err != nil {
		return in, err
	}
	if in.SenderCUIT, err = requiredID(args, "senderCuit"); err != nil {
		return in, err
	}
	if in.Certificate, err = requiredID(args, "certificate"); err != nil {
		return in, err
	}
	if in.TaxID, err = requiredID(args, "taxId"); err != nil {
		return in, err
	}
	if in.TypeID, err = requiredID(args, "typeId"); err != nil {
		return in, err
	}
	if in.StateID, err = optionalID(args, "stateId"); err != nil {
		return in, err
	}
	in.Issuance, _ = args["issuance"].(time.Time)
	in.TriggerAmount, _ = args["triggerAmount"].(string)
	in.Amount, _ = args["amount"].(string)
	return in, nil
}
