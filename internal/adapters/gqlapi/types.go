package gqlapi

import (
	"errors"

	"ledgerql/internal/adapters/exports"
	"ledgerql/pkg/domain"

	"github.com/graphql-go/graphql"
)

var errNoLoaders = errors.New("request has no loaders attached")

// loadersOf returns the request loaders or an internal error when the
// executor was started without them.
func loadersOf(p graphql.ResolveParams) (*Loaders, error) {
	l := LoadersFrom(p.Context)
	if l == nil {
		return nil, wrap(errNoLoaders)
	}
	return l, nil
}

func nonNull(t graphql.Output) graphql.Output { return graphql.NewNonNull(t) }

func listOf(t graphql.Output) graphql.Output {
	return graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(t)))
}

// objects holds the output types. Relationship fields refer to each other,
// so field sets are declared as thunks and resolved once the schema is built.
type objects struct {
	author          *graphql.Object
	book            *graphql.Object
	documentType    *graphql.Object
	document        *graphql.Object
	accountingEntry *graphql.Object
	detail          *graphql.Object
	liquidation     *graphql.Object
	taxPayment      *graphql.Object
	catalogEntry    *graphql.Object
	ledgerExport    *graphql.Object
	exportArtifact  *graphql.Object
}

func newObjects() *objects {
	o := &objects{}

	o.author = graphql.NewObject(graphql.ObjectConfig{
		Name: "Author",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":        prop(nonNull(graphql.ID), func(a domain.Author) interface{} { return formatInt(a.ID) }),
				"name":      prop(nonNull(graphql.String), func(a domain.Author) interface{} { return a.Name }),
				"nameUpper": prop(nonNull(graphql.String), func(a domain.Author) interface{} { return a.NameUpper() }),
				"books": {
					Type: listOf(o.book),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						a, _ := sourceOf[domain.Author](p.Source)
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.BooksByAuthor.LoadThunk(a.ID), asIs[[]domain.Book]), nil
					},
				},
			}
		}),
	})

	o.book = graphql.NewObject(graphql.ObjectConfig{
		Name: "Book",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":   prop(nonNull(graphql.ID), func(b domain.Book) interface{} { return formatInt(b.ID) }),
				"name": prop(nonNull(graphql.String), func(b domain.Book) interface{} { return b.Name }),
				"author": {
					Type: o.author,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						b, _ := sourceOf[domain.Book](p.Source)
						if b.AuthorID == nil {
							return nil, nil
						}
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.AuthorByID.LoadThunk(*b.AuthorID), deref[domain.Author]), nil
					},
				},
			}
		}),
	})

	o.documentType = graphql.NewObject(graphql.ObjectConfig{
		Name: "DocumentType",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":          prop(nonNull(graphql.ID), func(dt domain.DocumentType) interface{} { return formatInt(dt.ID) }),
				"description": prop(nonNull(graphql.String), func(dt domain.DocumentType) interface{} { return dt.Description }),
				"afipCode":    prop(graphql.String, func(dt domain.DocumentType) interface{} { return optional(dt.AfipCode) }),
				"documents": {
					Type: listOf(o.document),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						dt, _ := sourceOf[domain.DocumentType](p.Source)
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.DocumentsByType.LoadThunk(dt.ID), asIs[[]domain.Document]), nil
					},
				},
			}
		}),
	})

	o.document = graphql.NewObject(graphql.ObjectConfig{
		Name: "Document",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":          prop(nonNull(graphql.ID), func(d domain.Document) interface{} { return d.ID }),
				"issuance":    prop(nonNull(graphql.DateTime), func(d domain.Document) interface{} { return d.Issuance }),
				"settlement":  prop(nonNull(graphql.DateTime), func(d domain.Document) interface{} { return d.Settlement }),
				"operationId": prop(graphql.ID, func(d domain.Document) interface{} { return optionalInt(d.OperationID) }),
				"type": {
					Type: o.documentType,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						d, _ := sourceOf[domain.Document](p.Source)
						if d.TypeID == nil {
							return nil, nil
						}
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.DocumentTypeByID.LoadThunk(*d.TypeID), deref[domain.DocumentType]), nil
					},
				},
				"accountingEntry": {
					Type: o.accountingEntry,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						d, _ := sourceOf[domain.Document](p.Source)
						if d.AccountingEntryID == nil {
							return nil, nil
						}
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.AccountingEntryByID.LoadThunk(*d.AccountingEntryID), deref[domain.AccountingEntry]), nil
					},
				},
				"taxPayments": {
					Type: listOf(o.taxPayment),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						d, _ := sourceOf[domain.Document](p.Source)
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.TaxPaymentsByDocument.LoadThunk(d.ID), asIs[[]domain.TaxPayment]), nil
					},
				},
			}
		}),
	})

	o.accountingEntry = graphql.NewObject(graphql.ObjectConfig{
		Name: "AccountingEntry",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":      prop(nonNull(graphql.ID), func(e domain.AccountingEntry) interface{} { return e.ID }),
				"name":    prop(nonNull(graphql.String), func(e domain.AccountingEntry) interface{} { return e.Name }),
				"created": prop(nonNull(graphql.DateTime), func(e domain.AccountingEntry) interface{} { return e.Created }),
				"updated": prop(graphql.DateTime, func(e domain.AccountingEntry) interface{} { return optional(e.Updated) }),
				"document": {
					Type: o.document,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						e, _ := sourceOf[domain.AccountingEntry](p.Source)
						if e.DocumentID == nil {
							return nil, nil
						}
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.DocumentByID.LoadThunk(*e.DocumentID), deref[domain.Document]), nil
					},
				},
				"details": {
					Type: listOf(o.detail),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						e, _ := sourceOf[domain.AccountingEntry](p.Source)
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.DetailsByEntry.LoadThunk(e.ID), asIs[[]domain.AccountingEntryDetail]), nil
					},
				},
			}
		}),
	})

	o.detail = graphql.NewObject(graphql.ObjectConfig{
		Name: "AccountingEntryDetail",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":      prop(nonNull(graphql.ID), func(d domain.AccountingEntryDetail) interface{} { return d.ID }),
				"amount":  prop(nonNull(Decimal), func(d domain.AccountingEntryDetail) interface{} { return d.Amount }),
				"column":  prop(nonNull(graphql.String), func(d domain.AccountingEntryDetail) interface{} { return string(d.Column) }),
				"created": prop(nonNull(graphql.DateTime), func(d domain.AccountingEntryDetail) interface{} { return d.Created }),
				"updated": prop(graphql.DateTime, func(d domain.AccountingEntryDetail) interface{} { return optional(d.Updated) }),
				"accountingEntry": {
					Type: o.accountingEntry,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						d, _ := sourceOf[domain.AccountingEntryDetail](p.Source)
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.AccountingEntryByID.LoadThunk(d.AccountingEntryID), deref[domain.AccountingEntry]), nil
					},
				},
				"liquidationEntries": {
					Type: listOf(o.liquidation),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						d, _ := sourceOf[domain.AccountingEntryDetail](p.Source)
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.LiquidationEntriesByDetail.LoadThunk(d.ID), asIs[[]domain.LiquidationEntry]), nil
					},
				},
			}
		}),
	})

	o.liquidation = graphql.NewObject(graphql.ObjectConfig{
		Name: "LiquidationEntry",
		Fields: graphql.Fields{
			"id":                      prop(nonNull(graphql.ID), func(l domain.LiquidationEntry) interface{} { return l.ID }),
			"netoIva":                 prop(nonNull(graphql.Boolean), func(l domain.LiquidationEntry) interface{} { return l.NetoIVA }),
			"netoIibb":                prop(nonNull(graphql.Boolean), func(l domain.LiquidationEntry) interface{} { return l.NetoIIBB }),
			"stateId":                 prop(nonNull(graphql.ID), func(l domain.LiquidationEntry) interface{} { return formatInt(l.StateID) }),
			"aliquotIvaId":            prop(nonNull(graphql.ID), func(l domain.LiquidationEntry) interface{} { return formatInt(l.AliquotIVAID) }),
			"activityId":              prop(nonNull(graphql.ID), func(l domain.LiquidationEntry) interface{} { return formatInt(l.ActivityID) }),
			"taxCreditOptionId":       prop(graphql.ID, func(l domain.LiquidationEntry) interface{} { return optionalInt(l.TaxCreditOptionID) }),
			"accountingEntryDetailId": prop(graphql.ID, func(l domain.LiquidationEntry) interface{} { return optional(l.AccountingEntryDetailID) }),
			"created":                 prop(nonNull(graphql.DateTime), func(l domain.LiquidationEntry) interface{} { return l.Created }),
			"updated":                 prop(graphql.DateTime, func(l domain.LiquidationEntry) interface{} { return optional(l.Updated) }),
		},
	})

	o.taxPayment = graphql.NewObject(graphql.ObjectConfig{
		Name: "TaxPayment",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":            prop(nonNull(graphql.ID), func(t domain.TaxPayment) interface{} { return t.ID }),
				"emitterCuit":   prop(nonNull(graphql.String), func(t domain.TaxPayment) interface{} { return formatInt(t.EmitterCUIT) }),
				"senderCuit":    prop(nonNull(graphql.String), func(t domain.TaxPayment) interface{} { return formatInt(t.SenderCUIT) }),
				"issuance":      prop(nonNull(graphql.DateTime), func(t domain.TaxPayment) interface{} { return t.Issuance }),
				"triggerAmount": prop(nonNull(Decimal), func(t domain.TaxPayment) interface{} { return t.TriggerAmount }),
				"amount":        prop(nonNull(Decimal), func(t domain.TaxPayment) interface{} { return t.Amount }),
				"certificate":   prop(nonNull(graphql.String), func(t domain.TaxPayment) interface{} { return formatInt(t.Certificate) }),
				"taxId":         prop(nonNull(graphql.ID), func(t domain.TaxPayment) interface{} { return formatInt(t.TaxID) }),
				"typeId":        prop(nonNull(graphql.ID), func(t domain.TaxPayment) interface{} { return formatInt(t.TypeID) }),
				"stateId":       prop(graphql.ID, func(t domain.TaxPayment) interface{} { return optionalInt(t.StateID) }),
				"document": {
					Type: o.document,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						t, _ := sourceOf[domain.TaxPayment](p.Source)
						if t.DocumentID == nil {
							return nil, nil
						}
						l, err := loadersOf(p)
						if err != nil {
							return nil, err
						}
						return deferred(l.DocumentByID.LoadThunk(*t.DocumentID), deref[domain.Document]), nil
					},
				},
			}
		}),
	})

	o.catalogEntry = graphql.NewObject(graphql.ObjectConfig{
		Name: "CatalogEntry",
		Fields: graphql.Fields{
			"id":          prop(nonNull(graphql.ID), func(c domain.CatalogEntry) interface{} { return formatInt(c.ID) }),
			"kind":        prop(nonNull(graphql.String), func(c domain.CatalogEntry) interface{} { return string(c.Kind) }),
			"description": prop(nonNull(graphql.String), func(c domain.CatalogEntry) interface{} { return c.Description }),
			"afipCode":    prop(graphql.String, func(c domain.CatalogEntry) interface{} { return optional(c.AfipCode) }),
			"percentage":  prop(graphql.String, func(c domain.CatalogEntry) interface{} { return optional(c.Percentage) }),
		},
	})

	o.exportArtifact = graphql.NewObject(graphql.ObjectConfig{
		Name: "ExportArtifact",
		Fields: graphql.Fields{
			"format":      prop(nonNull(graphql.String), func(a exports.Artifact) interface{} { return string(a.Format) }),
			"key":         prop(nonNull(graphql.String), func(a exports.Artifact) interface{} { return a.Key }),
			"contentType": prop(nonNull(graphql.String), func(a exports.Artifact) interface{} { return a.ContentType }),
			"sizeBytes":   prop(nonNull(graphql.Int), func(a exports.Artifact) interface{} { return int(a.SizeBytes) }),
			"url":         prop(nonNull(graphql.String), func(a exports.Artifact) interface{} { return a.URL }),
			"createdAt":   prop(nonNull(graphql.DateTime), func(a exports.Artifact) interface{} { return a.CreatedAt }),
		},
	})

	o.ledgerExport = graphql.NewObject(graphql.ObjectConfig{
		Name: "LedgerExport",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":     prop(nonNull(graphql.ID), func(r exports.Record) interface{} { return r.ID }),
				"status": prop(nonNull(graphql.String), func(r exports.Record) interface{} { return string(r.Status) }),
				"formats": prop(listOf(graphql.String), func(r exports.Record) interface{} {
					out := make([]string, len(r.Formats))
					for i, f := range r.Formats {
						out[i] = string(f)
					}
					return out
				}),
				"error": prop(graphql.String, func(r exports.Record) interface{} {
					if r.Error == "" {
						return nil
					}
					return r.Error
				}),
				"entries":     prop(nonNull(graphql.Int), func(r exports.Record) interface{} { return r.Entries }),
				"artifacts":   prop(listOf(o.exportArtifact), func(r exports.Record) interface{} { return r.Artifacts }),
				"createdAt":   prop(nonNull(graphql.DateTime), func(r exports.Record) interface{} { return r.CreatedAt }),
				"updatedAt":   prop(nonNull(graphql.DateTime), func(r exports.Record) interface{} { return r.UpdatedAt }),
				"completedAt": prop(graphql.DateTime, func(r exports.Record) interface{} { return optional(r.CompletedAt) }),
			}
		}),
	})

	return o
}
