package core

import (
	"context"
	"testing"
	"time"

	"ledgerql/pkg/domain"
)

func TestSeedCatalogsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	first, err := svc.SeedCatalogs(ctx)
	if err != nil || first == 0 {
		t.Fatalf("expected rows to be seeded, got %d %v", first, err)
	}
	second, err := svc.SeedCatalogs(ctx)
	if err != nil || second != 0 {
		t.Fatalf("expected no new rows on reseed, got %d %v", second, err)
	}
	aliquots, err := svc.Catalog(ctx, domain.CatalogAliquotsIVA)
	if err != nil || len(aliquots) != 4 {
		t.Fatalf("expected seeded aliquots, got %+v %v", aliquots, err)
	}
}

func TestAddCatalogEntryValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	cases := []struct {
		name string
		in   CatalogInput
		ok   func(Problem) bool
	}{
		{"blank", CatalogInput{Kind: domain.CatalogTaxes, Description: ""}, func(p Problem) bool { _, ok := p.(DescriptionMissing); return ok }},
		{"code on codeless catalog", CatalogInput{Kind: domain.CatalogTaxPaymentTypes, Description: "x", AfipCode: strPtr("1")}, func(p Problem) bool { _, ok := p.(InvalidAfipCode); return ok }},
		{"missing percentage", CatalogInput{Kind: domain.CatalogAliquotsIVA, Description: "IVA"}, func(p Problem) bool { _, ok := p.(InvalidPercentage); return ok }},
		{"percentage out of range", CatalogInput{Kind: domain.CatalogAliquotsIVA, Description: "IVA", Percentage: strPtr("12")}, func(p Problem) bool { _, ok := p.(InvalidPercentage); return ok }},
		{"percentage elsewhere", CatalogInput{Kind: domain.CatalogStates, Description: "x", Percentage: strPtr("0.1")}, func(p Problem) bool { _, ok := p.(InvalidPercentage); return ok }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := svc.AddCatalogEntry(ctx, tc.in)
			if err != nil {
				t.Fatalf("add catalog entry: %v", err)
			}
			if !tc.ok(out.Problem) {
				t.Fatalf("unexpected outcome %#v", out.Result())
			}
		})
	}
	if _, err := svc.AddCatalogEntry(ctx, CatalogInput{Kind: "planets", Description: "x"}); err == nil {
		t.Fatalf("expected unknown catalog to be an input error")
	}
	out, err := svc.AddCatalogEntry(ctx, CatalogInput{Kind: domain.CatalogAliquotsIVA, Description: "IVA 5%", Percentage: strPtr("0.05")})
	if err != nil || !out.OK() || *out.Value.Percentage != "0.050" {
		t.Fatalf("expected aliquot, got %#v %v", out.Result(), err)
	}
}

func TestLiquidationAndTaxPayments(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.SeedCatalogs(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	docType, _ := svc.AddDocumentType(ctx, "Factura A", nil)
	doc, err := svc.AddDocument(ctx, DocumentInput{Issuance: time.Now(), Settlement: time.Now(), TypeID: docType.Value.ID})
	if err != nil || !doc.OK() {
		t.Fatalf("add document: %v", err)
	}
	entries, _ := svc.AccountingEntries(ctx)
	detail, err := svc.AddAccountingEntryDetail(ctx, entries[0].ID, "121.00", "D")
	if err != nil || !detail.OK() {
		t.Fatalf("add detail: %v", err)
	}

	missing, err := svc.AddLiquidationEntry(ctx, LiquidationInput{AccountingEntryDetailID: "nope", StateID: 1, AliquotIVAID: 1, ActivityID: 1})
	if err != nil {
		t.Fatalf("add liquidation: %v", err)
	}
	if _, ok := missing.Problem.(AccountingEntryDetailNotFound); !ok {
		t.Fatalf("expected AccountingEntryDetailNotFound, got %#v", missing.Result())
	}
	badRef, err := svc.AddLiquidationEntry(ctx, LiquidationInput{AccountingEntryDetailID: detail.Value.ID, StateID: 1, AliquotIVAID: 99, ActivityID: 1})
	if err != nil {
		t.Fatalf("add liquidation: %v", err)
	}
	if p, ok := badRef.Problem.(CatalogEntryNotFound); !ok || p.Kind != domain.CatalogAliquotsIVA {
		t.Fatalf("expected missing aliquot, got %#v", badRef.Result())
	}
	liq, err := svc.AddLiquidationEntry(ctx, LiquidationInput{AccountingEntryDetailID: detail.Value.ID, StateID: 1, AliquotIVAID: 3, ActivityID: 1, NetoIVA: true})
	if err != nil || !liq.OK() {
		t.Fatalf("add liquidation: %#v %v", liq.Result(), err)
	}
	byDetail, err := svc.LiquidationEntriesByDetail(ctx, []string{detail.Value.ID})
	if err != nil || len(byDetail[0]) != 1 || !byDetail[0][0].NetoIVA {
		t.Fatalf("unexpected liquidation entries %+v %v", byDetail, err)
	}

	payment, err := svc.AddTaxPayment(ctx, TaxPaymentInput{DocumentID: doc.Value.ID, EmitterCUIT: 20111111112, Amount: "12.10", TaxID: 1, TypeID: 1})
	if err != nil || !payment.OK() {
		t.Fatalf("add tax payment: %#v %v", payment.Result(), err)
	}
	noDoc, err := svc.AddTaxPayment(ctx, TaxPaymentInput{DocumentID: "nope", Amount: "1", TaxID: 1, TypeID: 1})
	if err != nil {
		t.Fatalf("add tax payment: %v", err)
	}
	if _, ok := noDoc.Problem.(DocumentNotFound); !ok {
		t.Fatalf("expected DocumentNotFound, got %#v", noDoc.Result())
	}
	badAmount, _ := svc.AddTaxPayment(ctx, TaxPaymentInput{DocumentID: doc.Value.ID, Amount: "-1", TaxID: 1, TypeID: 1})
	if _, ok := badAmount.Problem.(InvalidAmount); !ok {
		t.Fatalf("expected InvalidAmount, got %#v", badAmount.Result())
	}
	byDoc, err := svc.TaxPaymentsByDocument(ctx, []string{doc.Value.ID, "other"})
	if err != nil || len(byDoc[0]) != 1 || len(byDoc[1]) != 0 {
		t.Fatalf("unexpected tax payments %+v %v", byDoc, err)
	}
}
