package core

import (
	"context"

	"ledgerql/pkg/domain"
)

type seedRow struct {
	description string
	afipCode    string
	percentage  string
}

var defaultCatalogs = map[domain.CatalogKind][]seedRow{
	domain.CatalogStates: {
		{description: "Activo", afipCode: "1"},
		{description: "Anulado", afipCode: "2"},
	},
	domain.CatalogAliquotsIVA: {
		{description: "IVA 0%", percentage: "0"},
		{description: "IVA 10.5%", percentage: "0.105"},
		{description: "IVA 21%", percentage: "0.21"},
		{description: "IVA 27%", percentage: "0.27"},
	},
	domain.CatalogActivities: {
		{description: "Comercio minorista", afipCode: "1"},
		{description: "Servicios", afipCode: "2"},
	},
	domain.CatalogTaxCreditOptions: {
		{description: "Computable"},
		{description: "No computable"},
	},
	domain.CatalogTaxes: {
		{description: "IVA", afipCode: "30"},
		{description: "Ingresos Brutos", afipCode: "IB"},
		{description: "Ganancias", afipCode: "10"},
	},
	domain.CatalogTaxPaymentTypes: {
		{description: "Retención"},
		{description: "Percepción"},
	},
}

// SeedCatalogs inserts the default reference rows that are not present yet,
// matched by description. It returns the number of rows inserted.
func (s *Service) SeedCatalogs(ctx context.Context) (int, error) {
	inserted := 0
	err := s.run(ctx, "seed_catalogs", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			inserted = 0
			for _, kind := range domain.CatalogKinds {
				existing, err := tx.ListCatalog(kind)
				if err != nil {
					return err
				}
				known := make(map[string]struct{}, len(existing))
				for _, e := range existing {
					known[e.Description] = struct{}{}
				}
				for _, row := range defaultCatalogs[kind] {
					if _, ok := known[row.description]; ok {
						continue
					}
					entry := domain.CatalogEntry{Kind: kind, Description: row.description}
					if row.afipCode != "" {
						code := row.afipCode
						entry.AfipCode = &code
					}
					if row.percentage != "" {
						pct := row.percentage
						entry.Percentage = &pct
					}
					if _, err := tx.CreateCatalogEntry(entry); err != nil {
						return err
					}
					inserted++
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		s.logger.Info("seeded reference catalogs", "rows", inserted)
	}
	return inserted, nil
}
