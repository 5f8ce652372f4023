package sqlite

import (
	"go/build"
	"strings"
	"testing"
)

var allowedLocalImports = map[string]struct{}{
	"ledgerql/pkg/domain":                          {},
	"ledgerql/internal/entitymodel/sqlbundle":      {},
	"ledgerql/internal/infra/persistence/sqlstore": {},
}

func TestImportsAreDomainOrSharedStore(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if !strings.HasPrefix(imp, "ledgerql/") {
			continue
		}
		if _, ok := allowedLocalImports[imp]; ok {
			continue
		}
		t.Fatalf("unexpected dependency: %s", imp)
	}
}
