package loader

import (
	"testing"

	"ledgerql/testutil"
)

func TestLoaderHasNoStorageDependencies(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.DomainImportForbidden, testutil.InfraImportForbidden, testutil.DriverImportForbidden),
		"loader is a generic batching primitive")
}
