package domain

import (
	"testing"

	"github.com/mg15best/impulsa-lov-sub001/testutil"
)

// The domain layer is shared by every backend and the CLI; it must stay free
// of internal packages and third-party modules.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "pkg/domain must not depend on internal packages")
}

func TestDomainUsesStandardLibraryOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ThirdPartyImportForbidden, "pkg/domain must only import the standard library")
}
