// Package testutil provides helpers for enforcing package layering rules from
// tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "github.com/mg15best/impulsa-lov-sub001"

// InternalImportForbidden matches any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// ThirdPartyImportForbidden matches imports outside the standard library and
// this module. Standard library paths have no dot in their first element.
func ThirdPartyImportForbidden(path string) bool {
	if strings.HasPrefix(path, ModulePath) {
		return false
	}
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// LayerImportForbidden returns a predicate matching imports of the given
// module-relative package prefixes, e.g. "internal/core".
func LayerImportForbidden(layers ...string) func(string) bool {
	return func(path string) bool {
		for _, layer := range layers {
			full := ModulePath + "/" + strings.TrimSuffix(layer, "/")
			if path == full || strings.HasPrefix(path, full+"/") {
				return true
			}
		}
		return false
	}
}

// AssertNoDirectImports scans the non-test .go files in dir and fails if an
// import path satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// AssertPackagesAvoid loads pattern (relative to the test's working
// directory) and fails if any matched package directly imports a path
// satisfying forbidden.
func AssertPackagesAvoid(t testing.TB, pattern string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		t.Fatalf("load packages %s: %v", pattern, err)
	}
	var viols []string
	for _, p := range pkgs {
		for _, e := range p.Errors {
			t.Fatalf("package %s: %v", p.PkgPath, e)
		}
		for path := range p.Imports {
			if forbidden(path) {
				viols = append(viols, path+" (in "+p.PkgPath+")")
			}
		}
	}
	sort.Strings(viols)
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}
