package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tabletalk/tabletalk/internal/model"
)

func testCatalog() map[string]model.Table {
	return map[string]model.Table{
		"sales":     {Name: "sales"},
		"users":     {Name: "users"},
		"orders":    {Name: "orders"},
		"customers": {Name: "customers"},
	}
}

func TestResolveRestrictedRole(t *testing.T) {
	p := New(map[string][]string{"analyst": {"sales", "users"}})

	filtered, allowed := p.Resolve("analyst", testCatalog())
	if len(filtered) != 2 {
		t.Fatalf("filtered schema has %d tables, want 2", len(filtered))
	}
	if _, ok := filtered["customers"]; ok {
		t.Error("customers must not be visible to analyst")
	}
	if len(allowed) != 2 || allowed[0] != "sales" || allowed[1] != "users" {
		t.Errorf("allowed = %v, want [sales users]", allowed)
	}
}

func TestResolveWildcard(t *testing.T) {
	p := New(map[string][]string{"admin": {"*"}})

	filtered, allowed := p.Resolve("admin", testCatalog())
	if len(filtered) != 4 || len(allowed) != 4 {
		t.Errorf("wildcard role should see the full catalog, got %d tables", len(filtered))
	}
	if !p.IsWildcard("admin") {
		t.Error("IsWildcard(admin) = false, want true")
	}
}

func TestResolveUnknownRoleIsEmptyNotWildcard(t *testing.T) {
	p := Default()

	filtered, allowed := p.Resolve("intruder", testCatalog())
	if len(filtered) != 0 || len(allowed) != 0 {
		t.Errorf("unknown role must resolve to empty access, got %v", allowed)
	}
	if p.IsWildcard("intruder") {
		t.Error("unknown role must never be wildcard")
	}
}

func TestResolveGrantedTableMissingFromCatalog(t *testing.T) {
	// A granted table that does not exist in the catalog is neither shown to
	// the generator nor accepted by the validator.
	p := New(map[string][]string{"analyst": {"sales", "retired_table"}})

	filtered, allowed := p.Resolve("analyst", testCatalog())
	if len(filtered) != 1 || len(allowed) != 1 || allowed[0] != "sales" {
		t.Errorf("filtered = %v, allowed = %v; want only sales", filtered, allowed)
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	p := New(map[string][]string{"Analyst": {"SALES"}})

	_, allowed := p.Resolve("ANALYST", testCatalog())
	if len(allowed) != 1 || allowed[0] != "sales" {
		t.Errorf("allowed = %v, want [sales]", allowed)
	}
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	content := `roles:
  analyst:
    tables: [sales, users, orders]
  admin:
    tables: ["*"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := p.Roles(); len(got) != 2 {
		t.Errorf("Roles() = %v, want 2 roles", got)
	}
	_, allowed := p.Resolve("analyst", testCatalog())
	if len(allowed) != 3 {
		t.Errorf("analyst allowed = %v, want 3 tables", allowed)
	}
}

func TestLoadPolicyFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/roles.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("roles: {}\n"), 0644)
	if _, err := Load(empty); err == nil {
		t.Error("expected error for policy with no roles")
	}
}
