package catalog

import (
	"testing"

	"github.com/ansilo-run/ansilo/internal/types"
)

func TestLoadAndResolve(t *testing.T) {
	c := New()
	err := c.Load(
		[]DataSource{{ID: "db1", Type: "native.postgres"}},
		[]Entity{{
			ID:     "users",
			Source: Source{DataSourceID: "db1"},
			Attributes: []Attribute{
				{Name: "id", Type: types.Int64(), PrimaryKey: true},
			},
		}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, err := c.Entity("users")
	if err != nil {
		t.Fatalf("expected entity users to resolve: %v", err)
	}
	if e.Source.DataSourceID != "db1" {
		t.Errorf("expected source db1, got %q", e.Source.DataSourceID)
	}

	if _, err := c.Entity("missing"); err == nil {
		t.Fatal("expected error resolving unknown entity")
	}
}

func TestLoadRejectsDanglingDataSourceReference(t *testing.T) {
	c := New()
	err := c.Load(nil, []Entity{{ID: "orphan", Source: Source{DataSourceID: "nope"}}})
	if err == nil {
		t.Fatal("expected error for entity referencing unknown data source")
	}
}

func TestValidateEntityIDRejectsDotPrefixAndSlash(t *testing.T) {
	cases := []string{".hidden", "a/b", ""}
	for _, id := range cases {
		if err := ValidateEntityID(id); err == nil {
			t.Errorf("expected %q to be rejected", id)
		}
	}
	if err := ValidateEntityID("valid_id"); err != nil {
		t.Errorf("expected valid_id to be accepted, got %v", err)
	}
}

func TestReloadReplacesCatalog(t *testing.T) {
	c := New()
	_ = c.Load([]DataSource{{ID: "db1"}}, []Entity{{ID: "a", Source: Source{DataSourceID: "db1"}}})
	_ = c.Load([]DataSource{{ID: "db1"}}, []Entity{{ID: "b", Source: Source{DataSourceID: "db1"}}})

	if _, err := c.Entity("a"); err == nil {
		t.Fatal("expected entity a to be gone after reload replaced the catalog")
	}
	if _, err := c.Entity("b"); err != nil {
		t.Fatalf("expected entity b to resolve after reload: %v", err)
	}
}
