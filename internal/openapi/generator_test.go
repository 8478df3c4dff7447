package openapi

import (
	"encoding/json"
	"testing"

	"github.com/tabletalk/tabletalk/internal/model"
)

func testTables() []model.Table {
	return []model.Table{
		{
			Name: "sales",
			Columns: []model.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "amount", Type: "NUMERIC"},
			},
		},
	}
}

func TestGenerate(t *testing.T) {
	doc := Generate("http://localhost:8080", testTables())

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("version = %q", doc.OpenAPI)
	}
	if doc.Info.Title != "TableTalk API" {
		t.Errorf("title = %q", doc.Info.Title)
	}

	for _, path := range []string{
		"/api/v1/auth/token",
		"/api/v1/query",
		"/api/v1/query/export",
		"/api/v1/schema",
		"/api/v1/saved-queries",
		"/api/v1/saved-queries/{id}",
		"/api/v1/saved-queries/{id}/run",
		"/api/v1/cache/stats",
		"/api/v1/cache/clear",
		"/api/v1/logs",
		"/api/v1/analytics/dashboard",
		"/api/v1/analytics/slowest",
	} {
		if doc.Paths.Value(path) == nil {
			t.Errorf("missing path %s", path)
		}
	}

	if doc.Components.Schemas["Table_sales"] == nil {
		t.Error("missing table component schema")
	}
	if doc.Components.SecuritySchemes["bearerAuth"] == nil {
		t.Error("missing bearerAuth security scheme")
	}
}

func TestGenerateTokenEndpointIsPublic(t *testing.T) {
	doc := Generate("http://localhost:8080", nil)

	op := doc.Paths.Value("/api/v1/auth/token").Post
	if op.Security == nil || len(*op.Security) != 0 {
		t.Error("token endpoint should carry an empty security requirement")
	}
}

func TestGenerateMarshals(t *testing.T) {
	doc := Generate("http://localhost:8080", testTables())
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty document")
	}
}
