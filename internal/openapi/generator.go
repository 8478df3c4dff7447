// Package openapi generates the OpenAPI 3.1 document for the HTTP API. The
// static routes are declared here; the schema components for accessible tables
// are filled in from the live catalog at request time.
package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/tabletalk/tabletalk/internal/model"
)

// Generate builds the API document. tables is the full catalog snapshot; it
// feeds the component schemas so clients can see what a /schema response
// looks like, not what any particular role may query.
func Generate(baseURL string, tables []model.Table) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "TableTalk API",
			Description: "Ask questions about your data in plain language and get back rows from validated, read-only SQL.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
			},
		},
	}
	doc.Components = &components
	doc.Security = openapi3.SecurityRequirements{{"bearerAuth": {}}}

	doc.Components.Schemas["ErrorResponse"] = errorResponseSchema()
	doc.Components.Schemas["Answer"] = answerSchema()
	doc.Components.Schemas["SavedQuery"] = savedQuerySchema()
	doc.Components.Schemas["CacheStats"] = cacheStatsSchema()
	for _, t := range tables {
		doc.Components.Schemas["Table_"+t.Name] = tableSchema(t)
	}

	doc.Paths = openapi3.NewPaths()
	addAuthPaths(doc)
	addQueryPaths(doc)
	addSchemaPath(doc)
	addSavedQueryPaths(doc)
	addSystemPaths(doc)

	return doc
}

func addAuthPaths(doc *openapi3.T) {
	tokenReq := objectSchema(map[string]*openapi3.Schema{
		"user_id":  stringSchema("Stable identifier for the caller."),
		"username": stringSchema("Display name, echoed back in the token."),
		"role":     stringSchema("Access role; unknown roles can query nothing."),
	})
	tokenResp := objectSchema(map[string]*openapi3.Schema{
		"token":    stringSchema("Signed JWT to present as a Bearer credential."),
		"user_id":  stringSchema(""),
		"username": stringSchema(""),
		"role":     stringSchema(""),
	})

	doc.Paths.Set("/api/v1/auth/token", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Issue an access token",
			OperationID: "issue_token",
			Security:    &openapi3.SecurityRequirements{},
			RequestBody: jsonBody("Identity to encode in the token.", tokenReq),
			Responses:   newResponses("200", "Signed token", tokenResp),
		},
	})
	doc.Paths.Set("/api/v1/auth/roles", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "List known roles",
			OperationID: "list_roles",
			Security:    &openapi3.SecurityRequirements{},
			Responses: newResponses("200", "Role names", objectSchema(map[string]*openapi3.Schema{
				"roles": arraySchema(stringSchema("")),
			})),
		},
	})
}

func addQueryPaths(doc *openapi3.T) {
	askReq := objectSchema(map[string]*openapi3.Schema{
		"question": stringSchema("Natural-language question about the data."),
	})

	doc.Paths.Set("/api/v1/query", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"query"},
			Summary:     "Ask a question",
			Description: "Translates the question to SQL, validates it against the caller's table access, and runs it read-only with a row cap and timeout.",
			OperationID: "ask_question",
			RequestBody: jsonBody("The question to answer.", askReq),
			Responses:   newResponsesRef("200", "Rows answering the question", "#/components/schemas/Answer"),
		},
	})

	exportReq := objectSchema(map[string]*openapi3.Schema{
		"question": stringSchema("Natural-language question about the data."),
		"format":   stringSchema("csv (default) or json."),
	})
	doc.Paths.Set("/api/v1/query/export", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"query"},
			Summary:     "Ask a question and download the rows",
			OperationID: "export_answer",
			RequestBody: jsonBody("The question and download format.", exportReq),
			Responses:   newResponses("200", "File download", &openapi3.Schema{Type: &openapi3.Types{"string"}}),
		},
	})
}

func addSchemaPath(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/schema", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"schema"},
			Summary:     "Browse accessible tables",
			Description: "Tables the caller's role cannot query are absent, not marked restricted.",
			OperationID: "browse_schema",
			Responses: newResponses("200", "Tables and columns visible to the caller", objectSchema(map[string]*openapi3.Schema{
				"tables":         arraySchema(&openapi3.Schema{Type: &openapi3.Types{"object"}}),
				"allowed_tables": arraySchema(stringSchema("")),
			})),
		},
	})
}

func addSavedQueryPaths(doc *openapi3.T) {
	saveReq := objectSchema(map[string]*openapi3.Schema{
		"name":     stringSchema("Bookmark name."),
		"question": stringSchema("The question to re-ask on each run."),
		"sql":      stringSchema("Optional SQL snapshot for display."),
	})

	doc.Paths.Set("/api/v1/saved-queries", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "List the caller's saved queries",
			OperationID: "list_saved_queries",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: openapi3.NewQueryParameter("q").
						WithDescription("Filter by name or question text.").
						WithSchema(openapi3.NewStringSchema()),
				},
			},
			Responses: newResponses("200", "Saved queries", objectSchema(map[string]*openapi3.Schema{
				"queries": arraySchema(&openapi3.Schema{Type: &openapi3.Types{"object"}}),
			})),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Save a query bookmark",
			OperationID: "create_saved_query",
			RequestBody: jsonBody("The bookmark to save.", saveReq),
			Responses:   newResponsesRef("201", "The saved query", "#/components/schemas/SavedQuery"),
		},
	})

	idParam := &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()),
	}
	doc.Paths.Set("/api/v1/saved-queries/{id}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Fetch one saved query",
			OperationID: "get_saved_query",
			Parameters:  openapi3.Parameters{idParam},
			Responses:   newResponsesRef("200", "The saved query", "#/components/schemas/SavedQuery"),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Delete a saved query",
			OperationID: "delete_saved_query",
			Parameters:  openapi3.Parameters{idParam},
			Responses: newResponses("200", "Deletion confirmation", objectSchema(map[string]*openapi3.Schema{
				"deleted": {Type: &openapi3.Types{"boolean"}},
			})),
		},
	})
	doc.Paths.Set("/api/v1/saved-queries/{id}/run", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"saved-queries"},
			Summary:     "Re-run a saved query",
			Description: "The saved question goes back through the full pipeline; current schema and access policy apply.",
			OperationID: "run_saved_query",
			Parameters:  openapi3.Parameters{idParam},
			Responses:   newResponsesRef("200", "Rows answering the saved question", "#/components/schemas/Answer"),
		},
	})
}

func addSystemPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/cache/stats", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Result cache statistics",
			OperationID: "cache_stats",
			Responses:   newResponsesRef("200", "Cache statistics", "#/components/schemas/CacheStats"),
		},
	})
	doc.Paths.Set("/api/v1/cache/clear", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Clear the result cache",
			Description: "Admin only. The lifetime hit counter is preserved.",
			OperationID: "cache_clear",
			Responses:   newResponsesRef("200", "Statistics after the clear", "#/components/schemas/CacheStats"),
		},
	})
	doc.Paths.Set("/api/v1/logs", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Recent query log",
			Description: "Admin only.",
			OperationID: "recent_logs",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: openapi3.NewQueryParameter("limit").
						WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
				},
			},
			Responses: newResponses("200", "Newest audit records first", objectSchema(map[string]*openapi3.Schema{
				"logs":  arraySchema(&openapi3.Schema{Type: &openapi3.Types{"object"}}),
				"count": {Type: &openapi3.Types{"integer"}},
			})),
		},
	})
	doc.Paths.Set("/api/v1/analytics/dashboard", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Usage dashboard for the last 24 hours",
			Description: "Admin only.",
			OperationID: "analytics_dashboard",
			Responses:   newResponses("200", "Aggregated usage", &openapi3.Schema{Type: &openapi3.Types{"object"}}),
		},
	})
	doc.Paths.Set("/api/v1/analytics/slowest", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Slowest recent queries",
			Description: "Admin only.",
			OperationID: "analytics_slowest",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: openapi3.NewQueryParameter("n").
						WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
				},
			},
			Responses: newResponses("200", "Slowest queries by latency", objectSchema(map[string]*openapi3.Schema{
				"queries": arraySchema(&openapi3.Schema{Type: &openapi3.Types{"object"}}),
			})),
		},
	})
}

// ─── Schema Builders ────────────────────────────────────────────────────────

func answerSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: objectSchema(map[string]*openapi3.Schema{
		"question":    stringSchema("The question as asked."),
		"sql":         stringSchema("The SQL that produced the rows."),
		"columns":     arraySchema(stringSchema("")),
		"rows":        arraySchema(&openapi3.Schema{Type: &openapi3.Types{"object"}}),
		"row_count":   {Type: &openapi3.Types{"integer"}},
		"source":      stringSchema("generated, template, or cache."),
		"cache_hit":   {Type: &openapi3.Types{"boolean"}},
		"explanation": stringSchema("Optional plain-language summary of the result."),
		"latency_ms":  {Type: &openapi3.Types{"number"}},
	})}
}

func savedQuerySchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: objectSchema(map[string]*openapi3.Schema{
		"query_id":   stringSchema(""),
		"user_id":    stringSchema(""),
		"name":       stringSchema(""),
		"question":   stringSchema(""),
		"sql":        stringSchema(""),
		"run_count":  {Type: &openapi3.Types{"integer"}},
		"created_at": {Type: &openapi3.Types{"string"}, Format: "date-time"},
	})}
}

func cacheStatsSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: objectSchema(map[string]*openapi3.Schema{
		"entry_count": {Type: &openapi3.Types{"integer"}},
		"max_entries": {Type: &openapi3.Types{"integer"}},
		"ttl_seconds": {Type: &openapi3.Types{"integer"}, Format: "int64"},
		"hit_count":   {Type: &openapi3.Types{"integer"}, Format: "int64"},
	})}
}

func tableSchema(t model.Table) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	for _, c := range t.Columns {
		props[c.Name] = &openapi3.SchemaRef{
			Value: stringSchema(fmt.Sprintf("Database type: %s.", c.Type)),
		}
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
		},
	}
}

func errorResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: objectSchema(map[string]*openapi3.Schema{
		"error": objectSchema(map[string]*openapi3.Schema{
			"code":    {Type: &openapi3.Types{"integer"}, Format: "int32"},
			"reason":  stringSchema("Stable machine-readable rejection code."),
			"message": stringSchema(""),
			"context": {Type: &openapi3.Types{"object"}},
		}),
	})}
}

func objectSchema(props map[string]*openapi3.Schema) *openapi3.Schema {
	schemas := openapi3.Schemas{}
	for name, s := range props {
		schemas[name] = &openapi3.SchemaRef{Value: s}
	}
	return &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: schemas,
	}
}

func stringSchema(description string) *openapi3.Schema {
	return &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: description}
}

func arraySchema(items *openapi3.Schema) *openapi3.Schema {
	return &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: &openapi3.SchemaRef{Value: items},
	}
}

func jsonBody(description string, schema *openapi3.Schema) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(&openapi3.SchemaRef{Value: schema}),
		},
	}
}

// ─── Response Helpers ───────────────────────────────────────────────────────

func newResponses(statusCode, description string, schema *openapi3.Schema) *openapi3.Responses {
	return buildResponses(statusCode, description, &openapi3.SchemaRef{Value: schema})
}

func newResponsesRef(statusCode, description, ref string) *openapi3.Responses {
	return buildResponses(statusCode, description, openapi3.NewSchemaRef(ref, nil))
}

func buildResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for code, desc := range map[string]string{
		"400": "Bad request or rejected question",
		"401": "Unauthorized",
		"403": "Table access denied",
		"500": "Internal server error",
	} {
		d := desc
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &d,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}
