package handler

import (
	"net/http"
	"sort"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/model"
	"github.com/tabletalk/tabletalk/internal/policy"
	"github.com/tabletalk/tabletalk/internal/server/middleware"
)

// SchemaHandler exposes the database schema, filtered to what the caller's
// role may see.
type SchemaHandler struct {
	catalog *catalog.Catalog
	policy  *policy.Policy
}

func NewSchemaHandler(cat *catalog.Catalog, pol *policy.Policy) *SchemaHandler {
	return &SchemaHandler{catalog: cat, policy: pol}
}

// Browse handles GET /schema. Tables the role cannot query are absent from
// the response, not marked as restricted.
func (h *SchemaHandler) Browse(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	snap, err := h.catalog.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load the schema catalog")
		return
	}

	visible, allowed := h.policy.Resolve(id.Role, snap.Tables)

	tables := make([]model.Table, 0, len(visible))
	for _, t := range visible {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tables":         tables,
		"allowed_tables": allowed,
		"fetched_at":     snap.FetchedAt,
	})
}
