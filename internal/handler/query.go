package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/tabletalk/tabletalk/internal/pipeline"
	"github.com/tabletalk/tabletalk/internal/server/middleware"
	"github.com/tabletalk/tabletalk/internal/store"
)

// QueryHandler serves the question-answering endpoints.
type QueryHandler struct {
	pipe  *pipeline.Pipeline
	store *store.Store
}

func NewQueryHandler(pipe *pipeline.Pipeline, st *store.Store) *QueryHandler {
	return &QueryHandler{pipe: pipe, store: st}
}

type askRequest struct {
	Question string `json:"question"`
}

// Ask handles POST /query: run a natural-language question through the
// pipeline and return the answer.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req askRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ans, rej := h.pipe.HandleQuestion(r.Context(), id, req.Question)
	if rej != nil {
		writeRejection(w, rej)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

type exportRequest struct {
	Question string `json:"question"`
	Format   string `json:"format"` // "csv" or "json"
}

// Export handles POST /query/export: answer a question and stream the rows
// as a CSV or JSON download.
func (h *QueryHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req exportRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Format == "" {
		req.Format = "csv"
	}
	if req.Format != "csv" && req.Format != "json" {
		writeError(w, http.StatusBadRequest, "format must be csv or json")
		return
	}

	ans, rej := h.pipe.HandleQuestion(r.Context(), id, req.Question)
	if rej != nil {
		writeRejection(w, rej)
		return
	}

	if req.Format == "json" {
		w.Header().Set("Content-Disposition", `attachment; filename="results.json"`)
		writeJSON(w, http.StatusOK, ans.Rows)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	cw := csv.NewWriter(w)
	cw.Write(ans.Columns)
	for _, row := range ans.Rows {
		record := make([]string, len(ans.Columns))
		for i, col := range ans.Columns {
			if v, ok := row[col]; ok && v != nil {
				record[i] = fmt.Sprint(v)
			}
		}
		cw.Write(record)
	}
	cw.Flush()
}

// Logs handles GET /logs: the newest audit records. Admin-only, enforced by
// the route's middleware chain.
func (h *QueryHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	logs, err := h.store.RecentLogs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read the query log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}
