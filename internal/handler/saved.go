package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tabletalk/tabletalk/internal/pipeline"
	"github.com/tabletalk/tabletalk/internal/server/middleware"
	"github.com/tabletalk/tabletalk/internal/store"
)

// SavedQueryHandler manages per-user query bookmarks. Every operation is
// scoped to the authenticated user; one user cannot see or run another's
// saved queries.
type SavedQueryHandler struct {
	store *store.Store
	pipe  *pipeline.Pipeline
}

func NewSavedQueryHandler(st *store.Store, pipe *pipeline.Pipeline) *SavedQueryHandler {
	return &SavedQueryHandler{store: st, pipe: pipe}
}

type saveRequest struct {
	Name     string `json:"name"`
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// Create handles POST /saved-queries.
func (h *SavedQueryHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req saveRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "name and question are required")
		return
	}

	saved, err := h.store.SaveQuery(r.Context(), id.UserID, req.Name, req.Question, req.SQL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not save the query")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// List handles GET /saved-queries. An optional ?q= term filters by name or
// question text.
func (h *SavedQueryHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var (
		queries interface{}
		err     error
	)
	if term := strings.TrimSpace(r.URL.Query().Get("q")); term != "" {
		queries, err = h.store.SearchSavedQueries(r.Context(), id.UserID, term)
	} else {
		queries, err = h.store.ListSavedQueries(r.Context(), id.UserID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list saved queries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queries": queries})
}

// Get handles GET /saved-queries/{id}.
func (h *SavedQueryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	saved, err := h.store.GetSavedQuery(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "saved query not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load the saved query")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Run handles POST /saved-queries/{id}/run: re-ask the saved question through
// the full pipeline. The stored SQL is not executed directly, so a schema or
// policy change since the bookmark was created still applies.
func (h *SavedQueryHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	saved, err := h.store.GetSavedQuery(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "saved query not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load the saved query")
		return
	}

	ans, rej := h.pipe.HandleQuestion(r.Context(), id, saved.Question)
	if rej != nil {
		writeRejection(w, rej)
		return
	}
	// The run counter is best effort.
	_ = h.store.TouchSavedQuery(r.Context(), id.UserID, saved.ID)
	writeJSON(w, http.StatusOK, ans)
}

// Delete handles DELETE /saved-queries/{id}.
func (h *SavedQueryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.store.DeleteSavedQuery(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "saved query not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not delete the saved query")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}
