package handler

import (
	"net/http"

	"github.com/tabletalk/tabletalk/internal/analytics"
	"github.com/tabletalk/tabletalk/internal/pipeline"
)

// SystemHandler covers the operational endpoints: cache inspection and the
// usage analytics views. The mutating and analytics routes are admin-only,
// enforced by the router's middleware chain.
type SystemHandler struct {
	pipe    *pipeline.Pipeline
	tracker *analytics.Tracker
}

func NewSystemHandler(pipe *pipeline.Pipeline, tracker *analytics.Tracker) *SystemHandler {
	return &SystemHandler{pipe: pipe, tracker: tracker}
}

// CacheStats handles GET /cache/stats.
func (h *SystemHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipe.CacheStats())
}

// CacheClear handles POST /cache/clear. The lifetime hit counter survives a
// clear.
func (h *SystemHandler) CacheClear(w http.ResponseWriter, r *http.Request) {
	h.pipe.ClearCache()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": true,
		"stats":   h.pipe.CacheStats(),
	})
}

// Dashboard handles GET /analytics/dashboard.
func (h *SystemHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Dashboard())
}

// Slowest handles GET /analytics/slowest.
func (h *SystemHandler) Slowest(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 10)
	if n < 1 || n > 100 {
		n = 10
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queries": h.tracker.Slowest(n),
	})
}
