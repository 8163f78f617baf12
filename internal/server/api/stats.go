package api

import (
	"net/http"

	"github.com/ayusman/signlearn/internal/pipeline"
	"github.com/ayusman/signlearn/internal/store"
)

// StatsHandler serves GET /api/stats: live counters from the session registry
// and, when a backend is configured, the stored prediction summary.
type StatsHandler struct {
	registry *pipeline.Registry
	store    store.Backend
}

func NewStatsHandler(registry *pipeline.Registry, s store.Backend) *StatsHandler {
	return &StatsHandler{registry: registry, store: s}
}

type statsResponse struct {
	Live   pipeline.Summary `json:"live"`
	Stored *store.Summary   `json:"stored,omitempty"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statsResponse{Live: h.registry.Summary()}
	if h.store != nil {
		sum, err := h.store.Summary(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to summarize predictions")
			return
		}
		resp.Stored = sum
	}
	writeJSON(w, http.StatusOK, resp)
}
