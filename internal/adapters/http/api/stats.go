package api

import "net/http"

// StatsProvider reports service counters and wiring for GET /stats.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a stats handler. A nil provider yields an empty object.
func NewStatsHandler(p StatsProvider) *StatsHandler {
	return &StatsHandler{provider: p}
}

func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]any{}
	if h.provider != nil {
		stats = h.provider.GetStats()
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, stats)
}
