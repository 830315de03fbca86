package httpapi

import (
	"net/http"
	"strconv"
	"time"
)

// handleClearConverters implements GET /v1alpha/clear/converters:
// evicts every entry from the Options Cache.
func (s *Server) handleClearConverters(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleClearResults implements GET /v1alpha/clear/results?older_then=<sec>:
// bulk-deletes completed tasks older than olderThen seconds,
// defaulting to defaultResultsMaxAge.
func (s *Server) handleClearResults(w http.ResponseWriter, r *http.Request) {
	olderThan := defaultResultsMaxAge
	if raw := r.URL.Query().Get("older_then"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, "older_then must be a non-negative integer")
			return
		}
		olderThan = time.Duration(secs) * time.Second
	}
	s.orch.ClearResults(olderThan)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
