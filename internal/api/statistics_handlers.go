package api

import (
	"net/http"
)

// handleStatistics returns the aggregate snapshot for the dashboard.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("computing statistics", "request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get statistics")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
