package api

import (
	"net/http"
	"strconv"

	"github.com/maxsfamily/stripgate/internal/audit"
)

// handleListAudit returns paginated audit entries with optional filters.
//
// Query parameters:
//   - device_id, user_id: exact match
//   - source: platform, operator or mqtt
//   - status: DONE or ERROR
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID: q.Get("device_id"),
		UserID:   q.Get("user_id"),
		Source:   q.Get("source"),
		Status:   q.Get("status"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
