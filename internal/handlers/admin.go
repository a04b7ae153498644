package handlers

import (
	"net/http"

	"resonance/internal/moderation"
)

// HandleAuditLog returns the most recent audit entries. Admin only.
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := h.service.ListAuditLog(r.Context(), actorFrom(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []moderation.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries, "audit log")
}

// HandleStats returns the derived moderation figures. Staff only.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	if !actor.Role.IsStaff() {
		writeErrorResponse(w, r, http.StatusForbidden, moderation.KindInsufficientPermission, "staff only")
		return
	}

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats, "stats")
}
