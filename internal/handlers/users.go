package handlers

import (
	"net/http"

	"resonance/internal/database/boltstore"
	"resonance/internal/moderation"
)

// HandleUserRestrictions lists the restrictions recorded for a user
func (h *Handler) HandleUserRestrictions(w http.ResponseWriter, r *http.Request) {
	restrictions, err := h.service.CheckUserRestrictions(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, restrictions, "restrictions")
}

// CapabilityResponse answers whether a user may perform an action
type CapabilityResponse struct {
	UserID  string                `json:"user_id"`
	Action  moderation.Capability `json:"action"`
	Allowed bool                  `json:"allowed"`
}

// HandleCapability reports whether a user may post, comment or upload.
// Content services call it before accepting a write, so it needs no actor.
func (h *Handler) HandleCapability(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	capability := moderation.Capability(r.PathValue("action"))

	allowed, err := h.service.CanUserPerformAction(r.Context(), userID, capability)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CapabilityResponse{UserID: userID, Action: capability, Allowed: allowed}, "capability")
}

// HandleNotifications lists a user's delivered notifications, newest first.
// Users read their own inbox; staff may read anyone's.
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("id")
	if actor.ID != userID && !actor.Role.IsStaff() {
		writeErrorResponse(w, r, http.StatusForbidden, moderation.KindInsufficientPermission, "cannot read another user's notifications")
		return
	}
	if h.inbox == nil {
		writeErrorResponse(w, r, http.StatusServiceUnavailable, moderation.KindDatabase, "notifications are not enabled")
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit < 0 {
		writeErrorResponse(w, r, http.StatusBadRequest, moderation.KindValidation, "limit must not be negative")
		return
	}
	if limit == 0 {
		limit = moderation.DefaultPageSize
	}

	notifications, err := h.inbox.List(r.Context(), userID, min(limit, moderation.MaxPageSize))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []moderation.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications, "notifications")
}

// ContentStatusResponse reports whether content was removed by moderation
type ContentStatusResponse struct {
	ContentType moderation.ReportType `json:"content_type"`
	ContentID   string                `json:"content_id"`
	Removed     bool                  `json:"removed"`
	Tombstone   *boltstore.Tombstone  `json:"tombstone,omitempty"`
}

// HandleContentStatus reports whether a piece of content has been removed.
// Like the capability check it serves content services and needs no actor.
func (h *Handler) HandleContentStatus(w http.ResponseWriter, r *http.Request) {
	if h.content == nil {
		writeErrorResponse(w, r, http.StatusServiceUnavailable, moderation.KindDatabase, "content store is not enabled")
		return
	}
	contentType := moderation.ReportType(r.PathValue("type"))
	if !contentType.Valid() || contentType == moderation.ReportTypeUser {
		writeErrorResponse(w, r, http.StatusBadRequest, moderation.KindValidation, "unknown content type")
		return
	}
	contentID := r.PathValue("id")

	tombstone, err := h.content.GetTombstone(r.Context(), contentType, contentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContentStatusResponse{
		ContentType: contentType,
		ContentID:   contentID,
		Removed:     tombstone != nil,
		Tombstone:   tombstone,
	}, "content status")
}
