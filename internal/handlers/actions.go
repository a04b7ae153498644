package handlers

import (
	"net/http"

	"resonance/internal/moderation"
)

// HandleTakeAction applies a moderation action to the report in the path
func (h *Handler) HandleTakeAction(w http.ResponseWriter, r *http.Request) {
	var req moderation.ActionInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ReportID = r.PathValue("id")

	action, err := h.service.TakeModerationAction(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, action, "action")
}

// HandleGetAction returns a single moderation action
func (h *Handler) HandleGetAction(w http.ResponseWriter, r *http.Request) {
	action, err := h.service.GetAction(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action, "action")
}

// HandleReverseAction undoes the action in the path
func (h *Handler) HandleReverseAction(w http.ResponseWriter, r *http.Request) {
	var req moderation.ReversalInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActionID = r.PathValue("id")

	action, err := h.service.ReverseAction(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action, "action")
}

// HandleApplyRestriction restricts a user directly
func (h *Handler) HandleApplyRestriction(w http.ResponseWriter, r *http.Request) {
	var req moderation.RestrictionInput
	if !decodeJSON(w, r, &req) {
		return
	}

	restriction, err := h.service.ApplyRestriction(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, restriction, "restriction")
}

// HandleModerationLogs lists moderation actions. Filters: moderator_id,
// target_user_id, action_type, since, until, revoked, limit, offset.
func (h *Handler) HandleModerationLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.service.FetchModerationLogs(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page, "logs")
}

func parseLogFilter(r *http.Request) (moderation.LogFilter, error) {
	q := r.URL.Query()
	filter := moderation.LogFilter{
		ModeratorID:  q.Get("moderator_id"),
		TargetUserID: q.Get("target_user_id"),
		ActionType:   moderation.ActionType(q.Get("action_type")),
	}

	var err error
	if filter.Since, err = queryTime(r, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		return filter, err
	}
	if filter.Revoked, err = queryBool(r, "revoked"); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}
