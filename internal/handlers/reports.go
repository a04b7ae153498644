package handlers

import (
	"net/http"
	"strings"

	"resonance/internal/moderation"
)

// HandleSubmitReport files a user report
func (h *Handler) HandleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req moderation.ReportInput
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.service.SubmitReport(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report, "report")
}

// HandleFlagContent files a moderator flag
func (h *Handler) HandleFlagContent(w http.ResponseWriter, r *http.Request) {
	var req moderation.FlagInput
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.service.FlagContent(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report, "flag")
}

// QueueResponse is one page of the moderation queue
type QueueResponse struct {
	Reports []moderation.Report `json:"reports"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// HandleQueue lists open reports. Filters: status (repeatable or comma
// separated), report_type, reason, max_priority, moderator_flagged, limit,
// offset.
func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	filter, err := parseQueueFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	reports, err := h.service.FetchModerationQueue(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := min(filter.Limit, moderation.MaxPageSize)
	if limit == 0 {
		limit = moderation.DefaultPageSize
	}
	writeJSON(w, http.StatusOK, QueueResponse{Reports: reports, Limit: limit, Offset: filter.Offset}, "queue")
}

func parseQueueFilter(r *http.Request) (moderation.QueueFilter, error) {
	q := r.URL.Query()
	filter := moderation.QueueFilter{
		ReportType: moderation.ReportType(q.Get("report_type")),
		Reason:     moderation.ReportReason(q.Get("reason")),
	}
	for _, raw := range q["status"] {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				filter.Statuses = append(filter.Statuses, moderation.ReportStatus(st))
			}
		}
	}

	var err error
	if filter.MaxPriority, err = queryInt(r, "max_priority"); err != nil {
		return filter, err
	}
	if filter.ModeratorFlagged, err = queryBool(r, "moderator_flagged"); err != nil {
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

// HandleGetReport returns a single report
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetReport(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report, "report")
}
