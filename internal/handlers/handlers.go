// Package handlers exposes the moderation engine as a JSON HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resonance/internal/database/boltstore"
	"resonance/internal/middleware"
	"resonance/internal/moderation"

	"github.com/rs/zerolog/log"
)

// Handler contains all HTTP handler methods and their dependencies.
type Handler struct {
	service *moderation.Service
	inbox   *boltstore.InboxStore
	content *boltstore.ContentStore
}

// NewHandler creates a new Handler. The inbox and content stores back the
// notification and content status reads and may be nil, in which case those
// routes answer 503.
func NewHandler(service *moderation.Service, inbox *boltstore.InboxStore, content *boltstore.ContentStore) *Handler {
	return &Handler{
		service: service,
		inbox:   inbox,
		content: content,
	}
}

// ErrorResponse is the JSON body written for every failed request
type ErrorResponse struct {
	Status  string               `json:"status"`
	Code    moderation.ErrorKind `json:"code"`
	Message string               `json:"message"`
}

// statusFor maps an engine error kind to its HTTP status code
func statusFor(kind moderation.ErrorKind) int {
	switch kind {
	case moderation.KindValidation:
		return http.StatusBadRequest
	case moderation.KindUnauthorized:
		return http.StatusUnauthorized
	case moderation.KindInsufficientPermission:
		return http.StatusForbidden
	case moderation.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case moderation.KindNotFound:
		return http.StatusNotFound
	case moderation.KindInvalidAction, moderation.KindConcurrentModification:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any, entityName string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode " + entityName + " response")
	}
}

// writeError writes the JSON error body for err. Database failures are
// logged and reported without their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := moderation.KindOf(err)
	message := err.Error()
	var e *moderation.Error
	if errors.As(err, &e) && e.Message != "" {
		message = e.Message
	}
	if kind == moderation.KindDatabase {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("moderation: request failed")
		message = "internal error"
	}
	writeErrorResponse(w, r, statusFor(kind), kind, message)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, kind moderation.ErrorKind, message string) {
	middleware.SetErrorCode(r.Context(), string(kind))
	writeJSON(w, status, ErrorResponse{
		Status:  "error",
		Code:    kind,
		Message: message,
	}, "error")
}

// decodeJSON decodes the request body into target, writing a validation
// error response and returning false on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	if !isJSONRequest(r) {
		writeErrorResponse(w, r, http.StatusUnsupportedMediaType, moderation.KindValidation, "Content-Type must be application/json")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, moderation.KindValidation, "request body too large")
			return false
		}
		writeErrorResponse(w, r, http.StatusBadRequest, moderation.KindValidation, "invalid JSON body")
		return false
	}
	return true
}

// isJSONRequest checks if the request has a JSON content type
func isJSONRequest(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return strings.Contains(contentType, "application/json")
}

// actorFrom returns the authenticated actor, or the zero actor which the
// engine rejects as unauthorized
func actorFrom(r *http.Request) moderation.Actor {
	actor, _ := middleware.ActorFromContext(r.Context())
	return actor
}

// requireAuth writes a 401 and returns false when the request carries no actor
func requireAuth(w http.ResponseWriter, r *http.Request) (moderation.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, r, http.StatusUnauthorized, moderation.KindUnauthorized, "authentication required")
		return moderation.Actor{}, false
	}
	return actor, true
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &moderation.Error{Kind: moderation.KindValidation, Message: name + " must be an integer"}
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &moderation.Error{Kind: moderation.KindValidation, Message: name + " must be a boolean"}
	}
	return &b, nil
}

// queryTime parses an optional RFC 3339 timestamp query parameter
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, &moderation.Error{Kind: moderation.KindValidation, Message: name + " must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

// HandleHealth reports that the server is up
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "health")
}
