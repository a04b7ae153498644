package routing

import (
	"net/http"

	"resonance/internal/handlers"
	"resonance/internal/metrics"
	"resonance/internal/middleware"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers *handlers.Handler
	Actors   middleware.ActorResolver
	Logger   zerolog.Logger
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Report intake
	mux.HandleFunc("POST /reports", h.HandleSubmitReport)
	mux.HandleFunc("POST /mod/flags", h.HandleFlagContent)

	// Queue and report review
	mux.HandleFunc("GET /mod/queue", h.HandleQueue)
	mux.HandleFunc("GET /mod/reports/{id}", h.HandleGetReport)
	mux.HandleFunc("POST /mod/reports/{id}/actions", h.HandleTakeAction)

	// Action log and reversal
	mux.HandleFunc("GET /mod/logs", h.HandleModerationLogs)
	mux.HandleFunc("GET /mod/actions/{id}", h.HandleGetAction)
	mux.HandleFunc("POST /mod/actions/{id}/reverse", h.HandleReverseAction)

	// Restrictions
	mux.HandleFunc("POST /mod/restrictions", h.HandleApplyRestriction)
	mux.HandleFunc("GET /users/{id}/restrictions", h.HandleUserRestrictions)
	mux.HandleFunc("GET /users/{id}/capabilities/{action}", h.HandleCapability)

	// Collaborator reads
	mux.HandleFunc("GET /users/{id}/notifications", h.HandleNotifications)
	mux.HandleFunc("GET /content/{type}/{id}", h.HandleContentStatus)

	// Admin
	mux.HandleFunc("GET /mod/audit", h.HandleAuditLog)
	mux.HandleFunc("GET /mod/stats", h.HandleStats)

	// Apply middleware in order (outermost first, innermost last)
	// Record the matched pattern for logs and metrics
	handler := middleware.RouteRecorder(mux)

	// 1. Limit request body size (innermost - runs first on request)
	handler = middleware.LimitBodyMiddleware(handler)

	// 2. Compress responses
	handler = gzhttp.GzipHandler(handler)

	// 3. Trace requests
	handler = otelhttp.NewHandler(handler, "resonance",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + metrics.NormalizePath(r.URL.Path)
		}),
	)

	// 4. Log and count requests per route
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	// 5. Resolve the actor (outermost, so the request log carries it)
	handler = middleware.ActorMiddleware(cfg.Actors)(handler)

	return handler
}
