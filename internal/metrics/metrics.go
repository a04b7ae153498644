package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_http_requests_total",
		Help: "Total number of HTTP requests by matched route",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resonance_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Event counters (incremented on occurrence)
var (
	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_reports_total",
		Help: "Total number of reports created",
	}, []string{"source", "reason"})

	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_moderation_actions_total",
		Help: "Total number of moderation actions applied",
	}, []string{"action_type"})

	ReversalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_moderation_reversals_total",
		Help: "Total number of moderation actions reversed",
	}, []string{"action_type", "self_reversal"})

	RestrictionsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_restrictions_applied_total",
		Help: "Total number of restrictions written, by outcome (created or updated)",
	}, []string{"restriction_type", "outcome"})

	ExpirationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_restrictions_expired_total",
		Help: "Total number of restrictions deactivated by the expiration scheduler",
	}, []string{"kind"})

	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_rate_limit_rejections_total",
		Help: "Total number of operations rejected by the rate limiter",
	}, []string{"bucket"})

	AuthorizationDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_authorization_denials_total",
		Help: "Total number of operations denied by the authorization guard",
	}, []string{"operation"})

	NotificationsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonance_notifications_delivered_total",
		Help: "Total number of notification events handed to the notifier",
	}, []string{"status"})
)

// Business metrics (gauges updated periodically by collector)
var (
	ReportsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resonance_reports_by_status",
		Help: "Number of reports by status",
	}, []string{"status"})

	ActiveRestrictions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resonance_active_restrictions",
		Help: "Number of restrictions currently in force by type",
	}, []string{"restriction_type"})

	ActionsByType = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resonance_moderation_actions_by_type",
		Help: "Number of recorded moderation actions by type",
	}, []string{"action_type"})

	RevokedActions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resonance_moderation_actions_revoked",
		Help: "Number of moderation actions that have been reversed",
	})

	PendingNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resonance_notifications_pending",
		Help: "Number of notification events waiting in the outbox",
	})

	ExpiredAwaitingDeactivation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resonance_restrictions_expired_pending",
		Help: "Number of restrictions past expiry whose stored flag is still active",
	})
)

// NormalizePath replaces dynamic path segments with placeholders. It names
// trace spans, which start before the router has matched a pattern.
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) < 2 {
		return path
	}

	switch segments[0] {
	case "mod":
		switch {
		case len(segments) == 3 && (segments[1] == "reports" || segments[1] == "actions"):
			return "/mod/" + segments[1] + "/:id"
		case len(segments) == 4 && segments[1] == "reports" && segments[3] == "actions":
			return "/mod/reports/:id/actions"
		case len(segments) == 4 && segments[1] == "actions" && segments[3] == "reverse":
			return "/mod/actions/:id/reverse"
		}
	case "users":
		switch {
		case len(segments) == 3 && segments[2] == "notifications":
			return "/users/:id/notifications"
		case len(segments) == 3 && segments[2] == "restrictions":
			return "/users/:id/restrictions"
		case len(segments) == 4 && segments[2] == "capabilities":
			return "/users/:id/capabilities/:action"
		}
	case "content":
		if len(segments) == 3 {
			return "/content/:type/:id"
		}
	}

	return path
}

func splitPath(path string) []string {
	// Skip leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	// Split on /
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}
