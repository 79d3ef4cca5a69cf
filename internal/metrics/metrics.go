package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tangled.org/arabica.social/sanctions/internal/moderation"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sanctions_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sanctions_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Moderation outcomes
const (
	OutcomeCommitted   = "committed"
	OutcomeRejected    = "rejected"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Event counters (incremented on occurrence)
var (
	ModerationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sanctions_moderation_actions_total",
		Help: "Total number of moderation attempts by action and outcome",
	}, []string{"action", "outcome"})

	ModerationRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sanctions_moderation_rejections_total",
		Help: "Total number of field-scoped moderation rejections by field",
	}, []string{"field"})

	ReportPrefillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sanctions_report_prefills_total",
		Help: "Total number of moderation forms pre-filled from a report",
	})
)

// Business metrics (gauges updated periodically by collector)
var (
	ActiveSanctionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sanctions_active_total",
		Help: "Number of targets with an active sanction",
	})

	StoreUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sanctions_store_up",
		Help: "Whether the last collector read of the store succeeded (1=ok, 0=failed)",
	})
)

// LabelInvalid is the action label for codes that select no action.
const LabelInvalid = "invalid"

// ActionLabel maps an action form code to a bounded label value.
func ActionLabel(code string) string {
	if a, ok := moderation.ActionByCode(code); ok {
		return a.String()
	}
	return LabelInvalid
}

// RouteOther labels every path that matches no known route.
const RouteOther = "other"

var knownRoutes = map[string]bool{
	"/healthz":          true,
	"/metrics":          true,
	"/admin/moderation": true,
	"/admin/audit":      true,
	"/admin/stats":      true,
}

// NormalizePath maps a request path to its route label. Dynamic segments
// become placeholders and unknown paths share RouteOther, so the label
// space stays bounded.
func NormalizePath(path string) string {
	if knownRoutes[path] {
		return path
	}

	// /admin/moderation/{username}/sanctions
	segments := splitPath(path)
	if len(segments) == 4 && segments[0] == "admin" && segments[1] == "moderation" && segments[3] == "sanctions" {
		return "/admin/moderation/:username/sanctions"
	}

	return RouteOther
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
