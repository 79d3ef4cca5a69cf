package routing

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tangled.org/arabica.social/sanctions/internal/handlers"
	"tangled.org/arabica.social/sanctions/internal/middleware"
	"tangled.org/arabica.social/sanctions/internal/tracing"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers   *handlers.Handler
	Identities middleware.IdentityGetter
	// ActorHeader names the trusted header carrying the acting identity id.
	// Defaults to middleware.DefaultActorHeader.
	ActorHeader string
	Logger      zerolog.Logger
	// RateLimits overrides the per-IP request limits. Nil uses the defaults.
	RateLimits *middleware.RateLimitConfig
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Create CrossOriginProtection for CSRF protection
	cop := http.NewCrossOriginProtection()

	// Moderation
	mux.HandleFunc("GET /admin/moderation", h.HandleModerationForm)
	mux.Handle("POST /admin/moderation", cop.Handler(http.HandlerFunc(h.HandleModerate)))
	mux.HandleFunc("GET /admin/moderation/{username}/sanctions", h.HandleSanctionHistory)

	// Admin
	mux.HandleFunc("GET /admin/audit", h.HandleAuditLog)
	mux.HandleFunc("GET /admin/stats", h.HandleAdminStats)

	// Operational
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	// Apply middleware in order (outermost first, innermost last)
	var handler http.Handler = mux

	// 1. Limit request body size (innermost - runs first on request)
	handler = middleware.LimitBodyMiddleware(handler)

	// 2. Apply rate limiting
	rateLimitConfig := cfg.RateLimits
	if rateLimitConfig == nil {
		rateLimitConfig = middleware.NewDefaultRateLimitConfig()
	}
	handler = middleware.RateLimitMiddleware(rateLimitConfig)(handler)

	// 3. Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// 4. Compress responses
	handler = gzhttp.GzipHandler(handler)

	// 5. Apply logging middleware
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	// 6. Resolve the acting identity. This sits outside logging so the
	// request log carries the actor.
	header := cfg.ActorHeader
	if header == "" {
		header = middleware.DefaultActorHeader
	}
	handler = middleware.ActorMiddleware(header, cfg.Identities)(handler)

	// 7. Trace every request (outermost)
	return otelhttp.NewHandler(handler, tracing.ServiceName)
}
