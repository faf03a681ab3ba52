package api

import (
	"net/http"

	"github.com/clipshare/backend/internal/auth"
	apperrors "github.com/clipshare/backend/internal/errors"
	"github.com/clipshare/backend/internal/health"
	"github.com/clipshare/backend/internal/logger"
	"github.com/clipshare/backend/internal/media"
	"github.com/clipshare/backend/internal/metrics"
	"github.com/clipshare/backend/internal/middleware"
)

type Router struct {
	mux            *http.ServeMux
	authHandlers   *auth.Handlers
	tokens         *auth.TokenManager
	mediaHandlers  *media.Handler
	healthHandlers *health.Handler
	corsOrigins    []string
}

func NewRouter(authHandlers *auth.Handlers, tokens *auth.TokenManager, mediaHandlers *media.Handler, healthHandlers *health.Handler, corsOrigins []string) *Router {
	r := &Router{
		mux:            http.NewServeMux(),
		authHandlers:   authHandlers,
		tokens:         tokens,
		mediaHandlers:  mediaHandlers,
		healthHandlers: healthHandlers,
		corsOrigins:    corsOrigins,
	}
	r.setupRoutes()
	return r
}

// Handler returns the router wrapped in the shared middleware chain.
func (r *Router) Handler() http.Handler {
	var h http.Handler = r.mux
	h = middleware.ETag(h)
	h = middleware.Gzip(h)
	h = middleware.CORS(r.corsOrigins)(h)
	h = metrics.Middleware(metrics.Default())(h)
	h = logger.LoggingMiddleware(h)
	h = apperrors.RequestIDMiddleware(h)
	h = logger.RecoveryMiddleware(h)
	return h
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	// Health checks
	r.mux.HandleFunc("GET /health", r.healthHandlers.HealthHandler)
	r.mux.HandleFunc("GET /health/live", r.healthHandlers.LivenessHandler)
	r.mux.HandleFunc("GET /health/ready", r.healthHandlers.ReadinessHandler)
	r.mux.HandleFunc("GET /metrics", metrics.Default().Handler())

	// Account routes (no auth required)
	r.mux.HandleFunc("POST /api/v1/users/register", apperrors.HandleFunc(r.authHandlers.Register))
	r.mux.HandleFunc("POST /api/v1/users/login", apperrors.HandleFunc(r.authHandlers.Login))
	r.mux.HandleFunc("POST /api/v1/users/refresh-token", apperrors.HandleFunc(r.authHandlers.Refresh))

	// Account routes (auth required)
	r.mux.HandleFunc("POST /api/v1/users/logout", r.withAuth(apperrors.HandleFunc(r.authHandlers.Logout)))
	r.mux.HandleFunc("POST /api/v1/users/change-password", r.withAuth(apperrors.HandleFunc(r.authHandlers.ChangePassword)))
	r.mux.HandleFunc("GET /api/v1/users/me", r.withAuth(apperrors.HandleFunc(r.authHandlers.Me)))

	// Stored media (avatars, cover images)
	r.mux.HandleFunc("GET /api/v1/media/{key...}", apperrors.HandleFunc(r.mediaHandlers.Serve))
}

func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	mw := auth.Middleware(r.tokens)
	return func(w http.ResponseWriter, req *http.Request) {
		mw(http.HandlerFunc(next)).ServeHTTP(w, req)
	}
}
