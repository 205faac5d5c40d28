package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"tracepoint-dashboard-api/internal/config"
	"tracepoint-dashboard-api/internal/handler"
	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/middleware"
	apperrors "tracepoint-dashboard-api/pkg/errors"
)

// Handlers groups the HTTP handlers served by the router. Stream may be nil.
type Handlers struct {
	Dashboard handler.DashboardHandlerInterface
	Auth      handler.AuthHandlerInterface
	Stream    http.Handler
}

// NewRouter creates a new router and sets up the routes with security middleware.
func NewRouter(h Handlers, cfg *config.Config, log logger.Logger) *mux.Router {
	r := mux.NewRouter()

	// Initialize security middleware
	securityMW := middleware.NewSecurityMiddleware(&cfg.Security, log)

	// Apply global middleware in order
	r.Use(securityMW.Recover)
	r.Use(securityMW.SecurityHeaders)
	r.Use(securityMW.CORS)
	r.Use(securityMW.TrustedProxy)
	r.Use(securityMW.RateLimit)
	r.Use(securityMW.RequestTimeout)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Preflight requests must match a route for the middleware to run
	api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	// Dashboard views
	api.HandleFunc("/devices", h.Dashboard.ListDevicesHandler).Methods("GET")
	api.HandleFunc("/devices/{deviceId}", h.Dashboard.GetDeviceHandler).Methods("GET")
	api.HandleFunc("/crashes", h.Dashboard.CrashAnalysisHandler).Methods("GET")
	api.HandleFunc("/trends", h.Dashboard.TrendsHandler).Methods("GET")
	api.HandleFunc("/overview", h.Dashboard.OverviewHandler).Methods("GET")
	if h.Stream != nil {
		api.Handle("/ws/overview", h.Stream).Methods("GET")
	}

	// Maintenance
	api.HandleFunc("/cache/invalidate", h.Dashboard.InvalidateCacheHandler).Methods("POST")

	// Auth placeholder
	if h.Auth != nil {
		api.HandleFunc("/auth/login", h.Auth.LoginHandler).Methods("POST")
		api.HandleFunc("/auth/signup", h.Auth.SignupHandler).Methods("POST")
		api.HandleFunc("/auth/logout", h.Auth.LogoutHandler).Methods("POST")
		api.HandleFunc("/auth/me", h.Auth.MeHandler).Methods("GET")
	}

	// Health check
	api.HandleFunc("/health", h.Dashboard.HealthHandler).Methods("GET", "HEAD")

	return r
}

var routeErrors = handler.NewErrorHandler(nil)

func notFound(w http.ResponseWriter, r *http.Request) {
	routeErrors.SendAppError(r.Context(), w, apperrors.NotFoundError("Route"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	routeErrors.SendAppError(r.Context(), w,
		apperrors.NewAppError(apperrors.ErrorCodeMethodNotAllowed, "Method not allowed"))
}
