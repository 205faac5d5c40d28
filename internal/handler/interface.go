package handler

import (
	"context"
	"net/http"

	"tracepoint-dashboard-api/internal/cache"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/service"
)

// DashboardService is what the dashboard handlers need from the service layer.
type DashboardService interface {
	ListDevices(ctx context.Context, q service.DeviceListQuery) (*service.DeviceList, error)
	DeviceDetail(ctx context.Context, deviceID string) (*service.DeviceDetail, error)
	CrashAnalysis(ctx context.Context, q service.CrashQuery) (*service.CrashAnalysis, error)
	Trends(ctx context.Context, days int) (*service.TrendReport, error)
	Overview(ctx context.Context) (*service.OverviewReport, error)
	InvalidateCache(prefix string) int
	CacheStats() cache.Stats
}

// AuthService is what the auth handlers need from the service layer.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Signup(ctx context.Context, name, email, password string) (*service.Session, error)
	Logout(token string)
	CurrentUser(ctx context.Context, token string) (*model.User, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

var (
	_ DashboardService = (*service.DashboardService)(nil)
	_ AuthService      = (*service.AuthService)(nil)
)

// DashboardHandlerInterface defines the contract for dashboard HTTP handlers.
// This interface enables easy testing, mocking, and dependency injection.
type DashboardHandlerInterface interface {
	// Views
	ListDevicesHandler(w http.ResponseWriter, r *http.Request)
	GetDeviceHandler(w http.ResponseWriter, r *http.Request)
	CrashAnalysisHandler(w http.ResponseWriter, r *http.Request)
	TrendsHandler(w http.ResponseWriter, r *http.Request)
	OverviewHandler(w http.ResponseWriter, r *http.Request)

	// Maintenance
	InvalidateCacheHandler(w http.ResponseWriter, r *http.Request)

	// Health and monitoring
	HealthHandler(w http.ResponseWriter, r *http.Request)
}

// AuthHandlerInterface defines the contract for auth HTTP handlers.
type AuthHandlerInterface interface {
	LoginHandler(w http.ResponseWriter, r *http.Request)
	SignupHandler(w http.ResponseWriter, r *http.Request)
	LogoutHandler(w http.ResponseWriter, r *http.Request)
	MeHandler(w http.ResponseWriter, r *http.Request)
}

// Ensure handlers implement their interfaces at compile time
var (
	_ DashboardHandlerInterface = (*DashboardHandler)(nil)
	_ AuthHandlerInterface      = (*AuthHandler)(nil)
	_ http.Handler              = (*OverviewStreamHandler)(nil)
)
