package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tracepoint-dashboard-api/internal/cache"
	"tracepoint-dashboard-api/internal/config"
	"tracepoint-dashboard-api/internal/crashes"
	"tracepoint-dashboard-api/internal/database"
	"tracepoint-dashboard-api/internal/handler"
	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/middleware"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/repository"
	"tracepoint-dashboard-api/internal/router"
	"tracepoint-dashboard-api/internal/service"
	"tracepoint-dashboard-api/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(os.Stderr, cfg.LogLevel)

	// Initialize telemetry client
	client := telemetry.NewClient(telemetry.Config{
		BaseURL:        cfg.Upstream.URL,
		Timeout:        cfg.Upstream.Timeout,
		RetryAttempts:  cfg.Upstream.RetryAttempts,
		RetryDelay:     cfg.Upstream.RetryDelay,
		MaxPayloadSize: cfg.Upstream.MaxPayloadSize,
	}, appLogger)

	source, err := crashes.NewSource(cfg.Dashboard.CrashSource, client, appLogger, cfg.Upstream.Concurrency)
	if err != nil {
		log.Fatalf("Failed to initialize crash source: %v", err)
	}

	dashboard := service.NewDashboardService(
		client,
		source,
		cache.New[model.DeviceRecord](cfg.Dashboard.CacheTTL, nil),
		telemetry.NewLatest(),
		service.DashboardOptions{
			TrendPoints:  cfg.Dashboard.TrendPoints,
			LookbackDays: cfg.Dashboard.CrashLookbackDays,
		},
		appLogger,
	)

	// Initialize user store
	ctx := context.Background()
	var users repository.UserRepository
	switch cfg.AuthStore {
	case config.AuthStorePostgres:
		db, err := database.InitDB(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		users = repository.NewUserRepository(db)
	default:
		users = repository.NewMemoryUserRepository()
	}

	auth := service.NewAuthService(users, 0, appLogger)
	if err := auth.Seed(ctx); err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}

	// Initialize handlers
	dashboardHandler := handler.NewDashboardHandler(dashboard, client, appLogger)
	h := router.Handlers{
		Dashboard: dashboardHandler,
		Auth:      handler.NewAuthHandler(auth, appLogger),
		Stream:    handler.NewOverviewStreamHandler(dashboardHandler, cfg.Dashboard.RefreshInterval, cfg.Security.AllowedOrigins),
	}

	// Setup router with security configuration
	r := router.NewRouter(h, cfg, appLogger)

	// Wrap router with logging middleware
	finalHandler := middleware.NewLoggingMiddleware(appLogger).LogRequests(r)

	// Configure server with security settings
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        finalHandler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Channel to listen for interrupt signal to gracefully shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		appLogger.Info("Starting server on port %d, upstream %s", cfg.Port, cfg.Upstream.URL)
		appLogger.Info("Security: Rate limit=%d RPS, Burst=%d, CORS=%v, Timeout=%v",
			cfg.Security.RateLimitRPS,
			cfg.Security.RateLimitBurst,
			cfg.Security.EnableCORS,
			cfg.Security.RequestTimeout,
		)
		appLogger.Info("Dashboard: crash source=%s, cache TTL=%v, refresh=%v, auth store=%s",
			cfg.Dashboard.CrashSource,
			cfg.Dashboard.CacheTTL,
			cfg.Dashboard.RefreshInterval,
			cfg.AuthStore,
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Block until we receive a signal
	<-done
	appLogger.Info("Server is shutting down...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Security.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown: %v", err)
	} else {
		appLogger.Info("Server exited gracefully")
	}
}
