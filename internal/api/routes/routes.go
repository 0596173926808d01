package routes

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/api/handlers"
	"github.com/argus-sec/argus/internal/api/middleware"
	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/gateway"
	"github.com/argus-sec/argus/internal/limiter"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

// Register wires up API routes, performs automatic migrations and mounts
// the security pipeline in front of everything under /api.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.BlockedIP{},
		&models.TrustedIP{},
		&models.SecurityEvent{},
		&models.RateLimitAudit{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Services
	eventService := services.NewEventService(db)
	banService := services.NewBanService(db)
	trustService := services.NewTrustService(db)
	settingsService := services.NewSettingsService(db)
	authService := services.NewAuthService(db, cfg, eventService)
	notifier := services.NewNotificationService(cfg.Gateway.NotifyURLs)

	// Pipeline
	rules, err := gateway.LoadRules(cfg.Gateway.ThreatRulesPath)
	if err != nil {
		return fmt.Errorf("load threat rules: %w", err)
	}
	escalator := gateway.NewBanEscalator(banService, notifier)
	origin := gateway.NewOriginGate(cfg.Gateway, cfg.IsDevelopment(), authService, eventService)
	rateLimiter := gateway.NewRateLimiter(cfg.Gateway, gateway.ScopeAPI, limiter.NewMemoryStore(), banService, eventService, eventService)
	detector := gateway.NewThreatDetector(rules, cfg.Gateway.RichTextB64Allow, eventService, escalator)
	pipeline := gateway.New(origin, rateLimiter, detector, trustService, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return settingsService.GetBool(ctx, services.SettingGatewayEnabled, cfg.Gateway.Enabled)
	})

	// Metrics registry; served outside the pipeline.
	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.GET("/api/v1/health", handlers.HealthHandler)

	api := router.Group("/api/v1")
	api.Use(pipeline.Middleware())

	authHandler := handlers.NewAuthHandler(authService)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(authService))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)
	}

	admin := protected.Group("/security")
	admin.Use(middleware.RequireRole("admin"))
	{
		eventHandler := handlers.NewEventHandler(eventService)
		admin.GET("/events", eventHandler.List)
		admin.POST("/events/:id/resolve", eventHandler.Resolve)
		admin.DELETE("/events/:id", eventHandler.Delete)
		admin.POST("/events/purge", eventHandler.Purge)

		ipHandler := handlers.NewIPHandler(banService, trustService, eventService, escalator)
		admin.GET("/bans", ipHandler.ListBans)
		admin.POST("/bans", ipHandler.Ban)
		admin.DELETE("/bans/:address", ipHandler.Unban)
		admin.GET("/trusted", ipHandler.ListTrusted)
		admin.POST("/trusted", ipHandler.Trust)
		admin.DELETE("/trusted/:address", ipHandler.Untrust)
		admin.GET("/ips/:address", ipHandler.Detail)

		analyticsHandler := handlers.NewAnalyticsHandler(eventService)
		admin.GET("/analytics", analyticsHandler.Report)

		settingsHandler := handlers.NewSettingsHandler(settingsService)
		admin.GET("/settings", settingsHandler.Get)
		admin.POST("/settings", settingsHandler.Update)
	}

	return nil
}
