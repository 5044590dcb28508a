package main

import (
	"kitly/internal/handler"
	"kitly/internal/middleware"
	"kitly/pkg/config"
	"kitly/pkg/database"
	"kitly/pkg/jwtutil"
	"kitly/pkg/logger"
	"kitly/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting kitly server...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	handler.SetInviteTTL(cfg.Invite.TTL)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/login", handler.Login)
	auth.POST("/signup", handler.Signup)

	// Invite acceptance - the invite token is the credential
	e.POST("/invites/accept", handler.AcceptInvite)

	// All remaining routes require a bearer token
	api := e.Group("")
	api.Use(middleware.AuthMiddleware)

	api.GET("/users/me", handler.GetCurrentUser)
	api.GET("/me/tenants", handler.ListMyTenants)
	api.POST("/tenants", handler.CreateTenant)

	// Session management
	sessions := api.Group("/sessions")
	sessions.POST("/switch-tenant", handler.SwitchTenant)
	sessions.POST("/refresh", handler.RefreshSession)
	sessions.GET("/current", handler.GetCurrentSession)

	// Tenant-scoped operations - the token's tenant must match the path
	tenants := api.Group("/tenants/:tenant_id")
	tenants.Use(middleware.RequireTenantContext)
	tenants.GET("/entitlements", handler.GetEntitlements)
	tenants.GET("/members", handler.ListMembers)
	tenants.PATCH("/members/:user_id", handler.UpdateMember)
	tenants.POST("/invites", handler.CreateInvite)
	tenants.GET("/invites", handler.ListPendingInvites)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
