package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/logging"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/middleware"
	"github.com/pavitra93/voice-agent-saas/shared/tenancy"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

const serviceName = "auth-service"

func main() {
	// Load environment variables
	config.LoadEnv()
	logging.Configure()
	logger := logging.NewLoggerWithService(serviceName)

	authConfig := config.GetAuthConfig()
	if err := authConfig.Validate(); err != nil {
		log.Fatal("Invalid auth configuration:", err)
	}

	// Initialize database
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := config.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	tokens := auth.NewTokenService(authConfig.JWTSecret, authConfig.TokenTTL)
	directory := tenancy.NewDirectory(db, tokens)

	provisionSuperAdmin(directory, authConfig, logger)

	// Login and /auth/me never consult tenant status, so no cache is needed here
	authMiddleware := middleware.NewAuthMiddleware(tokens, tenancy.NewGuard(db, nil))

	router := setupRouter(directory, authMiddleware)

	// Start server
	port := config.GetEnv("AUTH_SERVICE_PORT", "8001")
	logrus.Infof("Auth service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start auth service:", err)
	}
}

// provisionSuperAdmin makes sure the platform operator can log in
func provisionSuperAdmin(directory *tenancy.Directory, cfg *config.AuthConfig, logger *logrus.Entry) {
	if cfg.SuperAdminPassword == "" {
		logger.Warn("SUPER_ADMIN_PASSWORD not set, skipping super admin provisioning")
		return
	}

	created, err := directory.ProvisionSuperAdmin(context.Background(), cfg.SuperAdminEmail, cfg.SuperAdminPassword)
	if err != nil {
		logger.WithError(err).Error("Failed to provision super admin")
		return
	}
	if created {
		logger.WithField("email", cfg.SuperAdminEmail).Info("Super admin created")
	}
}

func setupRouter(directory *tenancy.Directory, authMiddleware *middleware.AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware(serviceName))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Auth service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	// Authentication routes
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", handleRegister(directory))
		authGroup.POST("/login", handleLogin(directory))
		authGroup.GET("/me", authMiddleware.RequireAuth(), handleMe(directory))
	}

	return router
}
