package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/logging"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/middleware"
	"github.com/pavitra93/voice-agent-saas/shared/tenancy"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

const serviceName = "tenant-service"

// services bundles what the tenant handlers need
type services struct {
	db        *gorm.DB
	directory *tenancy.Directory
	lifecycle *tenancy.Lifecycle
}

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

	// Lifecycle transitions invalidate the status other services cache in Redis
	cache, closeCache := tenancy.ConnectStatusCache(context.Background(), config.GetRedisConfig(), logger)
	defer closeCache()

	tokens := auth.NewTokenService(authConfig.JWTSecret, authConfig.TokenTTL)
	svc := &services{
		db:        db,
		directory: tenancy.NewDirectory(db, tokens),
		lifecycle: tenancy.NewLifecycle(db, cache, logger),
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens, tenancy.NewGuard(db, cache))

	router := setupRouter(svc, authMiddleware)

	// Start server
	port := config.GetEnv("TENANT_SERVICE_PORT", "8002")
	logrus.Infof("Tenant service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start tenant service:", err)
	}
}

func setupRouter(svc *services, am *middleware.AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware(serviceName))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Tenant service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	// Tenant-scoped routes, only for approved tenants
	tenant := router.Group("/")
	tenant.Use(am.RequireAuth(), am.RequireApproved())
	{
		tenant.GET("/tenant", handleGetOwnTenant(svc.lifecycle))
		tenant.PUT("/tenant", am.RequireTenantAdmin(), handleUpdateOwnTenant(svc.lifecycle))
		tenant.GET("/stats", handleTenantStats(svc.db))

		tenant.GET("/users", handleListUsers(svc.directory))
		tenant.POST("/users", am.RequireTenantAdmin(), handleCreateUser(svc.directory))
		tenant.DELETE("/users/:id", am.RequireTenantAdmin(), handleDeleteUser(svc.directory))
	}

	// Platform management (super admin only)
	admin := router.Group("/admin")
	admin.Use(am.RequireAuth(), am.RequireSuperAdmin())
	{
		admin.GET("/tenants", handleListTenants(svc.lifecycle))
		admin.GET("/tenants/:id", handleGetTenant(svc.lifecycle, svc.directory))
		admin.POST("/tenants/:id/approve", handleTransition(svc.lifecycle.Approve, "Tenant approved"))
		admin.POST("/tenants/:id/reject", handleTransition(svc.lifecycle.Reject, "Tenant rejected"))
		admin.POST("/tenants/:id/suspend", handleTransition(svc.lifecycle.Suspend, "Tenant suspended"))
		admin.GET("/stats", handlePlatformStats(svc.db))
	}

	return router
}
