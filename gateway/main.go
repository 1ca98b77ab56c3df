package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/logging"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/middleware"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

const serviceName = "api-gateway"

func main() {
	// Load environment variables
	config.LoadEnv()
	logging.Configure()

	authConfig := config.GetAuthConfig()
	if err := authConfig.Validate(); err != nil {
		log.Fatal("Invalid auth configuration:", err)
	}

	// The gateway only checks signatures; tenant status is enforced by the
	// services behind it
	tokens := auth.NewTokenService(authConfig.JWTSecret, authConfig.TokenTTL)
	authMiddleware := middleware.NewAuthMiddleware(tokens, nil)

	timeout := config.GetEnvDuration("GATEWAY_UPSTREAM_TIMEOUT", 30*time.Second)
	serviceClients := &ServiceClients{
		AuthService:    NewServiceClient("auth_service", config.GetEnv("AUTH_SERVICE_URL", "http://localhost:8001"), timeout),
		TenantService:  NewServiceClient("tenant_service", config.GetEnv("TENANT_SERVICE_URL", "http://localhost:8002"), timeout),
		BillingService: NewServiceClient("billing_service", config.GetEnv("BILLING_SERVICE_URL", "http://localhost:8003"), timeout),
		VoiceService:   NewServiceClient("voice_service", config.GetEnv("VOICE_SERVICE_URL", "http://localhost:8004"), timeout),
	}

	router := setupRouter(serviceClients, authMiddleware)

	// Start server
	port := config.GetEnv("API_GATEWAY_PORT", "8080")
	logrus.Infof("API Gateway starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start API Gateway:", err)
	}
}

func setupRouter(clients *ServiceClients, authMiddleware *middleware.AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware(serviceName))

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())
	router.GET("/status", func(c *gin.Context) {
		status, healthy := clients.GetServiceStatus()
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, utils.APIResponse{
				Success: false,
				Error:   "One or more services are unavailable",
				Data:    status,
			})
			return
		}
		utils.OKResponse(c, "All services are healthy", status)
	})

	// Authentication routes
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", clients.AuthService.ProxyRequest)
		authRoutes.POST("/login", clients.AuthService.ProxyRequest)
		authRoutes.GET("/me", authMiddleware.RequireAuth(), clients.AuthService.ProxyRequest)
	}

	protected := router.Group("/")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Own tenant and its users
		protected.GET("/tenant", clients.TenantService.ProxyRequest)
		protected.PUT("/tenant", clients.TenantService.ProxyRequest)
		protected.GET("/stats", clients.TenantService.ProxyRequest)
		protected.GET("/users", clients.TenantService.ProxyRequest)
		protected.POST("/users", clients.TenantService.ProxyRequest)
		protected.DELETE("/users/:id", clients.TenantService.ProxyRequest)

		// Plans, balance, usage and invoices
		protected.GET("/pricing-plans", clients.BillingService.ProxyRequest)
		protected.GET("/minute-packages", clients.BillingService.ProxyRequest)
		protected.GET("/billing/plan", clients.BillingService.ProxyRequest)
		protected.POST("/billing/plan", clients.BillingService.ProxyRequest)
		protected.POST("/billing/packages/:id/purchase", clients.BillingService.ProxyRequest)
		protected.GET("/billing/purchases", clients.BillingService.ProxyRequest)
		protected.GET("/billing/balance", clients.BillingService.ProxyRequest)
		protected.GET("/usage", clients.BillingService.ProxyRequest)
		protected.GET("/usage/summary", clients.BillingService.ProxyRequest)
		protected.GET("/invoices", clients.BillingService.ProxyRequest)
		protected.GET("/invoices/:id", clients.BillingService.ProxyRequest)

		// Voice agent
		protected.POST("/voice/process", clients.VoiceService.ProxyRequest)
		protected.GET("/voice/assistant/status", clients.VoiceService.ProxyRequest)
		protected.GET("/conversations", clients.VoiceService.ProxyRequest)
		protected.GET("/appointments", clients.VoiceService.ProxyRequest)
		protected.POST("/appointments", clients.VoiceService.ProxyRequest)
		protected.DELETE("/appointments/:id", clients.VoiceService.ProxyRequest)
		protected.GET("/calendars", clients.VoiceService.ProxyRequest)
		protected.POST("/calendars", clients.VoiceService.ProxyRequest)
		protected.DELETE("/calendars/:id", clients.VoiceService.ProxyRequest)
	}

	// Platform administration, checked again by each service
	admin := router.Group("/admin")
	admin.Use(authMiddleware.RequireAuth())
	{
		admin.GET("/tenants", clients.TenantService.ProxyRequest)
		admin.GET("/tenants/:id", clients.TenantService.ProxyRequest)
		admin.POST("/tenants/:id/approve", clients.TenantService.ProxyRequest)
		admin.POST("/tenants/:id/reject", clients.TenantService.ProxyRequest)
		admin.POST("/tenants/:id/suspend", clients.TenantService.ProxyRequest)
		admin.GET("/stats", clients.TenantService.ProxyRequest)

		admin.GET("/pricing-plans", clients.BillingService.ProxyRequest)
		admin.POST("/pricing-plans", clients.BillingService.ProxyRequest)
		admin.GET("/pricing-plans/:id", clients.BillingService.ProxyRequest)
		admin.PUT("/pricing-plans/:id", clients.BillingService.ProxyRequest)
		admin.DELETE("/pricing-plans/:id", clients.BillingService.ProxyRequest)
		admin.GET("/minute-packages", clients.BillingService.ProxyRequest)
		admin.POST("/minute-packages", clients.BillingService.ProxyRequest)
		admin.GET("/minute-packages/:id", clients.BillingService.ProxyRequest)
		admin.PUT("/minute-packages/:id", clients.BillingService.ProxyRequest)
		admin.DELETE("/minute-packages/:id", clients.BillingService.ProxyRequest)
		admin.GET("/invoices", clients.BillingService.ProxyRequest)
		admin.POST("/invoices/generate/:tenant_id", clients.BillingService.ProxyRequest)
		admin.POST("/invoices/:id/export", clients.BillingService.ProxyRequest)
		admin.POST("/invoices/:id/cancel", clients.BillingService.ProxyRequest)
		admin.POST("/invoices/:id/mark-paid", clients.BillingService.ProxyRequest)
		admin.GET("/accounting/status", clients.BillingService.ProxyRequest)
	}

	return router
}
