package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/accounting"
	"github.com/pavitra93/voice-agent-saas/shared/archive"
	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/events"
	"github.com/pavitra93/voice-agent-saas/shared/logging"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/middleware"
	"github.com/pavitra93/voice-agent-saas/shared/tenancy"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

const serviceName = "billing-service"

// services bundles what the billing handlers need
type services struct {
	db         *gorm.DB
	catalog    *billing.Catalog
	pricing    *billing.Pricing
	ledger     *billing.Ledger
	invoices   *billing.InvoiceService
	accounting *accounting.Client
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, closeCache := tenancy.ConnectStatusCache(ctx, config.GetRedisConfig(), logger)
	defer closeCache()

	svc := &services{
		db:      db,
		catalog: billing.NewCatalog(db),
		pricing: billing.NewPricing(db, logger),
		ledger:  billing.NewLedger(db, logger),
	}

	// Accounting export is optional; without an API key Export reports it as disabled
	var exporter billing.Exporter
	accountingConfig := config.GetAccountingConfig()
	if accountingConfig.APIKey != "" {
		svc.accounting = accounting.NewClient(accountingConfig, logger.WithField("component", "accounting"))
		exporter = svc.accounting
	} else {
		logger.Warn("ACCOUNTING_API_KEY not set, invoice export disabled")
	}

	invoiceOpts := []billing.InvoiceOption{billing.WithExportTimeout(accountingConfig.Timeout)}
	if archiveConfig := config.GetArchiveConfig(); archiveConfig.Enabled() {
		archiver, err := archive.NewS3Archiver(archiveConfig, logger.WithField("component", "archive"))
		if err != nil {
			log.Fatal("Failed to initialize invoice archive:", err)
		}
		invoiceOpts = append(invoiceOpts, billing.WithArchiver(archiver))
	}
	svc.invoices = billing.NewInvoiceService(db, exporter, logger, invoiceOpts...)

	// Usage events published by the voice service are recorded here
	if kafkaConfig := config.GetKafkaConfig(); kafkaConfig.Enabled() {
		consumer := events.NewUsageConsumer(kafkaConfig, svc.ledger, db, logger.WithField("component", "usage-consumer"))
		defer consumer.Close()
		go consumer.Run(ctx)
	} else {
		logger.Info("KAFKA_BROKER not set, usage consumer disabled")
	}

	tokens := auth.NewTokenService(authConfig.JWTSecret, authConfig.TokenTTL)
	authMiddleware := middleware.NewAuthMiddleware(tokens, tenancy.NewGuard(db, cache))

	router := setupRouter(svc, authMiddleware)

	// Start server
	port := config.GetEnv("BILLING_SERVICE_PORT", "8003")
	logrus.Infof("Billing service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start billing service:", err)
	}
}

func setupRouter(svc *services, am *middleware.AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware(serviceName))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Billing service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	// Tenant-scoped routes, only for approved tenants
	tenant := router.Group("/")
	tenant.Use(am.RequireAuth(), am.RequireApproved())
	{
		tenant.GET("/pricing-plans", handleListPlans(svc.catalog, true))
		tenant.GET("/minute-packages", handleListPackages(svc.catalog, true))

		tenant.GET("/billing/plan", handleGetRate(svc.pricing))
		tenant.POST("/billing/plan", am.RequireTenantAdmin(), handleSelectPlan(svc.pricing))
		tenant.POST("/billing/packages/:id/purchase", am.RequireTenantAdmin(), handlePurchasePackage(svc.pricing))
		tenant.GET("/billing/purchases", handleListPurchases(svc.pricing))
		tenant.GET("/billing/balance", handleBalance(svc.pricing))

		tenant.GET("/usage", handleListUsage(svc.ledger))
		tenant.GET("/usage/summary", handleUsageSummary(svc.ledger))

		tenant.GET("/invoices", handleListOwnInvoices(svc.invoices))
		tenant.GET("/invoices/:id", handleGetOwnInvoice(svc.invoices))
	}

	// Catalog and invoicing administration (super admin only)
	admin := router.Group("/admin")
	admin.Use(am.RequireAuth(), am.RequireSuperAdmin())
	{
		admin.GET("/pricing-plans", handleListPlans(svc.catalog, false))
		admin.POST("/pricing-plans", handleCreatePlan(svc.catalog))
		admin.GET("/pricing-plans/:id", handleGetPlan(svc.catalog))
		admin.PUT("/pricing-plans/:id", handleUpdatePlan(svc.catalog))
		admin.DELETE("/pricing-plans/:id", handleDeactivatePlan(svc.catalog))

		admin.GET("/minute-packages", handleListPackages(svc.catalog, false))
		admin.POST("/minute-packages", handleCreatePackage(svc.catalog))
		admin.GET("/minute-packages/:id", handleGetPackage(svc.catalog))
		admin.PUT("/minute-packages/:id", handleUpdatePackage(svc.catalog))
		admin.DELETE("/minute-packages/:id", handleDeactivatePackage(svc.catalog))

		admin.GET("/invoices", handleListInvoices(svc.invoices))
		admin.POST("/invoices/generate/:tenant_id", handleGenerateInvoice(svc.invoices))
		admin.POST("/invoices/:id/export", handleExportInvoice(svc.invoices))
		admin.POST("/invoices/:id/cancel", handleCancelInvoice(svc.invoices))
		admin.POST("/invoices/:id/mark-paid", handleMarkPaid(svc.invoices))

		admin.GET("/accounting/status", handleAccountingStatus(svc.accounting))
	}

	return router
}
