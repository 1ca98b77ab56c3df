package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/logging"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

const serviceName = "retry-consumer"

func main() {
	config.LoadEnv()
	logging.Configure()
	logger := logging.NewLoggerWithService(serviceName)

	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	ledger := billing.NewLedger(db, logger.WithField("component", "ledger"))
	retryConsumer := NewRetryConsumer(db, ledger, config.GetRetryConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start retry consumer in background
	go retryConsumer.Run(ctx)

	router := setupRouter(retryConsumer)

	port := config.GetEnv("RETRY_CONSUMER_PORT", "8085")
	logrus.Infof("Retry Consumer starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start Retry Consumer:", err)
	}
}

func setupRouter(rc *RetryConsumer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware(serviceName))

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Retry consumer is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	// Retry statistics endpoint
	router.GET("/stats", func(c *gin.Context) {
		stats, err := rc.GetRetryStats(c.Request.Context())
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Retry statistics retrieved", stats)
	})

	return router
}
