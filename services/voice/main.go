package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

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

const serviceName = "voice-service"

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

	cache, closeCache := tenancy.ConnectStatusCache(context.Background(), config.GetRedisConfig(), logger)
	defer closeCache()

	// Usage goes through Kafka to the billing service when a broker is
	// configured, otherwise it is recorded in-process
	var sink billing.UsageSink
	if kafkaConfig := config.GetKafkaConfig(); kafkaConfig.Enabled() {
		producer := events.NewUsageProducer(kafkaConfig, logger.WithField("component", "usage-producer"))
		defer producer.Close()
		sink = producer
	} else {
		logger.Info("KAFKA_BROKER not set, recording usage in-process")
		recorder := billing.NewAsyncRecorder(billing.NewLedger(db, logger), 1000, 4, logger.WithField("component", "usage-recorder"))
		recorder.OnFailure = func(ctx context.Context, event billing.UsageEvent, cause error) {
			if err := events.StoreFailedEvent(ctx, db, event, cause); err != nil {
				logger.WithField("event_id", event.ID).WithError(err).Error("Usage event lost")
			}
		}
		defer recorder.Close()
		sink = recorder
	}

	assistant := NewAssistantClient(config.GetAssistantConfig(), logger.WithField("component", "assistant"))
	if err := assistant.Ping(context.Background()); err != nil {
		logger.WithError(err).Warn("Assistant not reachable at startup")
	}

	tokens := auth.NewTokenService(authConfig.JWTSecret, authConfig.TokenTTL)
	authMiddleware := middleware.NewAuthMiddleware(tokens, tenancy.NewGuard(db, cache))

	router := setupRouter(db, assistant, sink, authMiddleware, logger)
	router.GET("/voice/assistant/status", authMiddleware.RequireAuth(), authMiddleware.RequireSuperAdmin(), handleAssistantStatus(assistant))

	// Start server
	port := config.GetEnv("VOICE_SERVICE_PORT", "8004")
	logrus.Infof("Voice service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start voice service:", err)
	}
}

func setupRouter(db *gorm.DB, assistant Assistant, sink billing.UsageSink, am *middleware.AuthMiddleware, logger *logrus.Entry) *gin.Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware(serviceName))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Voice service is healthy", nil)
	})
	router.GET("/metrics", metrics.Handler())

	tenant := router.Group("/")
	tenant.Use(am.RequireAuth(), am.RequireApproved())
	{
		tenant.POST("/voice/process", handleProcessVoice(db, assistant, sink, logger))
		tenant.GET("/conversations", handleListConversations(db))

		tenant.GET("/appointments", handleListAppointments(db))
		tenant.POST("/appointments", handleCreateAppointment(db))
		tenant.DELETE("/appointments/:id", handleDeleteAppointment(db))

		tenant.GET("/calendars", handleListCalendars(db))
		tenant.POST("/calendars", handleConnectCalendar(db))
		tenant.DELETE("/calendars/:id", handleDisconnectCalendar(db))
	}

	return router
}
