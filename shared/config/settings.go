package config

import (
	"fmt"
	"time"
)

// AuthConfig configures token signing and the platform operator account
type AuthConfig struct {
	JWTSecret          string
	TokenTTL           time.Duration
	SuperAdminEmail    string
	SuperAdminPassword string
}

func GetAuthConfig() *AuthConfig {
	return &AuthConfig{
		JWTSecret:          GetEnv("JWT_SECRET", ""),
		TokenTTL:           GetEnvDuration("JWT_TTL", 24*time.Hour),
		SuperAdminEmail:    GetEnv("SUPER_ADMIN_EMAIL", "admin@voiceagent.de"),
		SuperAdminPassword: GetEnv("SUPER_ADMIN_PASSWORD", ""),
	}
}

// Validate fails when no signing secret is configured
func (c *AuthConfig) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return nil
}

// RedisConfig holds the tenant status cache connection settings
type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	StatusTTL time.Duration
}

func GetRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:      GetEnv("REDIS_HOST", "localhost"),
		Port:      GetEnv("REDIS_PORT", "6379"),
		Password:  GetEnv("REDIS_PASSWORD", ""),
		DB:        GetEnvInt("REDIS_DB", 0),
		StatusTTL: GetEnvDuration("TENANT_STATUS_CACHE_TTL", 30*time.Second),
	}
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// KafkaConfig configures the usage event stream. An empty broker disables it.
type KafkaConfig struct {
	Broker  string
	Topic   string
	GroupID string
}

func GetKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Broker:  GetEnv("KAFKA_BROKER", ""),
		Topic:   GetEnv("USAGE_TOPIC", "usage-events"),
		GroupID: GetEnv("USAGE_CONSUMER_GROUP", "billing-service"),
	}
}

func (c *KafkaConfig) Enabled() bool {
	return c.Broker != ""
}

// AccountingConfig points at the external bookkeeping API invoices are exported to
type AccountingConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func GetAccountingConfig() *AccountingConfig {
	return &AccountingConfig{
		BaseURL: GetEnv("ACCOUNTING_API_URL", "https://api.lexoffice.io/v1"),
		APIKey:  GetEnv("ACCOUNTING_API_KEY", ""),
		Timeout: GetEnvDuration("ACCOUNTING_TIMEOUT", 30*time.Second),
	}
}

// ArchiveConfig configures invoice snapshot archival. An empty bucket disables it.
type ArchiveConfig struct {
	Region string
	Bucket string
	Prefix string
}

func GetArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Region: GetEnv("AWS_REGION", "eu-central-1"),
		Bucket: GetEnv("INVOICE_ARCHIVE_BUCKET", ""),
		Prefix: GetEnv("INVOICE_ARCHIVE_PREFIX", "invoices"),
	}
}

func (c *ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// AssistantConfig points at the speech assistant the voice service delegates to
type AssistantConfig struct {
	BaseURL string
	Timeout time.Duration
}

func GetAssistantConfig() *AssistantConfig {
	return &AssistantConfig{
		BaseURL: GetEnv("ASSISTANT_SERVICE_URL", "http://localhost:9000"),
		Timeout: GetEnvDuration("ASSISTANT_TIMEOUT", 30*time.Second),
	}
}

// RetryConfig tunes the failed usage event replayer
type RetryConfig struct {
	MaxRetries    int
	BatchSize     int
	CheckInterval time.Duration
}

func GetRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:    GetEnvInt("RETRY_MAX_ATTEMPTS", 8),
		BatchSize:     GetEnvInt("RETRY_BATCH_SIZE", 100),
		CheckInterval: GetEnvDuration("RETRY_CHECK_INTERVAL", 30*time.Second),
	}
}
