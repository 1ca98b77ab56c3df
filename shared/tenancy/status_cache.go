package tenancy

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/models"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

// StatusCache memoizes tenant status for the authorization guard. Lifecycle
// transitions overwrite the entry with Set after commit; readers only Fill an
// empty entry, so a status read before a transition can never replace the
// status written by it.
type StatusCache interface {
	Get(ctx context.Context, tenantID uuid.UUID) (models.TenantStatus, bool)
	Set(ctx context.Context, tenantID uuid.UUID, status models.TenantStatus)
	Fill(ctx context.Context, tenantID uuid.UUID, status models.TenantStatus)
}

// RedisStatusCache stores statuses under tenant:status:<id>. Redis errors are
// treated as misses; the database stays authoritative.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl}
}

// ConnectStatusCache dials Redis for the status cache. When Redis is unreachable
// it logs a warning and returns a nil cache with a no-op closer, and the guard
// falls back to the database on every request.
func ConnectStatusCache(ctx context.Context, cfg *config.RedisConfig, log *logrus.Entry) (StatusCache, func()) {
	client, err := utils.NewRedisClient(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, tenant status cache disabled")
		return nil, func() {}
	}
	log.WithField("addr", cfg.Addr()).Info("Tenant status cache connected")
	return NewRedisStatusCache(client, cfg.StatusTTL), func() { _ = client.Close() }
}

func statusKey(tenantID uuid.UUID) string {
	return "tenant:status:" + tenantID.String()
}

func (c *RedisStatusCache) Get(ctx context.Context, tenantID uuid.UUID) (models.TenantStatus, bool) {
	val, err := c.client.Get(ctx, statusKey(tenantID)).Result()
	if err != nil {
		return "", false
	}
	status := models.TenantStatus(val)
	if !status.Valid() {
		return "", false
	}
	return status, true
}

func (c *RedisStatusCache) Set(ctx context.Context, tenantID uuid.UUID, status models.TenantStatus) {
	_ = c.client.Set(ctx, statusKey(tenantID), string(status), c.ttl).Err()
}

// Fill stores status only if no entry exists
func (c *RedisStatusCache) Fill(ctx context.Context, tenantID uuid.UUID, status models.TenantStatus) {
	_ = c.client.SetNX(ctx, statusKey(tenantID), string(status), c.ttl).Err()
}

// noopCache is used when Redis is not configured
type noopCache struct{}

func (noopCache) Get(context.Context, uuid.UUID) (models.TenantStatus, bool) { return "", false }
func (noopCache) Set(context.Context, uuid.UUID, models.TenantStatus)        {}
func (noopCache) Fill(context.Context, uuid.UUID, models.TenantStatus)       {}

func cacheOrNoop(cache StatusCache) StatusCache {
	if cache == nil {
		return noopCache{}
	}
	return cache
}
