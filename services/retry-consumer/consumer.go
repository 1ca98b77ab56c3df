package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// baseRetryDelay doubles per attempt: 1m, 2m, 4m, 8m...
const baseRetryDelay = time.Minute

// RetryConsumer replays usage events that could not be recorded
type RetryConsumer struct {
	db            *gorm.DB
	recorder      billing.Recorder
	maxRetries    int
	batchSize     int
	checkInterval time.Duration
	log           *logrus.Entry
}

// NewRetryConsumer creates a new retry consumer
func NewRetryConsumer(db *gorm.DB, recorder billing.Recorder, cfg *config.RetryConfig, log *logrus.Entry) *RetryConsumer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RetryConsumer{
		db:            db,
		recorder:      recorder,
		maxRetries:    cfg.MaxRetries,
		batchSize:     cfg.BatchSize,
		checkInterval: cfg.CheckInterval,
		log:           log,
	}
}

// Run processes due events every checkInterval until ctx is cancelled
func (rc *RetryConsumer) Run(ctx context.Context) {
	rc.log.Info("Starting retry consumer")

	ticker := time.NewTicker(rc.checkInterval)
	defer ticker.Stop()

	for {
		processed, err := rc.ProcessDue(ctx, time.Now())
		switch {
		case err != nil:
			rc.log.WithError(err).Error("Error fetching failed usage events")
		case processed > 0:
			rc.log.WithField("count", processed).Info("Processed failed usage events")
		}

		select {
		case <-ctx.Done():
			rc.log.Info("Retry consumer stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessDue replays one batch of pending events whose retry time has come,
// oldest first so usage lands in the order it happened
func (rc *RetryConsumer) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	var due []models.FailedUsageEvent
	err := rc.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", models.FailedUsagePending, now.UTC()).
		Order("occurred_at ASC").
		Limit(rc.batchSize).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch failed usage events: %w", err)
	}

	for _, failed := range due {
		if err := rc.retry(ctx, failed, now); err != nil {
			rc.log.WithField("failed_event_id", failed.ID).WithError(err).Error("Failed to update retry state")
		}
	}
	return len(due), nil
}

func (rc *RetryConsumer) retry(ctx context.Context, failed models.FailedUsageEvent, now time.Time) error {
	event := billing.UsageEvent{
		ID:              failed.OriginalEventID,
		TenantID:        failed.TenantID,
		UserID:          failed.UserID,
		CallType:        failed.CallType,
		DurationSeconds: failed.DurationSeconds,
		OccurredAt:      failed.OccurredAt,
	}

	_, err := rc.recorder.RecordUsage(ctx, event)
	if err == nil {
		metrics.UsageRetriesCounter.WithLabelValues("resolved").Inc()
		return rc.markResolved(ctx, failed, now)
	}

	// a missing tenant or an invalid event will not get better with time
	if apperr.IsNotFound(err) || apperr.KindOf(err) == apperr.KindValidation {
		rc.log.WithFields(logrus.Fields{
			"event_id":  failed.OriginalEventID,
			"tenant_id": failed.TenantID,
		}).WithError(err).Warn("Usage event cannot be recorded, giving up")
		metrics.UsageRetriesCounter.WithLabelValues("permanently_failed").Inc()
		return rc.markPermanentlyFailed(ctx, failed, now, err.Error())
	}

	metrics.UsageRetriesCounter.WithLabelValues("retry").Inc()
	return rc.updateRetryStatus(ctx, failed, now, err)
}

func (rc *RetryConsumer) updateRetryStatus(ctx context.Context, failed models.FailedUsageEvent, now time.Time, err error) error {
	failed.RetryCount++

	if failed.RetryCount >= rc.maxRetries {
		return rc.markPermanentlyFailed(ctx, failed, now, fmt.Sprintf("Max retries reached: %s", err.Error()))
	}

	next := now.UTC().Add(baseRetryDelay << (failed.RetryCount - 1))
	failed.NextRetryAt = &next
	failed.ErrorMessage = err.Error()
	return rc.db.WithContext(ctx).Save(&failed).Error
}

func (rc *RetryConsumer) markResolved(ctx context.Context, failed models.FailedUsageEvent, now time.Time) error {
	resolved := now.UTC()
	failed.Status = models.FailedUsageResolved
	failed.ResolvedAt = &resolved
	return rc.db.WithContext(ctx).Save(&failed).Error
}

func (rc *RetryConsumer) markPermanentlyFailed(ctx context.Context, failed models.FailedUsageEvent, now time.Time, reason string) error {
	resolved := now.UTC()
	failed.Status = models.FailedUsagePermanentlyFailed
	failed.ResolvedAt = &resolved
	failed.ErrorMessage = reason
	return rc.db.WithContext(ctx).Save(&failed).Error
}

// RetryStats counts failed usage events per status
type RetryStats struct {
	Pending           int64 `json:"pending"`
	Resolved          int64 `json:"resolved"`
	PermanentlyFailed int64 `json:"permanently_failed"`
}

// GetRetryStats returns retry statistics together with the active settings
func (rc *RetryConsumer) GetRetryStats(ctx context.Context) (map[string]interface{}, error) {
	counts := map[string]*int64{}
	var stats RetryStats
	counts[models.FailedUsagePending] = &stats.Pending
	counts[models.FailedUsageResolved] = &stats.Resolved
	counts[models.FailedUsagePermanentlyFailed] = &stats.PermanentlyFailed

	for status, target := range counts {
		err := rc.db.WithContext(ctx).Model(&models.FailedUsageEvent{}).Where("status = ?", status).Count(target).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count %s events: %w", status, err)
		}
	}

	return map[string]interface{}{
		"retry_stats": stats,
		"config": map[string]interface{}{
			"max_retries":    rc.maxRetries,
			"batch_size":     rc.batchSize,
			"check_interval": rc.checkInterval.String(),
		},
	}, nil
}
