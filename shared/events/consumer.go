package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// FirstRetryDelay is how long a failed event waits before its first replay
const FirstRetryDelay = time.Minute

// MessageReader is the part of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// UsageConsumer records usage events read from Kafka. Events that cannot be
// recorded are parked in failed_usage_events for the retry consumer.
type UsageConsumer struct {
	reader   MessageReader
	recorder billing.Recorder
	db       *gorm.DB
	log      *logrus.Entry
	backoff  time.Duration
}

// NewUsageConsumer joins the configured consumer group
func NewUsageConsumer(cfg *config.KafkaConfig, recorder billing.Recorder, db *gorm.DB, log *logrus.Entry) *UsageConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{cfg.Broker},
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
	return NewUsageConsumerWithReader(reader, recorder, db, log)
}

func NewUsageConsumerWithReader(reader MessageReader, recorder billing.Recorder, db *gorm.DB, log *logrus.Entry) *UsageConsumer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &UsageConsumer{
		reader:   reader,
		recorder: recorder,
		db:       db,
		log:      log,
		backoff:  time.Second,
	}
}

// Run consumes until ctx is cancelled. A message is committed once it is either
// recorded or parked.
func (c *UsageConsumer) Run(ctx context.Context) {
	c.log.Info("Starting usage events consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Usage events consumer stopped")
				return
			}
			c.log.WithError(err).Error("Error reading usage message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := c.Handle(ctx, msg); err != nil {
			// not committed, so the message is redelivered
			c.log.WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).WithError(err).Error("Failed to handle usage message")
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Warn("Failed to commit usage message")
		}
	}
}

// Handle records one message. It returns an error only when the event could be
// neither recorded nor parked.
func (c *UsageConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var event billing.UsageEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		metrics.UsageEventsDroppedCounter.WithLabelValues("malformed").Inc()
		c.log.WithField("offset", msg.Offset).WithError(err).Warn("Dropping malformed usage event")
		return nil
	}

	if _, err := c.recorder.RecordUsage(ctx, event); err != nil {
		c.log.WithFields(logrus.Fields{
			"event_id":  event.ID,
			"tenant_id": event.TenantID,
		}).WithError(err).Warn("Usage recording failed, storing for retry")
		if storeErr := StoreFailedEvent(ctx, c.db, event, err); storeErr != nil {
			return storeErr
		}
		return nil
	}

	c.log.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"tenant_id": event.TenantID,
	}).Debug("Usage event recorded")
	return nil
}

// StoreFailedEvent parks an event for replay after FirstRetryDelay
func StoreFailedEvent(ctx context.Context, db *gorm.DB, event billing.UsageEvent, cause error) error {
	if db == nil {
		return errors.New("no database for failed usage events")
	}

	next := time.Now().UTC().Add(FirstRetryDelay)
	failed := models.FailedUsageEvent{
		OriginalEventID: event.ID,
		TenantID:        event.TenantID,
		UserID:          event.UserID,
		CallType:        event.CallType,
		DurationSeconds: event.DurationSeconds,
		OccurredAt:      event.OccurredAt.UTC(),
		ErrorMessage:    cause.Error(),
		Status:          models.FailedUsagePending,
		NextRetryAt:     &next,
	}
	if err := db.WithContext(ctx).Create(&failed).Error; err != nil {
		return fmt.Errorf("failed to store failed usage event: %w", err)
	}
	return nil
}

// Close closes the reader
func (c *UsageConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close usage reader: %w", err)
	}
	return nil
}
