// Package events carries usage events between services over Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
)

// EventTypeUsageRecorded is the event_type header of usage messages
const EventTypeUsageRecorded = "usage_recorded"

// MessageWriter is the part of *kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// UsageProducer publishes usage events from a worker pool. It implements
// billing.UsageSink: Submit never blocks and drops events when the queue is full.
type UsageProducer struct {
	writer      MessageWriter
	topic       string
	events      chan billing.UsageEvent
	workerCount int
	log         *logrus.Entry

	mutex  sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewUsageProducer connects a writer to the configured broker
func NewUsageProducer(cfg *config.KafkaConfig, log *logrus.Entry) *UsageProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Broker),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return NewUsageProducerWithWriter(writer, cfg.Topic, 1000, 10, log)
}

// NewUsageProducerWithWriter starts workers goroutines publishing through writer
func NewUsageProducerWithWriter(writer MessageWriter, topic string, queueSize, workers int, log *logrus.Entry) *UsageProducer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if workers < 1 {
		workers = 1
	}

	p := &UsageProducer{
		writer:      writer,
		topic:       topic,
		events:      make(chan billing.UsageEvent, queueSize),
		workerCount: workers,
		log:         log,
	}
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	log.WithFields(logrus.Fields{"workers": workers, "topic": topic}).Info("Usage producer started")
	return p
}

// Submit queues an event for publishing
func (p *UsageProducer) Submit(event billing.UsageEvent) error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.closed {
		metrics.UsageEventsDroppedCounter.WithLabelValues("closed").Inc()
		return billing.ErrSinkClosed
	}

	select {
	case p.events <- event:
		return nil
	default:
		metrics.UsageEventsDroppedCounter.WithLabelValues("queue_full").Inc()
		p.log.WithFields(logrus.Fields{
			"event_id":  event.ID,
			"tenant_id": event.TenantID,
		}).Warn("Usage event queue full, event dropped")
		return billing.ErrQueueFull
	}
}

func (p *UsageProducer) worker(id int) {
	defer p.wg.Done()

	for event := range p.events {
		if err := p.publish(event); err != nil {
			metrics.UsageEventsDroppedCounter.WithLabelValues("publish_failed").Inc()
			p.log.WithFields(logrus.Fields{
				"worker":   id,
				"event_id": event.ID,
			}).WithError(err).Error("Failed to publish usage event")
		}
	}
}

func (p *UsageProducer) publish(event billing.UsageEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal usage event: %w", err)
	}

	tenantID := event.TenantID.String()
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(tenantID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeUsageRecorded)},
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "tenant_id", Value: []byte(tenantID)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write usage event to Kafka: %w", err)
	}
	return nil
}

// Close stops accepting events, publishes the queued ones and closes the writer
func (p *UsageProducer) Close() error {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mutex.Unlock()

	p.wg.Wait()

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	p.log.Info("Usage producer stopped")
	return nil
}
