package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

var (
	// ErrQueueFull is returned when a usage event is dropped because the queue is full
	ErrQueueFull = errors.New("usage event queue full, event dropped")
	// ErrSinkClosed is returned for events submitted after Close
	ErrSinkClosed = errors.New("usage sink is closed")
)

// UsageSink accepts usage events without blocking the caller. Recording happens
// in the background; failures are logged, never returned to the submitter.
type UsageSink interface {
	Submit(event UsageEvent) error
}

// Recorder writes a usage event synchronously
type Recorder interface {
	RecordUsage(ctx context.Context, event UsageEvent) (*models.UsageRecord, error)
}

// AsyncRecorder is an in-process UsageSink backed by a bounded queue and a
// worker pool
type AsyncRecorder struct {
	recorder Recorder
	queue    chan UsageEvent
	workers  int
	timeout  time.Duration
	log      *logrus.Entry

	// OnFailure, when set before the first Submit, receives events that could
	// not be recorded
	OnFailure func(ctx context.Context, event UsageEvent, err error)

	mutex  sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncRecorder starts workers goroutines draining a queue of queueSize events
func NewAsyncRecorder(recorder Recorder, queueSize, workers int, log *logrus.Entry) *AsyncRecorder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if workers < 1 {
		workers = 1
	}

	r := &AsyncRecorder{
		recorder: recorder,
		queue:    make(chan UsageEvent, queueSize),
		workers:  workers,
		timeout:  10 * time.Second,
		log:      log,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	log.WithField("workers", workers).Info("Usage recorder started")
	return r
}

// Submit queues the event and returns immediately
func (r *AsyncRecorder) Submit(event UsageEvent) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.closed {
		metrics.UsageEventsDroppedCounter.WithLabelValues("closed").Inc()
		return ErrSinkClosed
	}

	select {
	case r.queue <- event:
		return nil
	default:
		metrics.UsageEventsDroppedCounter.WithLabelValues("queue_full").Inc()
		r.log.WithFields(logrus.Fields{
			"event_id":  event.ID,
			"tenant_id": event.TenantID,
		}).Warn("Usage queue full, event dropped")
		return ErrQueueFull
	}
}

func (r *AsyncRecorder) worker(id int) {
	defer r.wg.Done()

	for event := range r.queue {
		r.record(id, event)
	}
}

func (r *AsyncRecorder) record(workerID int, event UsageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.recorder.RecordUsage(ctx, event); err != nil {
		metrics.UsageEventsDroppedCounter.WithLabelValues("record_failed").Inc()
		r.log.WithFields(logrus.Fields{
			"worker":    workerID,
			"event_id":  event.ID,
			"tenant_id": event.TenantID,
		}).WithError(err).Error("Failed to record usage")
		if r.OnFailure != nil {
			// the recording context may be the one that expired
			failCtx, failCancel := context.WithTimeout(context.Background(), r.timeout)
			r.OnFailure(failCtx, event, err)
			failCancel()
		}
	}
}

// Close stops accepting events and waits until the queued ones are recorded
func (r *AsyncRecorder) Close() {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mutex.Unlock()

	r.wg.Wait()
	r.log.Info("Usage recorder stopped")
}
