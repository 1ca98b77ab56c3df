package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

var sixty = decimal.NewFromInt(60)

// UsageEvent is one billable interaction as captured by the calling service.
// OccurredAt is taken when the call finished and becomes the record timestamp.
type UsageEvent struct {
	ID              string    `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	UserID          uuid.UUID `json:"user_id"`
	CallType        string    `json:"call_type"`
	DurationSeconds int64     `json:"duration_seconds"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewUsageEvent stamps a fresh id and the current time
func NewUsageEvent(tenantID, userID uuid.UUID, callType string, durationSeconds int64) UsageEvent {
	return UsageEvent{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		UserID:          userID,
		CallType:        callType,
		DurationSeconds: durationSeconds,
		OccurredAt:      time.Now().UTC(),
	}
}

func (e UsageEvent) validate() error {
	switch {
	case e.TenantID == uuid.Nil:
		return apperr.Validation("Usage event requires a tenant")
	case e.UserID == uuid.Nil:
		return apperr.Validation("Usage event requires a user")
	case e.DurationSeconds < 0:
		return apperr.Validation("Usage duration must not be negative")
	}
	return nil
}

// CalculateCost prices a duration: seconds/60 * rate, rounded to 4 places
func CalculateCost(durationSeconds int64, pricePerMinute decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(durationSeconds).Mul(pricePerMinute).Div(sixty).Round(4)
}

// Ledger appends usage records. It never touches the prepaid balance.
type Ledger struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewLedger(db *gorm.DB, log *logrus.Entry) *Ledger {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ledger{db: db, log: log}
}

// RecordUsage prices the event with the tenant's current rate and stores it
func (l *Ledger) RecordUsage(ctx context.Context, event UsageEvent) (*models.UsageRecord, error) {
	if err := event.validate(); err != nil {
		return nil, err
	}

	db := l.db.WithContext(ctx)
	_, rate, err := loadRate(db, event.TenantID)
	if err != nil {
		return nil, err
	}

	callType := strings.TrimSpace(event.CallType)
	if callType == "" {
		callType = models.CallTypeVoice
	}
	timestamp := event.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	record := models.UsageRecord{
		EventID:         strings.TrimSpace(event.ID),
		TenantID:        event.TenantID,
		UserID:          event.UserID,
		CallType:        callType,
		DurationSeconds: event.DurationSeconds,
		Cost:            CalculateCost(event.DurationSeconds, rate.PricePerMinute),
		Timestamp:       timestamp.UTC(),
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to record usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// redelivered event, the first delivery already billed it
		var existing models.UsageRecord
		if err := db.Where("event_id = ?", record.EventID).First(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to load recorded usage: %w", err)
		}
		l.log.WithFields(logrus.Fields{
			"event_id":  record.EventID,
			"tenant_id": record.TenantID,
		}).Debug("Usage event already recorded")
		return &existing, nil
	}

	metrics.UsageRecordsCounter.WithLabelValues(callType).Inc()
	l.log.WithFields(logrus.Fields{
		"tenant_id":        record.TenantID,
		"user_id":          record.UserID,
		"call_type":        record.CallType,
		"duration_seconds": record.DurationSeconds,
		"cost":             record.Cost.String(),
	}).Debug("Usage recorded")

	return &record, nil
}

// Period is an optional time window, inclusive at both ends
type Period struct {
	From *time.Time
	To   *time.Time
}

func (p Period) apply(query *gorm.DB) *gorm.DB {
	if p.From != nil {
		query = query.Where("timestamp >= ?", p.From.UTC())
	}
	if p.To != nil {
		query = query.Where("timestamp <= ?", p.To.UTC())
	}
	return query
}

// ListUsage returns a tenant's records in the period, newest first. limit <= 0
// means no limit.
func (l *Ledger) ListUsage(ctx context.Context, tenantID uuid.UUID, period Period, limit int) ([]models.UsageRecord, error) {
	query := period.apply(l.db.WithContext(ctx).Where("tenant_id = ?", tenantID)).Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.UsageRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return records, nil
}

// UsageSummary aggregates a tenant's usage over a period
type UsageSummary struct {
	TotalCalls   int64           `json:"total_calls"`
	TotalSeconds int64           `json:"total_seconds"`
	TotalMinutes decimal.Decimal `json:"total_minutes"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

func (l *Ledger) Summary(ctx context.Context, tenantID uuid.UUID, period Period) (*UsageSummary, error) {
	var (
		calls   int64
		seconds int64
		cost    decimal.Decimal
	)

	query := l.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("COUNT(*), COALESCE(SUM(duration_seconds), 0), COALESCE(SUM(cost), 0)").
		Where("tenant_id = ?", tenantID)
	if err := period.apply(query).Row().Scan(&calls, &seconds, &cost); err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}

	return &UsageSummary{
		TotalCalls:   calls,
		TotalSeconds: seconds,
		TotalMinutes: secondsToMinutes(seconds),
		TotalCost:    cost.Round(4),
	}, nil
}

// totalSeconds sums a tenant's usage durations in [start, end]
func totalSeconds(db *gorm.DB, tenantID uuid.UUID, start, end time.Time) (int64, error) {
	var total int64
	err := db.Model(&models.UsageRecord{}).
		Select("COALESCE(SUM(duration_seconds), 0)").
		Where("tenant_id = ? AND timestamp >= ? AND timestamp <= ?", tenantID, start.UTC(), end.UTC()).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return total, nil
}

func secondsToMinutes(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).Div(sixty).Round(2)
}
