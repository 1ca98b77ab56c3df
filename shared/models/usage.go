package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CallTypeVoice is the call type recorded for assistant conversations
const CallTypeVoice = "voice"

// UsageRecord is one metered interaction. Rows are never updated or deleted.
// EventID is the id of the usage event that produced the row; replays of the
// same event hit its unique index.
type UsageRecord struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	EventID         string          `json:"event_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	TenantID        uuid.UUID       `json:"tenant_id" gorm:"type:uuid;index:idx_usage_tenant_ts;not null"`
	UserID          uuid.UUID       `json:"user_id" gorm:"type:uuid;not null"`
	CallType        string          `json:"call_type" gorm:"type:varchar(32);not null"`
	DurationSeconds int64           `json:"duration_seconds" gorm:"not null"`
	Cost            decimal.Decimal `json:"cost" gorm:"type:numeric(12,4);not null"`
	Timestamp       time.Time       `json:"timestamp" gorm:"index:idx_usage_tenant_ts;not null"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

func (r *UsageRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.EventID == "" {
		r.EventID = r.ID.String()
	}
	return nil
}

// FailedUsageEvent status values
const (
	FailedUsagePending           = "pending"
	FailedUsageResolved          = "resolved"
	FailedUsagePermanentlyFailed = "permanently_failed"
)

// FailedUsageEvent is a usage event the billing consumer could not record
type FailedUsageEvent struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OriginalEventID string     `json:"original_event_id" gorm:"not null"`
	TenantID        uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null"`
	UserID          uuid.UUID  `json:"user_id" gorm:"type:uuid;not null"`
	CallType        string     `json:"call_type" gorm:"not null"`
	DurationSeconds int64      `json:"duration_seconds" gorm:"not null"`
	OccurredAt      time.Time  `json:"occurred_at" gorm:"not null"`
	ErrorMessage    string     `json:"error_message" gorm:"not null"`
	RetryCount      int        `json:"retry_count" gorm:"not null;default:0"`
	Status          string     `json:"status" gorm:"type:varchar(32);index;not null;default:'pending'"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

func (FailedUsageEvent) TableName() string {
	return "failed_usage_events"
}

func (f *FailedUsageEvent) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
