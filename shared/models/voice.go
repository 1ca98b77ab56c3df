package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation stores one assistant exchange
type Conversation struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID `json:"tenant_id" gorm:"type:uuid;index;not null"`
	UserID          uuid.UUID `json:"user_id" gorm:"type:uuid;not null"`
	Transcription   string    `json:"transcription" gorm:"type:text;not null"`
	AgentResponse   string    `json:"agent_response" gorm:"type:text;not null"`
	CalendarAction  string    `json:"calendar_action,omitempty" gorm:"type:text"`
	DurationSeconds int64     `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Appointment is a calendar entry the assistant can talk about
type Appointment struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID `json:"tenant_id" gorm:"type:uuid;index;not null"`
	UserID           uuid.UUID `json:"user_id" gorm:"type:uuid;not null"`
	Title            string    `json:"title" gorm:"not null"`
	StartTime        time.Time `json:"start_time" gorm:"not null"`
	EndTime          time.Time `json:"end_time" gorm:"not null"`
	Description      string    `json:"description,omitempty"`
	CalendarProvider string    `json:"calendar_provider"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Appointment) TableName() string {
	return "appointments"
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// CalendarConnection links an external calendar account to a tenant. Tokens are
// never serialized back to clients.
type CalendarConnection struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID  `json:"tenant_id" gorm:"type:uuid;index;not null"`
	Provider     string     `json:"provider" gorm:"not null"`
	Email        string     `json:"email" gorm:"not null"`
	AccessToken  string     `json:"-" gorm:"not null"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"connected_at"`
}

func (CalendarConnection) TableName() string {
	return "calendar_connections"
}

func (c *CalendarConnection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
