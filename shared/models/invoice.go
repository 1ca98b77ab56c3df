package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus is the export state of an invoice
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceCreated   InvoiceStatus = "created"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Invoice is a frozen computation over a usage window. The rate fields hold the
// values in force at generation time, not a live join to the plan.
type Invoice struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID       `json:"tenant_id" gorm:"type:uuid;index;not null"`
	InvoiceNumber   string          `json:"invoice_number" gorm:"uniqueIndex;not null"`
	TotalMinutes    decimal.Decimal `json:"total_minutes" gorm:"type:numeric(12,4);not null"`
	BillableMinutes decimal.Decimal `json:"billable_minutes" gorm:"type:numeric(12,4);not null"`
	PricePerMinute  decimal.Decimal `json:"price_per_minute" gorm:"type:numeric(12,4);not null"`
	MonthlyFee      decimal.Decimal `json:"monthly_fee" gorm:"type:numeric(12,4);not null"`
	IncludedMinutes int64           `json:"included_minutes" gorm:"not null"`
	UsageCost       decimal.Decimal `json:"usage_cost" gorm:"type:numeric(12,4);not null"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,4);not null"`
	TaxRate         decimal.Decimal `json:"tax_rate" gorm:"type:numeric(6,4);not null"`
	TaxAmount       decimal.Decimal `json:"tax_amount" gorm:"type:numeric(12,4);not null"`
	GrossAmount     decimal.Decimal `json:"gross_amount" gorm:"type:numeric(12,4);not null"`
	PeriodStart     time.Time       `json:"period_start" gorm:"not null"`
	PeriodEnd       time.Time       `json:"period_end" gorm:"not null"`
	Status          InvoiceStatus   `json:"status" gorm:"type:varchar(20);index;not null"`
	ExternalID      *string         `json:"external_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	SentAt          *time.Time      `json:"sent_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
}

func (Invoice) TableName() string {
	return "invoices"
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// InvoiceSequence holds the last issued invoice number per calendar year
type InvoiceSequence struct {
	Year      int       `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (InvoiceSequence) TableName() string {
	return "invoice_sequences"
}
