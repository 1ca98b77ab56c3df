package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantStatus is the approval state of a tenant account
type TenantStatus string

const (
	TenantPending   TenantStatus = "pending"
	TenantApproved  TenantStatus = "approved"
	TenantRejected  TenantStatus = "rejected"
	TenantSuspended TenantStatus = "suspended"
)

// Valid reports whether s is one of the four known states
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantPending, TenantApproved, TenantRejected, TenantSuspended:
		return true
	}
	return false
}

// Tenant represents a company account on the platform
type Tenant struct {
	ID            uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	CompanyName   string       `json:"company_name" gorm:"not null"`
	ContactPerson string       `json:"contact_person"`
	Email         string       `json:"email" gorm:"uniqueIndex;not null"`
	Phone         string       `json:"phone"`
	Street        string       `json:"street"`
	HouseNumber   string       `json:"house_number"`
	PostalCode    string       `json:"postal_code"`
	City          string       `json:"city"`
	Country       string       `json:"country" gorm:"default:'Deutschland'"`
	TaxNumber     string       `json:"tax_number"`
	VatID         string       `json:"vat_id"`
	Status        TenantStatus `json:"status" gorm:"type:varchar(20);index;not null;default:'pending'"`

	PricingPlanID       *uuid.UUID `json:"pricing_plan_id,omitempty" gorm:"type:uuid"`
	MinutesBalance      int64      `json:"minutes_balance" gorm:"not null;default:0"`
	AccountingContactID *string    `json:"accounting_contact_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	// Relationships
	Users []User `json:"users,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TenantPending
	}
	return nil
}

// IsApproved reports whether the tenant may use tenant-scoped endpoints
func (t *Tenant) IsApproved() bool {
	return t.Status == TenantApproved
}
