package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PricingPlan is a pay-per-use tariff a tenant can select
type PricingPlan struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Name            string          `json:"name" gorm:"not null"`
	Description     string          `json:"description"`
	PricePerMinute  decimal.Decimal `json:"price_per_minute" gorm:"type:numeric(12,4);not null"`
	MonthlyFee      decimal.Decimal `json:"monthly_fee" gorm:"type:numeric(12,4);not null;default:0"`
	IncludedMinutes int64           `json:"included_minutes" gorm:"not null;default:0"`
	IsActive        bool            `json:"is_active" gorm:"not null;default:true"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (PricingPlan) TableName() string {
	return "pricing_plans"
}

func (p *PricingPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// MinutePackage is a prepaid bundle of call minutes
type MinutePackage struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string          `json:"name" gorm:"not null"`
	Description string          `json:"description"`
	Minutes     int64           `json:"minutes" gorm:"not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(12,4);not null"`
	IsActive    bool            `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (MinutePackage) TableName() string {
	return "minute_packages"
}

func (p *MinutePackage) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Purchase records one package purchase. Rows are append-only.
type Purchase struct {
	ID        uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID       `json:"tenant_id" gorm:"type:uuid;index;not null"`
	PackageID uuid.UUID       `json:"package_id" gorm:"type:uuid;not null"`
	Minutes   int64           `json:"minutes" gorm:"not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:numeric(12,4);not null"`
	CreatedAt time.Time       `json:"created_at"`
}

func (Purchase) TableName() string {
	return "purchases"
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
