// Package billing holds the metering and invoicing engine: rate resolution,
// prepaid balance, the usage ledger and invoice generation.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// DefaultPricePerMinute applies to tenants without a selected plan
var DefaultPricePerMinute = decimal.RequireFromString("0.15")

var (
	ErrTenantNotFound  = apperr.NotFound("Tenant not found")
	ErrPlanNotFound    = apperr.NotFound("Pricing plan not found")
	ErrPackageNotFound = apperr.NotFound("Minute package not found")
)

// Rate is the set of prices applied to a tenant's usage
type Rate struct {
	PlanID          *uuid.UUID      `json:"plan_id,omitempty"`
	PricePerMinute  decimal.Decimal `json:"price_per_minute"`
	MonthlyFee      decimal.Decimal `json:"monthly_fee"`
	IncludedMinutes int64           `json:"included_minutes"`
}

// DefaultRate is 0.15 per minute with no monthly fee and no included minutes
func DefaultRate() Rate {
	return Rate{
		PricePerMinute: DefaultPricePerMinute,
		MonthlyFee:     decimal.Zero,
	}
}

// ResolveRate returns the values of the tenant's selected plan, or DefaultRate
// when no plan is selected or plan is not the selected one. A deactivated plan
// still prices tenants that selected it before deactivation.
func ResolveRate(tenant *models.Tenant, plan *models.PricingPlan) Rate {
	if tenant == nil || tenant.PricingPlanID == nil || plan == nil || plan.ID != *tenant.PricingPlanID {
		return DefaultRate()
	}

	id := plan.ID
	return Rate{
		PlanID:          &id,
		PricePerMinute:  plan.PricePerMinute,
		MonthlyFee:      plan.MonthlyFee,
		IncludedMinutes: plan.IncludedMinutes,
	}
}

// loadRate resolves the rate of a tenant inside db, which may be a transaction
func loadRate(db *gorm.DB, tenantID uuid.UUID) (*models.Tenant, Rate, error) {
	var tenant models.Tenant
	if err := db.Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Rate{}, ErrTenantNotFound
		}
		return nil, Rate{}, fmt.Errorf("failed to load tenant: %w", err)
	}

	if tenant.PricingPlanID == nil {
		return &tenant, DefaultRate(), nil
	}

	var plan models.PricingPlan
	err := db.Where("id = ?", *tenant.PricingPlanID).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &tenant, DefaultRate(), nil
	}
	if err != nil {
		return nil, Rate{}, fmt.Errorf("failed to load pricing plan: %w", err)
	}

	return &tenant, ResolveRate(&tenant, &plan), nil
}

// Pricing manages plan selection and the prepaid minute balance
type Pricing struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewPricing(db *gorm.DB, log *logrus.Entry) *Pricing {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pricing{db: db, log: log}
}

// RateForTenant resolves the rate currently applied to a tenant
func (p *Pricing) RateForTenant(ctx context.Context, tenantID uuid.UUID) (Rate, error) {
	_, rate, err := loadRate(p.db.WithContext(ctx), tenantID)
	return rate, err
}

// SelectPlan points the tenant at an active plan
func (p *Pricing) SelectPlan(ctx context.Context, tenantID, planID uuid.UUID) (*models.PricingPlan, error) {
	db := p.db.WithContext(ctx)

	var plan models.PricingPlan
	if err := db.Where("id = ? AND is_active = ?", planID, true).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load pricing plan: %w", err)
	}

	result := db.Model(&models.Tenant{}).Where("id = ?", tenantID).Update("pricing_plan_id", plan.ID)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to select pricing plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrTenantNotFound
	}

	p.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"plan_id":   plan.ID,
	}).Info("Pricing plan selected")

	return &plan, nil
}

// PurchasePackage credits the package minutes and appends the purchase in one
// transaction. Repeated purchases are not deduplicated.
func (p *Pricing) PurchasePackage(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pkg models.MinutePackage
		if err := tx.Where("id = ? AND is_active = ?", packageID, true).First(&pkg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPackageNotFound
			}
			return fmt.Errorf("failed to load minute package: %w", err)
		}

		result := tx.Model(&models.Tenant{}).
			Where("id = ?", tenantID).
			Update("minutes_balance", gorm.Expr("minutes_balance + ?", pkg.Minutes))
		if result.Error != nil {
			return fmt.Errorf("failed to credit minutes: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTenantNotFound
		}

		purchase = models.Purchase{
			TenantID:  tenantID,
			PackageID: pkg.ID,
			Minutes:   pkg.Minutes,
			Price:     pkg.Price,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&purchase).Error; err != nil {
			return fmt.Errorf("failed to record purchase: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PackagePurchasesCounter.Inc()
	p.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"package_id": packageID,
		"minutes":    purchase.Minutes,
	}).Info("Minute package purchased")

	return &purchase, nil
}

// ListPurchases returns a tenant's purchases, newest first
func (p *Pricing) ListPurchases(ctx context.Context, tenantID uuid.UUID) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := p.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&purchases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}

// Balance returns the prepaid minute balance of a tenant
func (p *Pricing) Balance(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var tenant models.Tenant
	err := p.db.WithContext(ctx).Select("id", "minutes_balance").Where("id = ?", tenantID).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrTenantNotFound
		}
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}
	return tenant.MinutesBalance, nil
}
