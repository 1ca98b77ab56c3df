package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// PlanInput is the admin payload for creating or replacing a pricing plan
type PlanInput struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	PricePerMinute  decimal.Decimal `json:"price_per_minute"`
	MonthlyFee      decimal.Decimal `json:"monthly_fee"`
	IncludedMinutes int64           `json:"included_minutes"`
	IsActive        *bool           `json:"is_active"`
}

func (in PlanInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return apperr.Validation("Plan name is required")
	case !in.PricePerMinute.IsPositive():
		return apperr.Validation("Price per minute must be positive")
	case in.MonthlyFee.IsNegative():
		return apperr.Validation("Monthly fee must not be negative")
	case in.IncludedMinutes < 0:
		return apperr.Validation("Included minutes must not be negative")
	}
	return nil
}

// PackageInput is the admin payload for creating or replacing a minute package
type PackageInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Minutes     int64           `json:"minutes"`
	Price       decimal.Decimal `json:"price"`
	IsActive    *bool           `json:"is_active"`
}

func (in PackageInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return apperr.Validation("Package name is required")
	case in.Minutes <= 0:
		return apperr.Validation("Package minutes must be positive")
	case in.Price.IsNegative():
		return apperr.Validation("Package price must not be negative")
	}
	return nil
}

// Catalog is the admin-managed list of pricing plans and minute packages.
// Entries are deactivated, never deleted, so purchases and tenants keep their
// references.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) CreatePlan(ctx context.Context, in PlanInput) (*models.PricingPlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	plan := models.PricingPlan{
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		PricePerMinute:  in.PricePerMinute,
		MonthlyFee:      in.MonthlyFee,
		IncludedMinutes: in.IncludedMinutes,
		IsActive:        true,
	}
	if err := c.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, fmt.Errorf("failed to create pricing plan: %w", err)
	}

	// is_active has a column default, so false must be written separately
	if in.IsActive != nil && !*in.IsActive {
		return c.setPlanActive(ctx, plan.ID, false)
	}
	return &plan, nil
}

func (c *Catalog) UpdatePlan(ctx context.Context, id uuid.UUID, in PlanInput) (*models.PricingPlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":             strings.TrimSpace(in.Name),
		"description":      in.Description,
		"price_per_minute": in.PricePerMinute,
		"monthly_fee":      in.MonthlyFee,
		"included_minutes": in.IncludedMinutes,
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}

	result := c.db.WithContext(ctx).Model(&models.PricingPlan{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update pricing plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrPlanNotFound
	}
	return c.GetPlan(ctx, id)
}

func (c *Catalog) GetPlan(ctx context.Context, id uuid.UUID) (*models.PricingPlan, error) {
	var plan models.PricingPlan
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load pricing plan: %w", err)
	}
	return &plan, nil
}

// ListPlans returns plans ordered by price. Tenants only see active ones.
func (c *Catalog) ListPlans(ctx context.Context, activeOnly bool) ([]models.PricingPlan, error) {
	query := c.db.WithContext(ctx).Order("price_per_minute ASC, name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var plans []models.PricingPlan
	if err := query.Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list pricing plans: %w", err)
	}
	return plans, nil
}

// DeactivatePlan hides a plan from selection. Tenants already on it keep its rate.
func (c *Catalog) DeactivatePlan(ctx context.Context, id uuid.UUID) error {
	_, err := c.setPlanActive(ctx, id, false)
	return err
}

func (c *Catalog) setPlanActive(ctx context.Context, id uuid.UUID, active bool) (*models.PricingPlan, error) {
	result := c.db.WithContext(ctx).Model(&models.PricingPlan{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update pricing plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrPlanNotFound
	}
	return c.GetPlan(ctx, id)
}

func (c *Catalog) CreatePackage(ctx context.Context, in PackageInput) (*models.MinutePackage, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	pkg := models.MinutePackage{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Minutes:     in.Minutes,
		Price:       in.Price,
		IsActive:    true,
	}
	if err := c.db.WithContext(ctx).Create(&pkg).Error; err != nil {
		return nil, fmt.Errorf("failed to create minute package: %w", err)
	}

	if in.IsActive != nil && !*in.IsActive {
		return c.setPackageActive(ctx, pkg.ID, false)
	}
	return &pkg, nil
}

func (c *Catalog) UpdatePackage(ctx context.Context, id uuid.UUID, in PackageInput) (*models.MinutePackage, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":        strings.TrimSpace(in.Name),
		"description": in.Description,
		"minutes":     in.Minutes,
		"price":       in.Price,
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}

	result := c.db.WithContext(ctx).Model(&models.MinutePackage{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update minute package: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrPackageNotFound
	}
	return c.GetPackage(ctx, id)
}

func (c *Catalog) GetPackage(ctx context.Context, id uuid.UUID) (*models.MinutePackage, error) {
	var pkg models.MinutePackage
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&pkg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to load minute package: %w", err)
	}
	return &pkg, nil
}

func (c *Catalog) ListPackages(ctx context.Context, activeOnly bool) ([]models.MinutePackage, error) {
	query := c.db.WithContext(ctx).Order("minutes ASC, name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var packages []models.MinutePackage
	if err := query.Find(&packages).Error; err != nil {
		return nil, fmt.Errorf("failed to list minute packages: %w", err)
	}
	return packages, nil
}

func (c *Catalog) DeactivatePackage(ctx context.Context, id uuid.UUID) error {
	_, err := c.setPackageActive(ctx, id, false)
	return err
}

func (c *Catalog) setPackageActive(ctx context.Context, id uuid.UUID, active bool) (*models.MinutePackage, error) {
	result := c.db.WithContext(ctx).Model(&models.MinutePackage{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update minute package: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrPackageNotFound
	}
	return c.GetPackage(ctx, id)
}
