package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// CreateTenant inserts a tenant in the given status with a unique email
func CreateTenant(t *testing.T, db *gorm.DB, status models.TenantStatus) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{
		CompanyName:   "Praxis Dr. Weber",
		ContactPerson: "Anna Weber",
		Email:         fmt.Sprintf("praxis-%s@example.de", uuid.NewString()[:8]),
		City:          "Berlin",
		Status:        status,
	}
	if status == models.TenantApproved {
		now := time.Now().UTC()
		tenant.ApprovedAt = &now
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

// CreateUser inserts an active user for tenantID. The hash is not a valid bcrypt hash.
func CreateUser(t *testing.T, db *gorm.DB, tenantID uuid.UUID, isAdmin bool) *models.User {
	t.Helper()

	user := &models.User{
		TenantID:     tenantID,
		Email:        fmt.Sprintf("user-%s@example.de", uuid.NewString()[:8]),
		Username:     "user",
		PasswordHash: "x",
		IsAdmin:      isAdmin,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreatePlan inserts an active pricing plan
func CreatePlan(t *testing.T, db *gorm.DB, pricePerMinute, monthlyFee string, included int64) *models.PricingPlan {
	t.Helper()

	plan := &models.PricingPlan{
		Name:            "Business",
		PricePerMinute:  decimal.RequireFromString(pricePerMinute),
		MonthlyFee:      decimal.RequireFromString(monthlyFee),
		IncludedMinutes: included,
		IsActive:        true,
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

// AssignPlan points a tenant at a plan
func AssignPlan(t *testing.T, db *gorm.DB, tenant *models.Tenant, plan *models.PricingPlan) {
	t.Helper()

	require.NoError(t, db.Model(&models.Tenant{}).
		Where("id = ?", tenant.ID).
		Update("pricing_plan_id", plan.ID).Error)
	tenant.PricingPlanID = &plan.ID
}
