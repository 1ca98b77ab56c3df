package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/models"
	"github.com/pavitra93/voice-agent-saas/shared/testutil"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestResolveRate(t *testing.T) {
	plan := &models.PricingPlan{
		ID:              uuid.New(),
		PricePerMinute:  dec("0.10"),
		MonthlyFee:      dec("29"),
		IncludedMinutes: 100,
	}

	t.Run("no plan selected uses the default", func(t *testing.T) {
		rate := ResolveRate(&models.Tenant{}, nil)
		assert.True(t, rate.PricePerMinute.Equal(dec("0.15")))
		assert.True(t, rate.MonthlyFee.IsZero())
		assert.Zero(t, rate.IncludedMinutes)
		assert.Nil(t, rate.PlanID)
	})

	t.Run("selected plan values are used", func(t *testing.T) {
		rate := ResolveRate(&models.Tenant{PricingPlanID: &plan.ID}, plan)
		assert.True(t, rate.PricePerMinute.Equal(dec("0.10")))
		assert.True(t, rate.MonthlyFee.Equal(dec("29")))
		assert.Equal(t, int64(100), rate.IncludedMinutes)
		require.NotNil(t, rate.PlanID)
		assert.Equal(t, plan.ID, *rate.PlanID)
	})

	t.Run("a plan other than the selected one is ignored", func(t *testing.T) {
		other := uuid.New()
		rate := ResolveRate(&models.Tenant{PricingPlanID: &other}, plan)
		assert.True(t, rate.PricePerMinute.Equal(DefaultPricePerMinute))
	})
}

func TestPricing_RateForTenant(t *testing.T) {
	db := testutil.NewDB(t)
	pricing := NewPricing(db, nil)
	ctx := context.Background()

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := pricing.RateForTenant(ctx, uuid.New())
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("deleted plan row falls back to the default", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, db, models.TenantApproved)
		plan := testutil.CreatePlan(t, db, "0.09", "10", 0)
		testutil.AssignPlan(t, db, tenant, plan)
		require.NoError(t, db.Delete(&models.PricingPlan{}, "id = ?", plan.ID).Error)

		rate, err := pricing.RateForTenant(ctx, tenant.ID)
		require.NoError(t, err)
		assert.True(t, rate.PricePerMinute.Equal(DefaultPricePerMinute))
	})

	t.Run("deactivated plan still prices its tenants", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, db, models.TenantApproved)
		plan := testutil.CreatePlan(t, db, "0.09", "10", 0)
		testutil.AssignPlan(t, db, tenant, plan)
		require.NoError(t, NewCatalog(db).DeactivatePlan(ctx, plan.ID))

		rate, err := pricing.RateForTenant(ctx, tenant.ID)
		require.NoError(t, err)
		assert.True(t, rate.PricePerMinute.Equal(dec("0.09")))
	})
}

func TestPricing_SelectPlan(t *testing.T) {
	db := testutil.NewDB(t)
	pricing := NewPricing(db, nil)
	ctx := context.Background()
	tenant := testutil.CreateTenant(t, db, models.TenantApproved)

	t.Run("active plan", func(t *testing.T) {
		plan := testutil.CreatePlan(t, db, "0.12", "0", 0)

		selected, err := pricing.SelectPlan(ctx, tenant.ID, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, plan.ID, selected.ID)

		var stored models.Tenant
		require.NoError(t, db.First(&stored, "id = ?", tenant.ID).Error)
		require.NotNil(t, stored.PricingPlanID)
		assert.Equal(t, plan.ID, *stored.PricingPlanID)
	})

	t.Run("inactive plan cannot be selected", func(t *testing.T) {
		plan := testutil.CreatePlan(t, db, "0.12", "0", 0)
		require.NoError(t, NewCatalog(db).DeactivatePlan(ctx, plan.ID))

		_, err := pricing.SelectPlan(ctx, tenant.ID, plan.ID)
		assert.ErrorIs(t, err, ErrPlanNotFound)
	})

	t.Run("missing plan", func(t *testing.T) {
		_, err := pricing.SelectPlan(ctx, tenant.ID, uuid.New())
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("missing tenant", func(t *testing.T) {
		plan := testutil.CreatePlan(t, db, "0.12", "0", 0)
		_, err := pricing.SelectPlan(ctx, uuid.New(), plan.ID)
		assert.ErrorIs(t, err, ErrTenantNotFound)
	})
}

func TestPricing_PurchasePackage(t *testing.T) {
	db := testutil.NewDB(t)
	pricing := NewPricing(db, nil)
	catalog := NewCatalog(db)
	ctx := context.Background()

	pkg, err := catalog.CreatePackage(ctx, PackageInput{Name: "500 Minuten", Minutes: 500, Price: dec("59.00")})
	require.NoError(t, err)

	t.Run("buying twice credits twice and keeps two purchases", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, db, models.TenantApproved)

		first, err := pricing.PurchasePackage(ctx, tenant.ID, pkg.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), first.Minutes)
		assert.True(t, first.Price.Equal(dec("59")))

		_, err = pricing.PurchasePackage(ctx, tenant.ID, pkg.ID)
		require.NoError(t, err)

		balance, err := pricing.Balance(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), balance)

		purchases, err := pricing.ListPurchases(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Len(t, purchases, 2)
	})

	t.Run("concurrent purchases do not lose updates", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, db, models.TenantApproved)

		errs := make(chan error, 4)
		for i := 0; i < 4; i++ {
			go func() {
				_, err := pricing.PurchasePackage(ctx, tenant.ID, pkg.ID)
				errs <- err
			}()
		}
		for i := 0; i < 4; i++ {
			require.NoError(t, <-errs)
		}

		balance, err := pricing.Balance(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), balance)
	})

	t.Run("inactive package is not for sale", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, db, models.TenantApproved)
		old, err := catalog.CreatePackage(ctx, PackageInput{Name: "Alt", Minutes: 10, Price: dec("1")})
		require.NoError(t, err)
		require.NoError(t, catalog.DeactivatePackage(ctx, old.ID))

		_, err = pricing.PurchasePackage(ctx, tenant.ID, old.ID)
		assert.ErrorIs(t, err, ErrPackageNotFound)

		balance, err := pricing.Balance(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Zero(t, balance)
	})

	t.Run("unknown tenant leaves no purchase behind", func(t *testing.T) {
		ghost := uuid.New()
		_, err := pricing.PurchasePackage(ctx, ghost, pkg.ID)
		assert.ErrorIs(t, err, ErrTenantNotFound)

		var count int64
		require.NoError(t, db.Model(&models.Purchase{}).Where("tenant_id = ?", ghost).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestCatalog(t *testing.T) {
	db := testutil.NewDB(t)
	catalog := NewCatalog(db)
	ctx := context.Background()

	t.Run("plan validation", func(t *testing.T) {
		_, err := catalog.CreatePlan(ctx, PlanInput{Name: "", PricePerMinute: dec("0.1")})
		assert.True(t, apperr.IsConflict(err))

		_, err = catalog.CreatePlan(ctx, PlanInput{Name: "Gratis", PricePerMinute: decimal.Zero})
		assert.True(t, apperr.IsConflict(err))

		_, err = catalog.CreatePlan(ctx, PlanInput{Name: "X", PricePerMinute: dec("0.1"), IncludedMinutes: -1})
		assert.True(t, apperr.IsConflict(err))
	})

	t.Run("plan created inactive stays inactive", func(t *testing.T) {
		inactive := false
		plan, err := catalog.CreatePlan(ctx, PlanInput{Name: "Entwurf", PricePerMinute: dec("0.2"), IsActive: &inactive})
		require.NoError(t, err)
		assert.False(t, plan.IsActive)

		active, err := catalog.ListPlans(ctx, true)
		require.NoError(t, err)
		for _, p := range active {
			assert.NotEqual(t, plan.ID, p.ID)
		}
	})

	t.Run("update replaces values", func(t *testing.T) {
		plan, err := catalog.CreatePlan(ctx, PlanInput{Name: "Starter", PricePerMinute: dec("0.15")})
		require.NoError(t, err)

		updated, err := catalog.UpdatePlan(ctx, plan.ID, PlanInput{
			Name:            "Starter Plus",
			PricePerMinute:  dec("0.12"),
			MonthlyFee:      dec("19"),
			IncludedMinutes: 60,
		})
		require.NoError(t, err)
		assert.Equal(t, "Starter Plus", updated.Name)
		assert.True(t, updated.PricePerMinute.Equal(dec("0.12")))
		assert.Equal(t, int64(60), updated.IncludedMinutes)
		assert.True(t, updated.IsActive)
	})

	t.Run("update of unknown plan", func(t *testing.T) {
		_, err := catalog.UpdatePlan(ctx, uuid.New(), PlanInput{Name: "X", PricePerMinute: dec("0.1")})
		assert.ErrorIs(t, err, ErrPlanNotFound)
	})

	t.Run("package validation", func(t *testing.T) {
		_, err := catalog.CreatePackage(ctx, PackageInput{Name: "Leer", Minutes: 0, Price: dec("1")})
		assert.True(t, apperr.IsConflict(err))
	})

	t.Run("packages listed by size", func(t *testing.T) {
		_, err := catalog.CreatePackage(ctx, PackageInput{Name: "Groß", Minutes: 1000, Price: dec("99")})
		require.NoError(t, err)
		_, err = catalog.CreatePackage(ctx, PackageInput{Name: "Klein", Minutes: 100, Price: dec("14")})
		require.NoError(t, err)

		packages, err := catalog.ListPackages(ctx, true)
		require.NoError(t, err)
		require.Len(t, packages, 2)
		assert.Equal(t, "Klein", packages[0].Name)
	})
}
