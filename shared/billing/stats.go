package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// PlatformStats are the counters on the super admin dashboard
type PlatformStats struct {
	TotalTenants    int64           `json:"total_tenants"`
	PendingTenants  int64           `json:"pending_tenants"`
	ApprovedTenants int64           `json:"approved_tenants"`
	TotalUsers      int64           `json:"total_users"`
	TotalCalls      int64           `json:"total_calls"`
	TotalMinutes    decimal.Decimal `json:"total_minutes"`
	TotalInvoices   int64           `json:"total_invoices"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
}

// CollectPlatformStats gathers the dashboard counters. Revenue is the gross sum
// of all invoices that were not cancelled.
func CollectPlatformStats(ctx context.Context, db *gorm.DB) (*PlatformStats, error) {
	db = db.WithContext(ctx)
	stats := &PlatformStats{}

	counts := []struct {
		model interface{}
		where string
		args  []interface{}
		dest  *int64
	}{
		{&models.Tenant{}, "", nil, &stats.TotalTenants},
		{&models.Tenant{}, "status = ?", []interface{}{models.TenantPending}, &stats.PendingTenants},
		{&models.Tenant{}, "status = ?", []interface{}{models.TenantApproved}, &stats.ApprovedTenants},
		{&models.User{}, "", nil, &stats.TotalUsers},
		{&models.UsageRecord{}, "", nil, &stats.TotalCalls},
		{&models.Invoice{}, "", nil, &stats.TotalInvoices},
	}
	for _, c := range counts {
		query := db.Model(c.model)
		if c.where != "" {
			query = query.Where(c.where, c.args...)
		}
		if err := query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count platform stats: %w", err)
		}
	}

	var seconds int64
	if err := db.Model(&models.UsageRecord{}).Select("COALESCE(SUM(duration_seconds), 0)").Scan(&seconds).Error; err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}
	stats.TotalMinutes = secondsToMinutes(seconds)

	var revenue decimal.Decimal
	err := db.Model(&models.Invoice{}).
		Select("COALESCE(SUM(gross_amount), 0)").
		Where("status <> ?", models.InvoiceCancelled).
		Row().Scan(&revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	stats.TotalRevenue = revenue.Round(2)

	return stats, nil
}
