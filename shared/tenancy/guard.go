package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

var (
	ErrTenantNotApproved = apperr.Forbidden("Tenant not approved")
	ErrSuperAdminOnly    = apperr.Forbidden("Super admin access required")
	ErrTenantAdminOnly   = apperr.Forbidden("Tenant admin access required")
)

// Guard is the authorization chokepoint for tenant-scoped and platform endpoints
type Guard struct {
	db    *gorm.DB
	cache StatusCache
}

// NewGuard builds a guard. cache may be nil.
func NewGuard(db *gorm.DB, cache StatusCache) *Guard {
	return &Guard{db: db, cache: cacheOrNoop(cache)}
}

// RequireApproved lets super admins through and otherwise demands an existing,
// approved tenant
func (g *Guard) RequireApproved(ctx context.Context, p auth.Principal) error {
	switch v := p.(type) {
	case auth.SuperAdmin:
		return nil
	case auth.TenantUser:
		status, err := g.tenantStatus(ctx, v.TenantID)
		if err != nil {
			return err
		}
		if status != models.TenantApproved {
			return ErrTenantNotApproved
		}
		return nil
	default:
		return ErrTenantNotApproved
	}
}

// RequireSuperAdmin fails unless p is the platform operator
func (g *Guard) RequireSuperAdmin(p auth.Principal) error {
	if _, ok := p.(auth.SuperAdmin); ok {
		return nil
	}
	return ErrSuperAdminOnly
}

// RequireTenantAdmin demands an approved tenant and an active admin user. The
// returned principal has IsAdmin set.
func (g *Guard) RequireTenantAdmin(ctx context.Context, p auth.Principal) (auth.TenantUser, error) {
	tu, ok := p.(auth.TenantUser)
	if !ok {
		return auth.TenantUser{}, ErrTenantAdminOnly
	}
	if err := g.RequireApproved(ctx, tu); err != nil {
		return auth.TenantUser{}, err
	}

	var user models.User
	err := g.db.WithContext(ctx).
		Select("id", "is_admin", "is_active").
		Where("id = ? AND tenant_id = ?", tu.UserID, tu.TenantID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return auth.TenantUser{}, ErrTenantAdminOnly
		}
		return auth.TenantUser{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsAdmin || !user.IsActive {
		return auth.TenantUser{}, ErrTenantAdminOnly
	}

	tu.IsAdmin = true
	return tu, nil
}

// tenantStatus returns Forbidden rather than NotFound for missing tenants so the
// guard never reveals which ids exist
func (g *Guard) tenantStatus(ctx context.Context, tenantID uuid.UUID) (models.TenantStatus, error) {
	if status, ok := g.cache.Get(ctx, tenantID); ok {
		return status, nil
	}

	var tenant models.Tenant
	err := g.db.WithContext(ctx).Select("id", "status").Where("id = ?", tenantID).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTenantNotApproved
		}
		return "", fmt.Errorf("failed to load tenant status: %w", err)
	}

	g.cache.Fill(ctx, tenantID, tenant.Status)
	return tenant.Status, nil
}
