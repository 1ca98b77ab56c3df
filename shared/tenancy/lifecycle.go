package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/metrics"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

var ErrTenantNotFound = apperr.NotFound("Tenant not found")

// transitions lists the allowed status moves. rejected and suspended are terminal.
var transitions = map[models.TenantStatus][]models.TenantStatus{
	models.TenantPending:  {models.TenantApproved, models.TenantRejected},
	models.TenantApproved: {models.TenantSuspended},
}

// CanTransition reports whether from -> to is an allowed lifecycle move
func CanTransition(from, to models.TenantStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Lifecycle owns tenant status changes and tenant profile reads and edits
type Lifecycle struct {
	db    *gorm.DB
	cache StatusCache
	log   *logrus.Entry
	now   func() time.Time
}

// NewLifecycle builds the lifecycle manager. cache may be nil.
func NewLifecycle(db *gorm.DB, cache StatusCache, log *logrus.Entry) *Lifecycle {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Lifecycle{db: db, cache: cacheOrNoop(cache), log: log, now: time.Now}
}

func (l *Lifecycle) Approve(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return l.transition(ctx, tenantID, models.TenantApproved)
}

func (l *Lifecycle) Reject(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return l.transition(ctx, tenantID, models.TenantRejected)
}

func (l *Lifecycle) Suspend(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return l.transition(ctx, tenantID, models.TenantSuspended)
}

// transition applies a status change as a conditional update on the current
// status. Repeating the current status is a no-op and never re-stamps approved_at.
func (l *Lifecycle) transition(ctx context.Context, tenantID uuid.UUID, to models.TenantStatus) (*models.Tenant, error) {
	tenant, err := l.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	from := tenant.Status
	if from == to {
		return tenant, nil
	}
	if !CanTransition(from, to) {
		return nil, apperr.Conflict(fmt.Sprintf("Cannot change tenant status from %s to %s", from, to))
	}

	updates := map[string]interface{}{"status": to}
	if to == models.TenantApproved {
		updates["approved_at"] = l.now().UTC()
	}

	result := l.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ? AND status = ?", tenantID, from).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update tenant status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.Conflict("Tenant status changed concurrently, reload and retry")
	}

	l.cache.Set(ctx, tenantID, to)
	metrics.TenantTransitionsCounter.WithLabelValues(string(to)).Inc()
	l.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"from":      from,
		"to":        to,
	}).Info("Tenant status changed")

	return l.Get(ctx, tenantID)
}

// Get loads one tenant
func (l *Lifecycle) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := l.db.WithContext(ctx).Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to fetch tenant: %w", err)
	}
	return &tenant, nil
}

// List returns tenants newest first, optionally filtered by status
func (l *Lifecycle) List(ctx context.Context, status string) ([]models.Tenant, error) {
	query := l.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		s := models.TenantStatus(strings.ToLower(status))
		if !s.Valid() {
			return nil, apperr.Validation("Unknown tenant status " + status)
		}
		query = query.Where("status = ?", s)
	}

	var tenants []models.Tenant
	if err := query.Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tenants: %w", err)
	}
	return tenants, nil
}

// ProfileUpdate carries the tenant fields a tenant may edit itself. Nil fields are
// left untouched.
type ProfileUpdate struct {
	CompanyName   *string `json:"company_name"`
	ContactPerson *string `json:"contact_person"`
	Phone         *string `json:"phone"`
	Street        *string `json:"street"`
	HouseNumber   *string `json:"house_number"`
	PostalCode    *string `json:"postal_code"`
	City          *string `json:"city"`
	Country       *string `json:"country"`
	TaxNumber     *string `json:"tax_number"`
	VatID         *string `json:"vat_id"`
}

func (u ProfileUpdate) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	set := func(name string, v *string) {
		if v != nil {
			cols[name] = strings.TrimSpace(*v)
		}
	}
	set("company_name", u.CompanyName)
	set("contact_person", u.ContactPerson)
	set("phone", u.Phone)
	set("street", u.Street)
	set("house_number", u.HouseNumber)
	set("postal_code", u.PostalCode)
	set("city", u.City)
	set("country", u.Country)
	set("tax_number", u.TaxNumber)
	set("vat_id", u.VatID)
	return cols
}

// UpdateProfile writes only the supplied profile columns. Status, plan, balance
// and accounting fields cannot be changed here.
func (l *Lifecycle) UpdateProfile(ctx context.Context, tenantID uuid.UUID, update ProfileUpdate) (*models.Tenant, error) {
	cols := update.columns()
	if name, ok := cols["company_name"]; ok && name == "" {
		return nil, apperr.Validation("Company name must not be empty")
	}
	if len(cols) > 0 {
		result := l.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Updates(cols)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update tenant: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrTenantNotFound
		}
	}
	return l.Get(ctx, tenantID)
}
