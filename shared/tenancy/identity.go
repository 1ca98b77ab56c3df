package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

var (
	ErrInvalidCredentials = apperr.Auth("Invalid credentials")
	ErrAccountDisabled    = apperr.Auth("Account disabled")
	ErrEmailTaken         = apperr.Validation("Email already registered")
	ErrUserCapReached     = apperr.Validation(fmt.Sprintf("Maximum %d users per tenant allowed", models.MaxUsersPerTenant))
	ErrDeleteSelf         = apperr.Validation("Cannot delete yourself")
	ErrUserNotFound       = apperr.NotFound("User not found")
)

// RegisterInput is the self-service signup payload
type RegisterInput struct {
	CompanyName   string `json:"company_name" binding:"required"`
	ContactPerson string `json:"contact_person" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=6"`
	Phone         string `json:"phone"`
	Street        string `json:"street"`
	HouseNumber   string `json:"house_number"`
	PostalCode    string `json:"postal_code"`
	City          string `json:"city"`
	Country       string `json:"country"`
	TaxNumber     string `json:"tax_number"`
	VatID         string `json:"vat_id"`
}

// CreateUserInput adds a user to an existing tenant
type CreateUserInput struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// Session is returned on register and login
type Session struct {
	AccessToken  string              `json:"access_token"`
	TokenType    string              `json:"token_type"`
	TenantID     string              `json:"tenant_id"`
	UserID       string              `json:"user_id"`
	Username     string              `json:"username"`
	IsSuperAdmin bool                `json:"is_super_admin"`
	TenantStatus models.TenantStatus `json:"tenant_status,omitempty"`
}

// Option configures a Directory
type Option func(*Directory)

// WithHashCost overrides the bcrypt cost, mainly for tests
func WithHashCost(cost int) Option {
	return func(d *Directory) { d.hashCost = cost }
}

// Directory handles registration, login, user management and super-admin provisioning
type Directory struct {
	db       *gorm.DB
	tokens   *auth.TokenService
	hashCost int
}

func NewDirectory(db *gorm.DB, tokens *auth.TokenService, opts ...Option) *Directory {
	d := &Directory{db: db, tokens: tokens, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a pending tenant and its first user, who is always admin
func (d *Directory) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	if taken, err := d.emailTaken(ctx, d.db, email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password, d.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	country := in.Country
	if country == "" {
		country = "Deutschland"
	}
	tenant := models.Tenant{
		CompanyName:   strings.TrimSpace(in.CompanyName),
		ContactPerson: strings.TrimSpace(in.ContactPerson),
		Email:         email,
		Phone:         in.Phone,
		Street:        in.Street,
		HouseNumber:   in.HouseNumber,
		PostalCode:    in.PostalCode,
		City:          in.City,
		Country:       country,
		TaxNumber:     in.TaxNumber,
		VatID:         in.VatID,
		Status:        models.TenantPending,
	}
	user := models.User{
		Email:        email,
		Username:     strings.TrimSpace(in.ContactPerson),
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}
		user.TenantID = tenant.ID
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to register tenant: %w", err)
	}

	return d.session(user.ID.String(), tenant.ID.String(), email, user.Username, false, tenant.Status)
}

// Authenticate checks credentials against the super admin first, then tenant users.
// Users of pending tenants still get a token; the approval guard refuses it.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	db := d.db.WithContext(ctx)

	var admin models.SuperAdmin
	err := db.Where("email = ?", email).First(&admin).Error
	switch {
	case err == nil:
		if !auth.CheckPassword(password, admin.PasswordHash) {
			return nil, ErrInvalidCredentials
		}
		return d.session(admin.ID.String(), auth.PlatformTenantID, admin.Email, "Super Admin", true, "")
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to look up super admin: %w", err)
	}

	var user models.User
	if err := db.Preload("Tenant").Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	var status models.TenantStatus
	if user.Tenant != nil {
		status = user.Tenant.Status
	}
	return d.session(user.ID.String(), user.TenantID.String(), user.Email, user.Username, false, status)
}

func (d *Directory) session(userID, tenantID, email, username string, superAdmin bool, status models.TenantStatus) (*Session, error) {
	token, err := d.tokens.Issue(userID, tenantID, email, superAdmin)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  token,
		TokenType:    "bearer",
		TenantID:     tenantID,
		UserID:       userID,
		Username:     username,
		IsSuperAdmin: superAdmin,
		TenantStatus: status,
	}, nil
}

// Me returns the caller's profile
func (d *Directory) Me(ctx context.Context, p auth.Principal) (*models.UserProfile, error) {
	switch v := p.(type) {
	case auth.SuperAdmin:
		return &models.UserProfile{
			ID:           v.UserID,
			Email:        v.Email,
			Username:     "Super Admin",
			TenantID:     auth.PlatformTenantID,
			IsSuperAdmin: true,
		}, nil
	case auth.TenantUser:
		var user models.User
		err := d.db.WithContext(ctx).Preload("Tenant").
			Where("id = ? AND tenant_id = ?", v.UserID, v.TenantID).
			First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("failed to fetch user: %w", err)
		}
		profile := &models.UserProfile{
			ID:       user.ID.String(),
			Email:    user.Email,
			Username: user.Username,
			TenantID: user.TenantID.String(),
			IsAdmin:  user.IsAdmin,
		}
		if user.Tenant != nil {
			profile.TenantStatus = user.Tenant.Status
			profile.CompanyName = user.Tenant.CompanyName
		}
		return profile, nil
	default:
		return nil, auth.ErrInvalidToken
	}
}

// CreateUser adds a non-admin user under the per-tenant cap. The tenant row is
// locked for the count so two concurrent creations cannot both pass the check.
func (d *Directory) CreateUser(ctx context.Context, tenantID uuid.UUID, in CreateUserInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	hash, err := auth.HashPassword(in.Password, d.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		TenantID:     tenantID,
		Email:        email,
		Username:     strings.TrimSpace(in.Username),
		PasswordHash: hash,
		IsAdmin:      false,
		IsActive:     true,
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant models.Tenant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", tenantID).First(&tenant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTenantNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&models.User{}).
			Where("tenant_id = ? AND is_active = ?", tenantID, true).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= models.MaxUsersPerTenant {
			return ErrUserCapReached
		}

		taken, err := d.emailTaken(ctx, tx, email)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken
		}

		return tx.Create(&user).Error
	})
	if err != nil {
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// ListUsers returns the tenant's users oldest first
func (d *Directory) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]models.User, error) {
	var users []models.User
	if err := d.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, nil
}

// DeleteUser removes a user of the same tenant. Users cannot delete themselves.
func (d *Directory) DeleteUser(ctx context.Context, tenantID, actorID, userID uuid.UUID) error {
	if actorID == userID {
		return ErrDeleteSelf
	}

	result := d.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", userID, tenantID).
		Delete(&models.User{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ProvisionSuperAdmin creates the platform operator account if it does not exist.
// It is safe to run on every service start.
func (d *Directory) ProvisionSuperAdmin(ctx context.Context, email, password string) (bool, error) {
	email = normalizeEmail(email)
	db := d.db.WithContext(ctx)

	var existing models.SuperAdmin
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up super admin: %w", err)
	}

	hash, err := auth.HashPassword(password, d.hashCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := models.SuperAdmin{Email: email, PasswordHash: hash}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&admin)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create super admin: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (d *Directory) emailTaken(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return true, nil
	}
	if err := db.WithContext(ctx).Model(&models.Tenant{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return true, nil
	}
	if err := db.WithContext(ctx).Model(&models.SuperAdmin{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return count > 0, nil
}
