package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxUsersPerTenant is the hard cap on active users a tenant may hold
const MaxUsersPerTenant = 2

// User represents a tenant user record
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `json:"tenant_id" gorm:"type:uuid;index;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-" gorm:"not null"`
	IsAdmin      bool      `json:"is_admin" gorm:"not null;default:false"`
	IsActive     bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// SuperAdmin is the platform operator account. It lives outside the tenant hierarchy.
type SuperAdmin struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

func (SuperAdmin) TableName() string {
	return "super_admins"
}

func (a *SuperAdmin) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// UserProfile is what /auth/me returns
type UserProfile struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Username     string       `json:"username"`
	TenantID     string       `json:"tenant_id"`
	TenantStatus TenantStatus `json:"tenant_status,omitempty"`
	CompanyName  string       `json:"company_name,omitempty"`
	IsAdmin      bool         `json:"is_admin"`
	IsSuperAdmin bool         `json:"is_super_admin"`
}
