package auth

import (
	"github.com/google/uuid"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
)

// Principal is the authenticated caller. It is either a SuperAdmin or a TenantUser;
// guards switch on the concrete type.
type Principal interface {
	principal()
	Subject() string
}

// SuperAdmin is the platform operator
type SuperAdmin struct {
	UserID string
	Email  string
}

// TenantUser is a user acting inside one tenant. IsAdmin is filled in by the
// tenant-admin guard from the user record.
type TenantUser struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
	IsAdmin  bool
}

func (SuperAdmin) principal() {}
func (TenantUser) principal() {}

func (p SuperAdmin) Subject() string { return p.UserID }
func (p TenantUser) Subject() string { return p.UserID.String() }

// PrincipalFromClaims builds the principal a verified token speaks for
func PrincipalFromClaims(c *Claims) (Principal, error) {
	if c.IsSuperAdmin {
		return SuperAdmin{UserID: c.UserID, Email: c.Email}, nil
	}

	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return TenantUser{UserID: userID, TenantID: tenantID, Email: c.Email}, nil
}

// AsTenantUser returns the tenant user behind p or Forbidden for super admins on
// endpoints that only make sense inside a tenant
func AsTenantUser(p Principal) (TenantUser, error) {
	switch v := p.(type) {
	case TenantUser:
		return v, nil
	case *TenantUser:
		return *v, nil
	default:
		return TenantUser{}, apperr.Forbidden("Tenant account required")
	}
}
