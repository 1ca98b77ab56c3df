package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/tenancy"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

// principalKey is the gin context key holding the auth.Principal
const principalKey = "principal"

var errTokenRequired = apperr.Auth("Authorization token required")

// AuthMiddleware validates session tokens and applies the tenancy guards
type AuthMiddleware struct {
	tokens *auth.TokenService
	guard  *tenancy.Guard
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens *auth.TokenService, guard *tenancy.Guard) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, guard: guard}
}

// RequireAuth verifies the bearer token and stores the principal together with
// the raw claim values in the context
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.RespondError(c, errTokenRequired)
			return
		}

		claims, err := am.tokens.Verify(tokenString)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		principal, err := auth.PrincipalFromClaims(claims)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Set("user_id", claims.UserID)
		c.Set("tenant_id", claims.TenantID)
		c.Set("email", claims.Email)
		c.Set("is_super_admin", claims.IsSuperAdmin)

		c.Next()
	}
}

// RequireApproved rejects tenant users whose tenant is not approved. Super
// admins pass.
func (am *AuthMiddleware) RequireApproved() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			utils.RespondError(c, errTokenRequired)
			return
		}

		if err := am.guard.RequireApproved(c.Request.Context(), principal); err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Next()
	}
}

// RequireSuperAdmin middleware guards platform administration
func (am *AuthMiddleware) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			utils.RespondError(c, errTokenRequired)
			return
		}

		if err := am.guard.RequireSuperAdmin(principal); err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Next()
	}
}

// RequireTenantAdmin lets only active admins of an approved tenant through and
// replaces the principal with one that has IsAdmin set
func (am *AuthMiddleware) RequireTenantAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			utils.RespondError(c, errTokenRequired)
			return
		}

		admin, err := am.guard.RequireTenantAdmin(c.Request.Context(), principal)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Set(principalKey, admin)
		c.Next()
	}
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check for "Bearer " prefix
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return authHeader
}

// PrincipalFromContext returns the principal set by RequireAuth
func PrincipalFromContext(c *gin.Context) (auth.Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(auth.Principal)
	return principal, ok
}

// TenantUserFromContext returns the tenant user behind the request, or Forbidden
// for super admins
func TenantUserFromContext(c *gin.Context) (auth.TenantUser, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return auth.TenantUser{}, errTokenRequired
	}
	return auth.AsTenantUser(principal)
}
