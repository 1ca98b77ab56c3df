package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/models"
	"github.com/pavitra93/voice-agent-saas/shared/tenancy"
	"github.com/pavitra93/voice-agent-saas/shared/testutil"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db     *gorm.DB
	tokens *auth.TokenService
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	tokens := auth.NewTokenService("test-secret", time.Hour)
	am := NewAuthMiddleware(tokens, tenancy.NewGuard(db, nil))

	router := gin.New()
	whoami := func(c *gin.Context) {
		p, _ := PrincipalFromContext(c)
		body := gin.H{"subject": p.Subject(), "tenant_id": c.GetString("tenant_id")}
		if tu, err := TenantUserFromContext(c); err == nil {
			body["is_admin"] = tu.IsAdmin
		}
		utils.OKResponse(c, "ok", body)
	}

	protected := router.Group("/", am.RequireAuth())
	protected.GET("/me", whoami)
	protected.GET("/approved", am.RequireApproved(), whoami)
	protected.GET("/admin", am.RequireSuperAdmin(), whoami)
	protected.GET("/tenant-admin", am.RequireTenantAdmin(), whoami)

	return &fixture{db: db, tokens: tokens, router: router}
}

func (f *fixture) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) tokenFor(t *testing.T, user *models.User) string {
	token, err := f.tokens.Issue(user.ID.String(), user.TenantID.String(), user.Email, false)
	require.NoError(t, err)
	return token
}

func TestRequireAuth(t *testing.T) {
	f := newFixture(t)

	t.Run("missing token", func(t *testing.T) {
		w := f.get(t, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var resp utils.APIResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "Authorization token required", resp.Error)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other := auth.NewTokenService("other-secret", time.Hour)
		token, err := other.Issue("u", "t", "x@example.de", true)
		require.NoError(t, err)

		assert.Equal(t, http.StatusUnauthorized, f.get(t, "/me", token).Code)
	})

	t.Run("valid token sets the claims", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, f.db, models.TenantPending)
		user := testutil.CreateUser(t, f.db, tenant.ID, true)

		w := f.get(t, "/me", f.tokenFor(t, user))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), tenant.ID.String())
	})
}

func TestRequireApproved(t *testing.T) {
	f := newFixture(t)

	pending := testutil.CreateTenant(t, f.db, models.TenantPending)
	pendingUser := testutil.CreateUser(t, f.db, pending.ID, true)
	approved := testutil.CreateTenant(t, f.db, models.TenantApproved)
	approvedUser := testutil.CreateUser(t, f.db, approved.ID, false)

	assert.Equal(t, http.StatusForbidden, f.get(t, "/approved", f.tokenFor(t, pendingUser)).Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/approved", f.tokenFor(t, approvedUser)).Code)

	admin, err := f.tokens.Issue("admin-1", auth.PlatformTenantID, "admin@voiceagent.de", true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, f.get(t, "/approved", admin).Code)
}

func TestRequireSuperAdmin(t *testing.T) {
	f := newFixture(t)

	tenant := testutil.CreateTenant(t, f.db, models.TenantApproved)
	user := testutil.CreateUser(t, f.db, tenant.ID, true)
	assert.Equal(t, http.StatusForbidden, f.get(t, "/admin", f.tokenFor(t, user)).Code)

	admin, err := f.tokens.Issue("admin-1", auth.PlatformTenantID, "admin@voiceagent.de", true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, f.get(t, "/admin", admin).Code)
}

func TestRequireTenantAdmin(t *testing.T) {
	f := newFixture(t)

	tenant := testutil.CreateTenant(t, f.db, models.TenantApproved)
	owner := testutil.CreateUser(t, f.db, tenant.ID, true)
	member := testutil.CreateUser(t, f.db, tenant.ID, false)

	w := f.get(t, "/tenant-admin", f.tokenFor(t, owner))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_admin":true`)

	assert.Equal(t, http.StatusForbidden, f.get(t, "/tenant-admin", f.tokenFor(t, member)).Code)

	admin, err := f.tokens.Issue("admin-1", auth.PlatformTenantID, "admin@voiceagent.de", true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, f.get(t, "/tenant-admin", admin).Code)
}
