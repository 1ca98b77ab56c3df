package tenancy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/auth"
	"github.com/pavitra93/voice-agent-saas/shared/models"
	"github.com/pavitra93/voice-agent-saas/shared/testutil"
)

func newTestDirectory(t *testing.T) (*Directory, *gorm.DB, *auth.TokenService) {
	db := testutil.NewDB(t)
	tokens := auth.NewTokenService("test-secret", time.Hour)
	return NewDirectory(db, tokens, WithHashCost(bcrypt.MinCost)), db, tokens
}

func registerInput(email string) RegisterInput {
	return RegisterInput{
		CompanyName:   "Zahnarztpraxis Müller",
		ContactPerson: "Jonas Müller",
		Email:         email,
		Password:      "geheim123",
		City:          "München",
	}
}

func TestDirectory_Register(t *testing.T) {
	dir, db, tokens := newTestDirectory(t)
	ctx := context.Background()

	session, err := dir.Register(ctx, registerInput("Info@Mueller-Zahn.de"))
	require.NoError(t, err)
	assert.Equal(t, models.TenantPending, session.TenantStatus)

	claims, err := tokens.Verify(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.TenantID, claims.TenantID)
	assert.Equal(t, "info@mueller-zahn.de", claims.Email)

	var tenant models.Tenant
	require.NoError(t, db.Where("id = ?", session.TenantID).First(&tenant).Error)
	assert.Equal(t, models.TenantPending, tenant.Status)
	assert.Equal(t, "Deutschland", tenant.Country)
	assert.Nil(t, tenant.ApprovedAt)
	assert.Zero(t, tenant.MinutesBalance)

	var user models.User
	require.NoError(t, db.Where("id = ?", session.UserID).First(&user).Error)
	assert.True(t, user.IsAdmin, "first user is admin")
	assert.True(t, user.IsActive)

	_, err = dir.Register(ctx, registerInput("info@mueller-zahn.de"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestDirectory_Authenticate(t *testing.T) {
	dir, db, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.Register(ctx, registerInput("praxis@example.de"))
	require.NoError(t, err)

	t.Run("valid credentials of a pending tenant still log in", func(t *testing.T) {
		session, err := dir.Authenticate(ctx, "PRAXIS@example.de", "geheim123")
		require.NoError(t, err)
		assert.False(t, session.IsSuperAdmin)
		assert.Equal(t, models.TenantPending, session.TenantStatus)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := dir.Authenticate(ctx, "praxis@example.de", "falsch")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := dir.Authenticate(ctx, "nobody@example.de", "geheim123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("disabled account", func(t *testing.T) {
		require.NoError(t, db.Model(&models.User{}).
			Where("email = ?", "praxis@example.de").
			Update("is_active", false).Error)

		_, err := dir.Authenticate(ctx, "praxis@example.de", "geheim123")
		assert.ErrorIs(t, err, ErrAccountDisabled)
	})
}

func TestDirectory_SuperAdmin(t *testing.T) {
	dir, db, tokens := newTestDirectory(t)
	ctx := context.Background()

	created, err := dir.ProvisionSuperAdmin(ctx, "admin@voiceagent.de", "admin123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = dir.ProvisionSuperAdmin(ctx, "ADMIN@voiceagent.de", "other")
	require.NoError(t, err)
	assert.False(t, created, "provisioning is idempotent")

	var count int64
	require.NoError(t, db.Model(&models.SuperAdmin{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	session, err := dir.Authenticate(ctx, "admin@voiceagent.de", "admin123")
	require.NoError(t, err)
	assert.True(t, session.IsSuperAdmin)
	assert.Equal(t, auth.PlatformTenantID, session.TenantID)

	claims, err := tokens.Verify(session.AccessToken)
	require.NoError(t, err)
	p, err := auth.PrincipalFromClaims(claims)
	require.NoError(t, err)

	profile, err := dir.Me(ctx, p)
	require.NoError(t, err)
	assert.True(t, profile.IsSuperAdmin)

	_, err = dir.Register(ctx, registerInput("admin@voiceagent.de"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestDirectory_UserCap(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	ctx := context.Background()

	session, err := dir.Register(ctx, registerInput("owner@example.de"))
	require.NoError(t, err)
	tenantID := uuid.MustParse(session.TenantID)

	second, err := dir.CreateUser(ctx, tenantID, CreateUserInput{Email: "second@example.de", Username: "Zweite", Password: "geheim123"})
	require.NoError(t, err)
	assert.False(t, second.IsAdmin)

	_, err = dir.CreateUser(ctx, tenantID, CreateUserInput{Email: "third@example.de", Username: "Dritte", Password: "geheim123"})
	assert.ErrorIs(t, err, ErrUserCapReached)
	assert.True(t, apperr.IsConflict(err))

	users, err := dir.ListUsers(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestDirectory_UserCapUnderConcurrency(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	ctx := context.Background()

	session, err := dir.Register(ctx, registerInput("owner@example.de"))
	require.NoError(t, err)
	tenantID := uuid.MustParse(session.TenantID)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := dir.CreateUser(ctx, tenantID, CreateUserInput{
				Email:    uuid.NewString()[:8] + "@example.de",
				Username: "parallel",
				Password: "geheim123",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.IsConflict(err))
	}
	assert.Equal(t, 1, succeeded)

	users, err := dir.ListUsers(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, users, models.MaxUsersPerTenant)
}

func TestDirectory_CreateUserRejectsDuplicateEmail(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	ctx := context.Background()

	a, err := dir.Register(ctx, registerInput("a@example.de"))
	require.NoError(t, err)
	_, err = dir.Register(ctx, registerInput("b@example.de"))
	require.NoError(t, err)

	_, err = dir.CreateUser(ctx, uuid.MustParse(a.TenantID), CreateUserInput{Email: "b@example.de", Username: "x", Password: "geheim123"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestDirectory_RegisterLosesInsertRace(t *testing.T) {
	dir, db, _ := newTestDirectory(t)
	ctx := context.Background()

	// a concurrent registration commits the same email after the
	// availability check but before our insert
	fired := false
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:concurrent_register", func(tx *gorm.DB) {
		tenant, ok := tx.Statement.Dest.(*models.Tenant)
		if fired || !ok || tenant.Email != "race@example.de" {
			return
		}
		fired = true
		rival := models.Tenant{CompanyName: "Rival", ContactPerson: "R", Email: tenant.Email, Status: models.TenantPending}
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Create(&rival).Error)
	}))

	_, err := dir.Register(ctx, registerInput("race@example.de"))
	require.True(t, fired)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestDirectory_DeleteUser(t *testing.T) {
	dir, db, _ := newTestDirectory(t)
	ctx := context.Background()

	tenant := testutil.CreateTenant(t, db, models.TenantApproved)
	admin := testutil.CreateUser(t, db, tenant.ID, true)
	member := testutil.CreateUser(t, db, tenant.ID, false)
	stranger := testutil.CreateUser(t, db, testutil.CreateTenant(t, db, models.TenantApproved).ID, false)

	assert.ErrorIs(t, dir.DeleteUser(ctx, tenant.ID, admin.ID, admin.ID), ErrDeleteSelf)
	assert.ErrorIs(t, dir.DeleteUser(ctx, tenant.ID, admin.ID, stranger.ID), ErrUserNotFound)
	require.NoError(t, dir.DeleteUser(ctx, tenant.ID, admin.ID, member.ID))
	assert.ErrorIs(t, dir.DeleteUser(ctx, tenant.ID, admin.ID, member.ID), ErrUserNotFound)
}

func TestDirectory_Me(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	ctx := context.Background()

	session, err := dir.Register(ctx, registerInput("me@example.de"))
	require.NoError(t, err)

	profile, err := dir.Me(ctx, auth.TenantUser{
		UserID:   uuid.MustParse(session.UserID),
		TenantID: uuid.MustParse(session.TenantID),
	})
	require.NoError(t, err)
	assert.Equal(t, "me@example.de", profile.Email)
	assert.Equal(t, models.TenantPending, profile.TenantStatus)
	assert.Equal(t, "Zahnarztpraxis Müller", profile.CompanyName)
	assert.True(t, profile.IsAdmin)

	_, err = dir.Me(ctx, auth.TenantUser{UserID: uuid.New(), TenantID: uuid.MustParse(session.TenantID)})
	assert.ErrorIs(t, err, ErrUserNotFound)
}
