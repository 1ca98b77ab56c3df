package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", 0)
	userID, tenantID := uuid.New(), uuid.New()

	token, err := svc.Issue(userID.String(), tenantID.String(), "owner@firma.de", false)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, "owner@firma.de", claims.Email)
	assert.False(t, claims.IsSuperAdmin)

	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenService("other-secret", time.Hour)
		token, err := other.Issue(uuid.NewString(), uuid.NewString(), "a@b.de", false)
		require.NoError(t, err)

		_, err = svc.Verify(token)
		assert.True(t, apperr.IsAuth(err))
	})

	t.Run("expired", func(t *testing.T) {
		past := NewTokenService("test-secret", time.Hour)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := past.Issue(uuid.NewString(), uuid.NewString(), "a@b.de", false)
		require.NoError(t, err)

		_, err = svc.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("missing tenant id", func(t *testing.T) {
		token, err := svc.Issue(uuid.NewString(), "", "a@b.de", false)
		require.NoError(t, err)

		_, err = svc.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing user id", func(t *testing.T) {
		token, err := svc.Issue("", uuid.NewString(), "a@b.de", false)
		require.NoError(t, err)

		_, err = svc.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "x", TenantID: "y"})
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no expiry", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			UserID:   uuid.NewString(),
			TenantID: uuid.NewString(),
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt: jwt.NewNumericDate(time.Now()),
			},
		})
		raw, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = svc.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPrincipalFromClaims(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	t.Run("super admin", func(t *testing.T) {
		token, err := svc.Issue(uuid.NewString(), PlatformTenantID, "admin@voiceagent.de", true)
		require.NoError(t, err)
		claims, err := svc.Verify(token)
		require.NoError(t, err)

		p, err := PrincipalFromClaims(claims)
		require.NoError(t, err)
		_, ok := p.(SuperAdmin)
		assert.True(t, ok)

		_, err = AsTenantUser(p)
		assert.True(t, apperr.IsForbidden(err))
	})

	t.Run("tenant user", func(t *testing.T) {
		userID, tenantID := uuid.New(), uuid.New()
		p, err := PrincipalFromClaims(&Claims{UserID: userID.String(), TenantID: tenantID.String()})
		require.NoError(t, err)

		tu, err := AsTenantUser(p)
		require.NoError(t, err)
		assert.Equal(t, userID, tu.UserID)
		assert.Equal(t, tenantID, tu.TenantID)
		assert.False(t, tu.IsAdmin)
	})

	t.Run("non uuid tenant", func(t *testing.T) {
		_, err := PrincipalFromClaims(&Claims{UserID: uuid.NewString(), TenantID: PlatformTenantID})
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("geheim123", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPassword("geheim123", hash))
	assert.False(t, CheckPassword("geheim124", hash))
}
