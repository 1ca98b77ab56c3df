package tenancy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/models"
	"github.com/pavitra93/voice-agent-saas/shared/testutil"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]models.TenantStatus{
		{models.TenantPending, models.TenantApproved},
		{models.TenantPending, models.TenantRejected},
		{models.TenantApproved, models.TenantSuspended},
	}
	for _, pair := range allowed {
		assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	denied := [][2]models.TenantStatus{
		{models.TenantApproved, models.TenantPending},
		{models.TenantRejected, models.TenantApproved},
		{models.TenantSuspended, models.TenantApproved},
		{models.TenantPending, models.TenantSuspended},
	}
	for _, pair := range denied {
		assert.False(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func TestLifecycle_Approve(t *testing.T) {
	db := testutil.NewDB(t)
	cache := newFakeCache()
	lc := NewLifecycle(db, cache, nil)
	ctx := context.Background()

	t.Run("pending tenant becomes approved and gets approved_at", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, db, models.TenantPending)
		cache.Set(ctx, tenant.ID, models.TenantPending)

		approved, err := lc.Approve(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TenantApproved, approved.Status)
		require.NotNil(t, approved.ApprovedAt)

		status, cached := cache.Get(ctx, tenant.ID)
		require.True(t, cached)
		assert.Equal(t, models.TenantApproved, status)
	})

	t.Run("approving twice keeps the first approved_at", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, db, models.TenantPending)
		fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		lc.now = func() time.Time { return fixed }
		defer func() { lc.now = time.Now }()

		first, err := lc.Approve(ctx, tenant.ID)
		require.NoError(t, err)

		lc.now = func() time.Time { return fixed.Add(48 * time.Hour) }
		second, err := lc.Approve(ctx, tenant.ID)
		require.NoError(t, err)

		require.NotNil(t, second.ApprovedAt)
		assert.True(t, first.ApprovedAt.Equal(*second.ApprovedAt))
		assert.True(t, second.ApprovedAt.Equal(fixed))
	})

	t.Run("rejected tenant cannot be approved", func(t *testing.T) {
		tenant := testutil.CreateTenant(t, db, models.TenantRejected)

		_, err := lc.Approve(ctx, tenant.ID)
		assert.True(t, apperr.IsConflict(err))

		reloaded, err := lc.Get(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TenantRejected, reloaded.Status)
		assert.Nil(t, reloaded.ApprovedAt)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := lc.Approve(ctx, uuid.New())
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestLifecycle_RejectAndSuspend(t *testing.T) {
	db := testutil.NewDB(t)
	lc := NewLifecycle(db, nil, nil)
	ctx := context.Background()

	pending := testutil.CreateTenant(t, db, models.TenantPending)
	rejected, err := lc.Reject(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantRejected, rejected.Status)
	assert.Nil(t, rejected.ApprovedAt)

	_, err = lc.Suspend(ctx, pending.ID)
	assert.True(t, apperr.IsConflict(err), "rejected is terminal")

	other := testutil.CreateTenant(t, db, models.TenantPending)
	_, err = lc.Suspend(ctx, other.ID)
	assert.True(t, apperr.IsConflict(err), "only approved tenants can be suspended")

	_, err = lc.Approve(ctx, other.ID)
	require.NoError(t, err)
	suspended, err := lc.Suspend(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantSuspended, suspended.Status)
	assert.NotNil(t, suspended.ApprovedAt, "approved_at survives suspension")

	_, err = lc.Approve(ctx, other.ID)
	assert.True(t, apperr.IsConflict(err), "suspended is terminal")
}

func TestLifecycle_List(t *testing.T) {
	db := testutil.NewDB(t)
	lc := NewLifecycle(db, nil, nil)
	ctx := context.Background()

	testutil.CreateTenant(t, db, models.TenantPending)
	testutil.CreateTenant(t, db, models.TenantPending)
	testutil.CreateTenant(t, db, models.TenantApproved)

	all, err := lc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := lc.List(ctx, "PENDING")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = lc.List(ctx, "deleted")
	assert.True(t, apperr.IsConflict(err))
}

func TestLifecycle_UpdateProfile(t *testing.T) {
	db := testutil.NewDB(t)
	lc := NewLifecycle(db, nil, nil)
	ctx := context.Background()

	tenant := testutil.CreateTenant(t, db, models.TenantApproved)
	name := "  Praxis Weber & Partner "
	city := "Hamburg"

	updated, err := lc.UpdateProfile(ctx, tenant.ID, ProfileUpdate{CompanyName: &name, City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Praxis Weber & Partner", updated.CompanyName)
	assert.Equal(t, "Hamburg", updated.City)
	assert.Equal(t, models.TenantApproved, updated.Status)
	assert.Equal(t, tenant.ContactPerson, updated.ContactPerson)

	empty := " "
	_, err = lc.UpdateProfile(ctx, tenant.ID, ProfileUpdate{CompanyName: &empty})
	assert.True(t, apperr.IsConflict(err))

	_, err = lc.UpdateProfile(ctx, uuid.New(), ProfileUpdate{City: &city})
	assert.True(t, apperr.IsNotFound(err))
}

type fakeCache struct {
	entries map[uuid.UUID]models.TenantStatus
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[uuid.UUID]models.TenantStatus{}}
}

func (f *fakeCache) Get(_ context.Context, id uuid.UUID) (models.TenantStatus, bool) {
	s, ok := f.entries[id]
	return s, ok
}

func (f *fakeCache) Set(_ context.Context, id uuid.UUID, s models.TenantStatus) {
	f.entries[id] = s
}

func (f *fakeCache) Fill(_ context.Context, id uuid.UUID, s models.TenantStatus) {
	if _, ok := f.entries[id]; !ok {
		f.entries[id] = s
	}
}
