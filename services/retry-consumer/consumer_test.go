package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/models"
	"github.com/pavitra93/voice-agent-saas/shared/testutil"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testRetryConfig = &config.RetryConfig{MaxRetries: 8, BatchSize: 100, CheckInterval: time.Second}

type flakyRecorder struct {
	err error
}

func (r *flakyRecorder) RecordUsage(ctx context.Context, event billing.UsageEvent) (*models.UsageRecord, error) {
	return nil, r.err
}

func park(t *testing.T, db *gorm.DB, tenantID, userID uuid.UUID, retries int, nextRetry time.Time) models.FailedUsageEvent {
	t.Helper()
	next := nextRetry.UTC()
	failed := models.FailedUsageEvent{
		OriginalEventID: uuid.New().String(),
		TenantID:        tenantID,
		UserID:          userID,
		CallType:        models.CallTypeVoice,
		DurationSeconds: 90,
		OccurredAt:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		ErrorMessage:    "database unavailable",
		RetryCount:      retries,
		Status:          models.FailedUsagePending,
		NextRetryAt:     &next,
	}
	require.NoError(t, db.Create(&failed).Error)
	return failed
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) models.FailedUsageEvent {
	t.Helper()
	var failed models.FailedUsageEvent
	require.NoError(t, db.Where("id = ?", id).First(&failed).Error)
	return failed
}

func TestProcessDue_ReplaysIntoLedger(t *testing.T) {
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, models.TenantApproved)
	user := testutil.CreateUser(t, db, tenant.ID, true)
	rc := NewRetryConsumer(db, billing.NewLedger(db, nil), testRetryConfig, nil)

	now := time.Now()
	due := park(t, db, tenant.ID, user.ID, 2, now.Add(-time.Minute))
	later := park(t, db, tenant.ID, user.ID, 0, now.Add(time.Hour))

	processed, err := rc.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	resolved := reload(t, db, due.ID)
	assert.Equal(t, models.FailedUsageResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, models.FailedUsagePending, reload(t, db, later.ID).Status)

	var record models.UsageRecord
	require.NoError(t, db.Where("tenant_id = ?", tenant.ID).First(&record).Error)
	assert.Equal(t, int64(90), record.DurationSeconds)
	assert.True(t, record.Timestamp.Equal(due.OccurredAt))
	assert.True(t, record.Cost.Equal(decimal.RequireFromString("0.225")))
}

func TestProcessDue_Backoff(t *testing.T) {
	db := testutil.NewDB(t)
	recorder := &flakyRecorder{err: errors.New("connection reset")}
	rc := NewRetryConsumer(db, recorder, testRetryConfig, nil)
	now := time.Now()

	first := park(t, db, uuid.New(), uuid.New(), 0, now.Add(-time.Second))
	third := park(t, db, uuid.New(), uuid.New(), 2, now.Add(-time.Second))
	last := park(t, db, uuid.New(), uuid.New(), 7, now.Add(-time.Second))

	processed, err := rc.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)

	got := reload(t, db, first.ID)
	assert.Equal(t, models.FailedUsagePending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "connection reset", got.ErrorMessage)
	require.NotNil(t, got.NextRetryAt)
	assert.WithinDuration(t, now.Add(time.Minute), *got.NextRetryAt, time.Second)

	got = reload(t, db, third.ID)
	assert.Equal(t, 3, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.WithinDuration(t, now.Add(4*time.Minute), *got.NextRetryAt, time.Second)

	got = reload(t, db, last.ID)
	assert.Equal(t, models.FailedUsagePermanentlyFailed, got.Status)
	assert.Equal(t, 8, got.RetryCount)
	assert.Equal(t, "Max retries reached: connection reset", got.ErrorMessage)
	assert.NotNil(t, got.ResolvedAt)
}

func TestProcessDue_UnknownTenantGivesUp(t *testing.T) {
	db := testutil.NewDB(t)
	rc := NewRetryConsumer(db, billing.NewLedger(db, nil), testRetryConfig, nil)
	now := time.Now()

	orphan := park(t, db, uuid.New(), uuid.New(), 0, now.Add(-time.Second))

	_, err := rc.ProcessDue(context.Background(), now)
	require.NoError(t, err)

	got := reload(t, db, orphan.ID)
	assert.Equal(t, models.FailedUsagePermanentlyFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Contains(t, got.ErrorMessage, "Tenant not found")
}

func TestStatsEndpoint(t *testing.T) {
	db := testutil.NewDB(t)
	rc := NewRetryConsumer(db, &flakyRecorder{err: errors.New("down")}, testRetryConfig, nil)
	now := time.Now()

	park(t, db, uuid.New(), uuid.New(), 0, now.Add(time.Hour))
	park(t, db, uuid.New(), uuid.New(), 7, now.Add(-time.Second))
	_, err := rc.ProcessDue(context.Background(), now)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	setupRouter(rc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	stats := data["retry_stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["pending"])
	assert.Equal(t, float64(0), stats["resolved"])
	assert.Equal(t, float64(1), stats["permanently_failed"])

	cfg := data["config"].(map[string]interface{})
	assert.Equal(t, float64(8), cfg["max_retries"])
	assert.Equal(t, "1s", cfg["check_interval"])
}
