package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/middleware"
	"github.com/pavitra93/voice-agent-saas/shared/models"
	"github.com/pavitra93/voice-agent-saas/shared/tenancy"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

// TenantStats is the tenant dashboard summary
type TenantStats struct {
	TotalUsers         int64 `json:"total_users"`
	TotalConversations int64 `json:"total_conversations"`
	TotalAppointments  int64 `json:"total_appointments"`
	ConnectedCalendars int64 `json:"connected_calendars"`
	MinutesBalance     int64 `json:"minutes_balance"`
}

// TenantDetail is the admin view of one tenant
type TenantDetail struct {
	*models.Tenant
	Users []models.User `json:"users"`
}

// handleGetOwnTenant returns the caller's tenant
func handleGetOwnTenant(lifecycle *tenancy.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		tenant, err := lifecycle.Get(c.Request.Context(), user.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Tenant retrieved successfully", tenant)
	}
}

// handleUpdateOwnTenant updates the profile fields of the caller's tenant
func handleUpdateOwnTenant(lifecycle *tenancy.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req tenancy.ProfileUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		tenant, err := lifecycle.UpdateProfile(c.Request.Context(), user.TenantID, req)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Tenant updated successfully", tenant)
	}
}

func handleTenantStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		stats, err := collectTenantStats(c.Request.Context(), db, user.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Stats retrieved successfully", stats)
	}
}

func collectTenantStats(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) (*TenantStats, error) {
	db = db.WithContext(ctx)
	stats := &TenantStats{}

	counts := map[interface{}]*int64{
		&models.User{}:               &stats.TotalUsers,
		&models.Conversation{}:       &stats.TotalConversations,
		&models.Appointment{}:        &stats.TotalAppointments,
		&models.CalendarConnection{}: &stats.ConnectedCalendars,
	}
	for model, dest := range counts {
		if err := db.Model(model).Where("tenant_id = ?", tenantID).Count(dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count tenant stats: %w", err)
		}
	}

	var tenant models.Tenant
	if err := db.Select("minutes_balance").Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to load minutes balance: %w", err)
	}
	stats.MinutesBalance = tenant.MinutesBalance

	return stats, nil
}

func handleListUsers(directory *tenancy.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		users, err := directory.ListUsers(c.Request.Context(), user.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Users retrieved successfully", users)
	}
}

// handleCreateUser adds a user to the caller's tenant (tenant admin only)
func handleCreateUser(directory *tenancy.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req tenancy.CreateUserInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		user, err := directory.CreateUser(c.Request.Context(), admin.TenantID, req)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.CreatedResponse(c, "User created successfully", user)
	}
}

func handleDeleteUser(directory *tenancy.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		userID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		if err := directory.DeleteUser(c.Request.Context(), admin.TenantID, admin.UserID, userID); err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "User deleted successfully", nil)
	}
}

// handleListTenants lists tenants, optionally filtered by ?status=
func handleListTenants(lifecycle *tenancy.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenants, err := lifecycle.List(c.Request.Context(), c.Query("status"))
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Tenants retrieved successfully", tenants)
	}
}

func handleGetTenant(lifecycle *tenancy.Lifecycle, directory *tenancy.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		tenant, err := lifecycle.Get(c.Request.Context(), tenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		users, err := directory.ListUsers(c.Request.Context(), tenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Tenant retrieved successfully", TenantDetail{Tenant: tenant, Users: users})
	}
}

// handleTransition wraps one lifecycle operation (approve, reject, suspend)
func handleTransition(transition func(context.Context, uuid.UUID) (*models.Tenant, error), message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		tenant, err := transition(c.Request.Context(), tenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, message, tenant)
	}
}

func handlePlatformStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := billing.CollectPlatformStats(c.Request.Context(), db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Platform stats retrieved successfully", stats)
	}
}
