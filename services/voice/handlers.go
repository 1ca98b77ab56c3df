package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/billing"
	"github.com/pavitra93/voice-agent-saas/shared/middleware"
	"github.com/pavitra93/voice-agent-saas/shared/models"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

const (
	// processingOverheadSeconds is billed on top of the measured wall time
	processingOverheadSeconds = 5

	calendarContextSize = 10
	conversationLimit   = 50
	listLimit           = 100
)

var (
	errAppointmentNotFound = apperr.NotFound("Appointment not found")
	errCalendarNotFound    = apperr.NotFound("Calendar not found")
)

// ProcessVoiceRequest carries the transcribed utterance
type ProcessVoiceRequest struct {
	Transcription string `json:"transcription" binding:"required"`
}

// ProcessVoiceResponse is the assistant reply returned to the caller
type ProcessVoiceResponse struct {
	ConversationID  uuid.UUID `json:"conversation_id"`
	Transcription   string    `json:"transcription"`
	Response        string    `json:"response"`
	CalendarAction  string    `json:"calendar_action,omitempty"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// CreateAppointmentRequest represents the create appointment request
type CreateAppointmentRequest struct {
	Title            string    `json:"title" binding:"required"`
	StartTime        time.Time `json:"start_time" binding:"required"`
	EndTime          time.Time `json:"end_time" binding:"required"`
	Description      string    `json:"description"`
	CalendarProvider string    `json:"calendar_provider" binding:"required"`
}

// ConnectCalendarRequest represents the calendar connection request
type ConnectCalendarRequest struct {
	Provider     string     `json:"provider" binding:"required"`
	Email        string     `json:"email" binding:"required,email"`
	AccessToken  string     `json:"access_token" binding:"required"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// calendarContext summarizes the tenant's next appointments for the assistant
func calendarContext(ctx context.Context, db *gorm.DB, tenantID uuid.UUID) (string, error) {
	var appointments []models.Appointment
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("start_time ASC").
		Limit(calendarContextSize).
		Find(&appointments).Error
	if err != nil {
		return "", fmt.Errorf("failed to load appointments: %w", err)
	}

	if len(appointments) == 0 {
		return "Keine anstehenden Termine gefunden.", nil
	}

	var b strings.Builder
	b.WriteString("Anstehende Termine:\n")
	for _, a := range appointments {
		fmt.Fprintf(&b, "- %s am %s (%s)\n", a.Title, a.StartTime.Format(time.RFC3339), a.CalendarProvider)
	}
	return b.String(), nil
}

// billableSeconds is the wall time since start, rounded down, plus the overhead
func billableSeconds(start, end time.Time) int64 {
	return int64(end.Sub(start)/time.Second) + processingOverheadSeconds
}

// handleProcessVoice asks the assistant for a reply, stores the exchange and
// submits the usage. An unreachable assistant yields the fallback reply and the
// exchange is still billed.
func handleProcessVoice(db *gorm.DB, assistant Assistant, sink billing.UsageSink, logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req ProcessVoiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		ctx := c.Request.Context()
		calendar, err := calendarContext(ctx, db, user.TenantID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		reply, err := assistant.Respond(ctx, AssistantRequest{
			TenantID:        user.TenantID.String(),
			UserID:          user.UserID.String(),
			Transcription:   req.Transcription,
			CalendarContext: calendar,
		})
		if err != nil {
			logger.WithFields(logrus.Fields{
				"tenant_id": user.TenantID,
				"user_id":   user.UserID,
			}).WithError(err).Warn("Assistant unavailable, using fallback reply")
			reply = &AssistantReply{Response: fallbackReply}
		}

		var action string
		if len(reply.CalendarAction) > 0 && string(reply.CalendarAction) != "null" {
			action = string(reply.CalendarAction)
		}

		duration := billableSeconds(start, time.Now())
		conversation := models.Conversation{
			TenantID:        user.TenantID,
			UserID:          user.UserID,
			Transcription:   req.Transcription,
			AgentResponse:   reply.Response,
			CalendarAction:  action,
			DurationSeconds: duration,
		}
		if err := db.WithContext(ctx).Create(&conversation).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("failed to store conversation: %w", err))
			return
		}

		event := billing.NewUsageEvent(user.TenantID, user.UserID, models.CallTypeVoice, duration)
		if err := sink.Submit(event); err != nil {
			logger.WithFields(logrus.Fields{
				"tenant_id": user.TenantID,
				"event_id":  event.ID,
			}).WithError(err).Error("Failed to submit usage event")
		}

		utils.OKResponse(c, "Voice processed successfully", ProcessVoiceResponse{
			ConversationID:  conversation.ID,
			Transcription:   req.Transcription,
			Response:        reply.Response,
			CalendarAction:  conversation.CalendarAction,
			DurationSeconds: duration,
		})
	}
}

// handleListConversations returns the latest conversations of the tenant
func handleListConversations(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var conversations []models.Conversation
		if err := db.WithContext(c.Request.Context()).
			Where("tenant_id = ?", user.TenantID).
			Order("created_at DESC").
			Limit(conversationLimit).
			Find(&conversations).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("failed to fetch conversations: %w", err))
			return
		}

		utils.OKResponse(c, "Conversations retrieved successfully", conversations)
	}
}

func handleListAppointments(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var appointments []models.Appointment
		if err := db.WithContext(c.Request.Context()).
			Where("tenant_id = ?", user.TenantID).
			Order("start_time ASC").
			Limit(listLimit).
			Find(&appointments).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("failed to fetch appointments: %w", err))
			return
		}

		utils.OKResponse(c, "Appointments retrieved successfully", appointments)
	}
}

func handleCreateAppointment(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req CreateAppointmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if !req.EndTime.After(req.StartTime) {
			utils.BadRequestResponse(c, "end_time must be after start_time")
			return
		}

		appointment := models.Appointment{
			TenantID:         user.TenantID,
			UserID:           user.UserID,
			Title:            strings.TrimSpace(req.Title),
			StartTime:        req.StartTime.UTC(),
			EndTime:          req.EndTime.UTC(),
			Description:      req.Description,
			CalendarProvider: req.CalendarProvider,
		}
		if err := db.WithContext(c.Request.Context()).Create(&appointment).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("failed to create appointment: %w", err))
			return
		}

		utils.CreatedResponse(c, "Appointment created successfully", appointment)
	}
}

func handleDeleteAppointment(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		id, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		result := db.WithContext(c.Request.Context()).
			Where("id = ? AND tenant_id = ?", id, user.TenantID).
			Delete(&models.Appointment{})
		if result.Error != nil {
			utils.RespondError(c, fmt.Errorf("failed to delete appointment: %w", result.Error))
			return
		}
		if result.RowsAffected == 0 {
			utils.RespondError(c, errAppointmentNotFound)
			return
		}

		utils.OKResponse(c, "Appointment deleted", nil)
	}
}

func handleListCalendars(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var calendars []models.CalendarConnection
		if err := db.WithContext(c.Request.Context()).
			Where("tenant_id = ?", user.TenantID).
			Order("created_at ASC").
			Limit(listLimit).
			Find(&calendars).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("failed to fetch calendars: %w", err))
			return
		}

		utils.OKResponse(c, "Calendars retrieved successfully", calendars)
	}
}

func handleConnectCalendar(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req ConnectCalendarRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		calendar := models.CalendarConnection{
			TenantID:     user.TenantID,
			Provider:     req.Provider,
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			ExpiresAt:    req.ExpiresAt,
		}
		if err := db.WithContext(c.Request.Context()).Create(&calendar).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("failed to connect calendar: %w", err))
			return
		}

		utils.CreatedResponse(c, "Calendar connected", calendar)
	}
}

func handleDisconnectCalendar(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.TenantUserFromContext(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		id, ok := utils.ParseUUIDParam(c, "id")
		if !ok {
			return
		}

		result := db.WithContext(c.Request.Context()).
			Where("id = ? AND tenant_id = ?", id, user.TenantID).
			Delete(&models.CalendarConnection{})
		if result.Error != nil {
			utils.RespondError(c, fmt.Errorf("failed to disconnect calendar: %w", result.Error))
			return
		}
		if result.RowsAffected == 0 {
			utils.RespondError(c, errCalendarNotFound)
			return
		}

		utils.OKResponse(c, "Calendar disconnected", nil)
	}
}

// handleAssistantStatus reports the assistant connection and breaker state
func handleAssistantStatus(client *AssistantClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.OKResponse(c, "Assistant status retrieved successfully", client.GetStatus())
	}
}
