package main

import (
	"github.com/gin-gonic/gin"

	"github.com/pavitra93/voice-agent-saas/shared/middleware"
	"github.com/pavitra93/voice-agent-saas/shared/tenancy"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

// LoginRequest represents the login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// handleRegister creates a pending tenant together with its admin user
func handleRegister(directory *tenancy.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tenancy.RegisterInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		session, err := directory.Register(c.Request.Context(), req)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.CreatedResponse(c, "Registration successful, awaiting approval", session)
	}
}

// handleLogin issues a session token for tenant users and super admins
func handleLogin(directory *tenancy.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		session, err := directory.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Login successful", session)
	}
}

func handleMe(directory *tenancy.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, _ := middleware.PrincipalFromContext(c)

		profile, err := directory.Me(c.Request.Context(), principal)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Profile retrieved successfully", profile)
	}
}
