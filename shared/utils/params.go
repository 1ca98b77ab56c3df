package utils

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ParseUUIDParam reads a UUID path parameter and answers 400 when it is malformed
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		BadRequestResponse(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
