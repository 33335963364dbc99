package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-pass-api/internal/middleware"
	"github.com/noah-isme/campus-pass-api/internal/models"
)

// claimsFromContext returns the JWT claims the auth middleware stored, or
// nil on unauthenticated routes such as gate-device endpoints.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
