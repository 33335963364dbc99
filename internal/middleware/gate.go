package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/response"
)

// GateTokenHeader carries the shared secret of gate hardware.
const GateTokenHeader = "X-Gate-Token"

// GateDevice authenticates gate scanners by a static deployment token. The
// devices hold no user account, so the JWT chain does not apply to them.
func GateDevice(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "gate device access is not configured"))
			c.Abort()
			return
		}
		provided := c.GetHeader(GateTokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid gate device token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
