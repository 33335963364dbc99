package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func gateRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/gate/scan", GateDevice(token), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestGateDeviceValidToken(t *testing.T) {
	r := gateRouter("gate-secret")

	req := httptest.NewRequest(http.MethodPost, "/gate/scan", nil)
	req.Header.Set(GateTokenHeader, "gate-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateDeviceWrongToken(t *testing.T) {
	r := gateRouter("gate-secret")

	req := httptest.NewRequest(http.MethodPost, "/gate/scan", nil)
	req.Header.Set(GateTokenHeader, "guessed")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid gate device token")
}

func TestGateDeviceMissingHeader(t *testing.T) {
	r := gateRouter("gate-secret")

	req := httptest.NewRequest(http.MethodPost, "/gate/scan", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGateDeviceUnconfiguredTokenRefusesAll(t *testing.T) {
	r := gateRouter("")

	req := httptest.NewRequest(http.MethodPost, "/gate/scan", nil)
	req.Header.Set(GateTokenHeader, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "not configured")
}
