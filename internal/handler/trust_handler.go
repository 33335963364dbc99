package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-pass-api/internal/service"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/response"
)

// TrustHandler exposes the trust ledger.
type TrustHandler struct {
	service *service.TrustService
}

// NewTrustHandler creates a new handler.
func NewTrustHandler(svc *service.TrustService) *TrustHandler {
	return &TrustHandler{service: svc}
}

// History godoc
// @Summary Trust history
// @Description List a student's trust ledger entries, newest first
// @Tags Trust
// @Produce json
// @Param id path string true "Student ID"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/trust [get]
func (h *TrustHandler) History(c *gin.Context) {
	entries, err := h.service.History(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 100))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Adjust godoc
// @Summary Adjust trust score
// @Description Manually override a student's trust score with a reason
// @Tags Trust
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.AdjustTrustRequest true "Adjustment"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/trust [put]
func (h *TrustHandler) Adjust(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.AdjustTrustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid trust adjustment payload"))
		return
	}
	entry, err := h.service.Adjust(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// ResetCooldown godoc
// @Summary Reset cooldown
// @Description Zero a student's violation cooldown tally
// @Tags Trust
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/cooldown/reset [post]
func (h *TrustHandler) ResetCooldown(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entry, err := h.service.ResetCooldown(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
