package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-pass-api/internal/service"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/response"
)

// DelegationHandler manages approval-authority handovers over HTTP.
type DelegationHandler struct {
	service *service.DelegationService
}

// NewDelegationHandler creates a new handler.
func NewDelegationHandler(svc *service.DelegationService) *DelegationHandler {
	return &DelegationHandler{service: svc}
}

// Set godoc
// @Summary Set delegation
// @Description Install a delegation for the caller, replacing any active one
// @Tags Delegations
// @Accept json
// @Produce json
// @Param payload body service.SetDelegationRequest true "Delegation window"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /delegations [put]
func (h *DelegationHandler) Set(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SetDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid delegation payload"))
		return
	}
	result, err := h.service.Set(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Revoke godoc
// @Summary Revoke delegation
// @Description End the caller's active delegation
// @Tags Delegations
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /delegations [delete]
func (h *DelegationHandler) Revoke(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Revoke(c.Request.Context(), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Current godoc
// @Summary Current delegation
// @Description Return the caller's active delegation, if any
// @Tags Delegations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /delegations/me [get]
func (h *DelegationHandler) Current(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	delegation, err := h.service.Current(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, delegation, nil)
}

// List godoc
// @Summary List delegations
// @Description List active delegations with their computed conflict flags
// @Tags Delegations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /delegations [get]
func (h *DelegationHandler) List(c *gin.Context) {
	views, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}
