package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/internal/service"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/response"
)

// PassHandler wires HTTP endpoints to the pass authorization engine.
type PassHandler struct {
	service *service.PassService
}

// NewPassHandler creates a new handler.
func NewPassHandler(svc *service.PassService) *PassHandler {
	return &PassHandler{service: svc}
}

// Submit godoc
// @Summary Submit pass request
// @Description File a new outing or leave pass request for the calling student
// @Tags Passes
// @Accept json
// @Produce json
// @Param payload body service.SubmitPassRequest true "Pass request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /passes [post]
func (h *PassHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitPassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pass request payload"))
		return
	}
	pass, err := h.service.Submit(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pass)
}

// List godoc
// @Summary List pass requests
// @Description List pass requests; students only see their own
// @Tags Passes
// @Produce json
// @Param status query string false "Status filter"
// @Param student_id query string false "Student filter (staff only)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /passes [get]
func (h *PassHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.PassFilter{
		StudentID: c.Query("student_id"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 50),
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = []models.PassStatus{models.PassStatus(raw)}
	}
	if from, ok := queryTime(c, "from"); ok {
		filter.From = &from
	}
	if to, ok := queryTime(c, "to"); ok {
		filter.To = &to
	}

	passes, total, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, passes, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Pending godoc
// @Summary Approver inbox
// @Description List requests awaiting the caller's authority level, delegations included
// @Tags Passes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /passes/pending [get]
func (h *PassHandler) Pending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	passes, err := h.service.ListPending(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, passes, nil)
}

// Get godoc
// @Summary Get pass request
// @Description Fetch one pass request with its approval chain
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /passes/{id} [get]
func (h *PassHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pass, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// Decide godoc
// @Summary Decide pending pass
// @Description Apply one approve or reject decision at the caller's authority level
// @Tags Passes
// @Accept json
// @Produce json
// @Param id path string true "Pass ID"
// @Param payload body service.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /passes/{id}/decision [post]
func (h *PassHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	pass, err := h.service.Advance(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// Cancel godoc
// @Summary Cancel pass request
// @Description Withdraw the caller's own request while still cancellable
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /passes/{id}/cancel [post]
func (h *PassHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pass, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// IssueEmergency godoc
// @Summary Issue emergency pass
// @Description Create an immediately usable pass that skips the approval chain
// @Tags Passes
// @Accept json
// @Produce json
// @Param payload body service.EmergencyPassRequest true "Emergency pass"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /passes/emergency [post]
func (h *PassHandler) IssueEmergency(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.EmergencyPassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid emergency pass payload"))
		return
	}
	pass, err := h.service.IssueEmergency(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pass)
}

// UpdateEmergency godoc
// @Summary Update emergency pass
// @Description Edit reason and window of an unclosed emergency pass
// @Tags Passes
// @Accept json
// @Produce json
// @Param id path string true "Pass ID"
// @Param payload body service.UpdateEmergencyRequest true "Update"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /passes/{id}/emergency [put]
func (h *PassHandler) UpdateEmergency(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid emergency update payload"))
		return
	}
	pass, err := h.service.UpdateEmergency(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

// RevokeEmergency godoc
// @Summary Revoke emergency pass
// @Description Cancel an issued emergency pass before it is used at the gate
// @Tags Passes
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /passes/{id}/emergency [delete]
func (h *PassHandler) RevokeEmergency(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pass, err := h.service.RevokeEmergency(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pass, nil)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
