package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-pass-api/internal/middleware"
	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/internal/service"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/response"
)

// RestrictionHandler manages restriction layers over HTTP.
type RestrictionHandler struct {
	service *service.RestrictionService
}

// NewRestrictionHandler creates a new handler.
func NewRestrictionHandler(svc *service.RestrictionService) *RestrictionHandler {
	return &RestrictionHandler{service: svc}
}

// SetCohort godoc
// @Summary Restrict cohort
// @Description Block a (department, academic year) cohort from submitting passes
// @Tags Restrictions
// @Accept json
// @Produce json
// @Param payload body service.SetCohortRestrictionRequest true "Restriction"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /restrictions/cohort [post]
func (h *RestrictionHandler) SetCohort(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SetCohortRestrictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cohort restriction payload"))
		return
	}
	restriction, err := h.service.SetCohortRestriction(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, restriction)
}

// ClearCohort godoc
// @Summary Lift cohort restriction
// @Description Deactivate a cohort restriction by id
// @Tags Restrictions
// @Produce json
// @Param id path string true "Restriction ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /restrictions/cohort/{id} [delete]
func (h *RestrictionHandler) ClearCohort(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.ClearCohortRestriction(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List cohort restrictions
// @Tags Restrictions
// @Produce json
// @Param department_id query string false "Department"
// @Param academic_year query int false "Academic year"
// @Param active query bool false "Active only"
// @Success 200 {object} response.Envelope
// @Router /restrictions [get]
func (h *RestrictionHandler) List(c *gin.Context) {
	filter := models.RestrictionFilter{
		DepartmentID: c.Query("department_id"),
		AcademicYear: queryInt(c, "academic_year", 0),
		ActiveOnly:   c.Query("active") == "true",
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "page_size", 50),
	}
	restrictions, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, restrictions, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// SetHardBlock godoc
// @Summary Set student hard block
// @Description Flip a student's individual pass block flag
// @Tags Restrictions
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body object true "Block flag"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/block [put]
func (h *RestrictionHandler) SetHardBlock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload struct {
		Blocked bool `json:"blocked"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid block payload"))
		return
	}
	if err := h.service.SetHardBlock(c.Request.Context(), c.Param("id"), payload.Blocked, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CheckStudent godoc
// @Summary Check student restrictions
// @Description Evaluate every restriction layer for a student
// @Tags Restrictions
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/restrictions [get]
func (h *RestrictionHandler) CheckStudent(c *gin.Context) {
	check, err := h.service.CheckStudentByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, check.CacheHit)
	response.JSON(c, http.StatusOK, check, nil, middleware.ExtractMeta(c))
}
