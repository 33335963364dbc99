package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-pass-api/internal/service"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/response"
)

// GateHandler serves the gate-device surface and the mobility views wardens
// use for follow up.
type GateHandler struct {
	service *service.MobilityService
}

// NewGateHandler creates a new handler.
func NewGateHandler(svc *service.MobilityService) *GateHandler {
	return &GateHandler{service: svc}
}

// Scan godoc
// @Summary Record gate scan
// @Description Process one exit or entry scan reported by a gate device
// @Tags Gate
// @Accept json
// @Produce json
// @Param payload body service.ScanRequest true "Scan"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /gate/scan [post]
func (h *GateHandler) Scan(c *gin.Context) {
	var req service.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}
	event, err := h.service.RecordScan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Admission godoc
// @Summary Check gate admission
// @Description Read-only check whether a student may exit right now
// @Tags Gate
// @Produce json
// @Param student_id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /gate/admission/{student_id} [get]
func (h *GateHandler) Admission(c *gin.Context) {
	check, err := h.service.Admission(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Anomalies godoc
// @Summary List flagged scans
// @Description List entry scans that matched no active pass, newest first
// @Tags Gate
// @Produce json
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /gate/anomalies [get]
func (h *GateHandler) Anomalies(c *gin.Context) {
	events, err := h.service.ListAnomalies(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// PassEvents godoc
// @Summary List scans for a pass
// @Description List the mobility events realizing one pass, oldest first
// @Tags Gate
// @Produce json
// @Param id path string true "Pass ID"
// @Success 200 {object} response.Envelope
// @Router /passes/{id}/events [get]
func (h *GateHandler) PassEvents(c *gin.Context) {
	events, err := h.service.EventsForPass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
