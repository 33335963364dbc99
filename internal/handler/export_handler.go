package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/internal/service"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/response"
)

// ExportHandler serves pass-history exports.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Generate godoc
// @Summary Export pass history
// @Description Render the pass history matching the filter and return a signed download link
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body object true "Export request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports/pass-history [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	var payload struct {
		Format    string `json:"format" binding:"required"`
		StudentID string `json:"student_id"`
		Status    string `json:"status"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	filter := models.PassFilter{StudentID: payload.StudentID}
	if payload.Status != "" {
		filter.Status = []models.PassStatus{models.PassStatus(payload.Status)}
	}
	result, err := h.service.GeneratePassHistory(c.Request.Context(), filter, service.ExportFormat(payload.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download export
// @Description Stream a previously generated export by signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, err := h.service.OpenByToken(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.FileAttachment(file.Name(), info.Name())
}
