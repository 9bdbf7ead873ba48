package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-dev/timetable-api/internal/service"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
	"github.com/madrasa-dev/timetable-api/pkg/response"
)

// ExportHandler serves CSV exports of class-section grids.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// ExportGrid godoc
// @Summary Export one class-section grid as CSV
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ExportGridRequest true "Grid selector"
// @Success 200 {object} response.Envelope
// @Router /schedules/export [post]
func (h *ExportHandler) ExportGrid(c *gin.Context) {
	var req service.ExportGridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.ExportGrid(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a previously exported file
// @Tags Schedules
// @Produce text/csv
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	path, name, err := h.service.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, name)
}
