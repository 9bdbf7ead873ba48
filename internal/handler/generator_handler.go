package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-dev/timetable-api/internal/dto"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
	"github.com/madrasa-dev/timetable-api/pkg/response"
)

type scheduleGenerator interface {
	Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error)
	SavePreview(ctx context.Context, req dto.SavePreviewRequest) (*dto.GenerateScheduleResponse, error)
	GenerateAll(ctx context.Context, req dto.GenerateAllRequest) (*dto.GenerateAllResponse, error)
	DiscardPreview(previewID string)
}

// GeneratorHandler manages automatic timetable generation endpoints.
type GeneratorHandler struct {
	generator scheduleGenerator
}

// NewGeneratorHandler constructs handler.
func NewGeneratorHandler(generator scheduleGenerator) *GeneratorHandler {
	return &GeneratorHandler{generator: generator}
}

// Generate godoc
// @Summary Generate a class-section timetable
// @Description Fills every empty slot of one class section, optionally as a preview.
// @Tags Generator
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Generation parameters"
// @Success 200 {object} response.Envelope
// @Router /schedules/generate [post]
func (h *GeneratorHandler) Generate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SavePreview godoc
// @Summary Persist a previously previewed timetable
// @Tags Generator
// @Accept json
// @Produce json
// @Param payload body dto.SavePreviewRequest true "Preview reference"
// @Success 200 {object} response.Envelope
// @Router /schedules/save-preview [post]
func (h *GeneratorHandler) SavePreview(c *gin.Context) {
	var req dto.SavePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.generator.SavePreview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GenerateAll godoc
// @Summary Generate timetables for every section of a session
// @Tags Generator
// @Accept json
// @Produce json
// @Param payload body dto.GenerateAllRequest true "Generation parameters"
// @Success 200 {object} response.Envelope
// @Router /schedules/generate-all [post]
func (h *GeneratorHandler) GenerateAll(c *gin.Context) {
	var req dto.GenerateAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.generator.GenerateAll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DiscardPreview godoc
// @Summary Discard a pending timetable preview
// @Tags Generator
// @Produce json
// @Param previewId path string true "Preview ID"
// @Success 204
// @Router /schedules/preview/{previewId} [delete]
func (h *GeneratorHandler) DiscardPreview(c *gin.Context) {
	h.generator.DiscardPreview(c.Param("previewId"))
	response.NoContent(c)
}
