package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-dev/timetable-api/internal/dto"
	"github.com/madrasa-dev/timetable-api/internal/service"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
	"github.com/madrasa-dev/timetable-api/pkg/response"
)

type swapCoordinator interface {
	ValidateSwap(ctx context.Context, req dto.SwapRequest) (*dto.SwapValidity, error)
	ExecuteSwap(ctx context.Context, req dto.SwapRequest) (*service.SwapResult, error)
}

// SwapHandler manages assignment swap endpoints.
type SwapHandler struct {
	swaps swapCoordinator
}

// NewSwapHandler constructs handler.
func NewSwapHandler(swaps swapCoordinator) *SwapHandler {
	return &SwapHandler{swaps: swaps}
}

// Validate godoc
// @Summary Check whether two assignments can swap subject and teacher
// @Tags Swaps
// @Accept json
// @Produce json
// @Param payload body dto.SwapRequest true "Assignment pair"
// @Success 200 {object} response.Envelope
// @Router /schedules/swap/validate [post]
func (h *SwapHandler) Validate(c *gin.Context) {
	var req dto.SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	validity, err := h.swaps.ValidateSwap(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, validity, nil)
}

// Execute godoc
// @Summary Swap subject and teacher between two assignments
// @Description Re-validates the pair and applies both updates atomically.
// @Tags Swaps
// @Accept json
// @Produce json
// @Param payload body dto.SwapRequest true "Assignment pair"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/swap [post]
func (h *SwapHandler) Execute(c *gin.Context) {
	var req dto.SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.swaps.ExecuteSwap(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !result.Swapped {
		response.JSON(c, http.StatusConflict, result, nil)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
