package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/madrasa-dev/timetable-api/internal/models"
	"github.com/madrasa-dev/timetable-api/internal/service"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
	"github.com/madrasa-dev/timetable-api/pkg/response"
)

// ScheduleHandler manages assignment endpoints.
type ScheduleHandler struct {
	service *service.AssignmentService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.AssignmentService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List assignments
// @Tags Schedules
// @Produce json
// @Param academicYearId query string false "Filter by academic year"
// @Param sessionType query string false "Filter by session type"
// @Param classId query string false "Filter by class"
// @Param section query string false "Filter by section"
// @Param teacherId query string false "Filter by teacher"
// @Param subjectId query string false "Filter by subject"
// @Param dayOfWeek query int false "Filter by day (1-5)"
// @Param periodNumber query int false "Filter by period (1-6)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	var filter models.AssignmentFilter
	filter.AcademicYearID = c.Query("academicYearId")
	filter.SessionType = c.Query("sessionType")
	filter.ClassID = c.Query("classId")
	filter.Section = c.Query("section")
	filter.TeacherID = c.Query("teacherId")
	filter.SubjectID = c.Query("subjectId")
	if day, err := strconv.Atoi(c.Query("dayOfWeek")); err == nil {
		filter.DayOfWeek = day
	}
	if period, err := strconv.Atoi(c.Query("periodNumber")); err == nil {
		filter.PeriodNumber = period
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	assignments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, pagination)
}

// Get godoc
// @Summary Get one assignment
// @Tags Schedules
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	assignment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Create godoc
// @Summary Create assignment
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Update godoc
// @Summary Update assignment
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.UpdateAssignmentRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Delete godoc
// @Summary Delete assignment
// @Tags Schedules
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteClassSchedule godoc
// @Summary Delete a full class-section schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.DeleteClassScheduleRequest true "Class schedule selector"
// @Success 200 {object} response.Envelope
// @Router /schedules/class-schedule [delete]
func (h *ScheduleHandler) DeleteClassSchedule(c *gin.Context) {
	var req service.DeleteClassScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.DeleteClassSchedule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Grid godoc
// @Summary Get the weekly grid for one class section
// @Tags Schedules
// @Produce json
// @Param academicYearId query string true "Academic year"
// @Param sessionType query string true "Session type"
// @Param classId query string true "Class"
// @Param section query string true "Section"
// @Success 200 {object} response.Envelope
// @Router /schedules/grid [get]
func (h *ScheduleHandler) Grid(c *gin.Context) {
	assignments, err := h.service.ListGrid(
		c.Request.Context(),
		c.Query("academicYearId"),
		models.SessionType(c.Query("sessionType")),
		c.Query("classId"),
		c.Query("section"),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// ListConflicts godoc
// @Summary List stored assignment conflicts
// @Tags Schedules
// @Produce json
// @Param academicYearId query string true "Academic year"
// @Param sessionType query string true "Session type"
// @Success 200 {object} response.Envelope
// @Router /schedules/conflicts [get]
func (h *ScheduleHandler) ListConflicts(c *gin.Context) {
	conflicts, err := h.service.ListConflicts(c.Request.Context(), c.Query("academicYearId"), models.SessionType(c.Query("sessionType")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}
