package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/madrasa-dev/timetable-api/internal/models"
)

func strPtr(s string) *string {
	return &s
}

func TestBlackoutIndexBlocked(t *testing.T) {
	idx := NewBlackoutIndex([]models.TeacherBlackout{
		{TeacherID: "teacher-1", DayOfWeek: 1, PeriodNumber: 2},
		{TeacherID: "teacher-1", DayOfWeek: 3, PeriodNumber: 4},
	})

	assert.True(t, idx.Blocked("teacher-1", 1, 2))
	assert.True(t, idx.Blocked("teacher-1", 3, 4))
	assert.False(t, idx.Blocked("teacher-1", 1, 3))
	assert.False(t, idx.Blocked("teacher-2", 1, 2))

	var nilIdx *BlackoutIndex
	assert.False(t, nilIdx.Blocked("teacher-1", 1, 2))
}

func TestIsTeacherFree(t *testing.T) {
	assignments := []models.Assignment{
		{ID: "a1", TeacherID: strPtr("teacher-1"), DayOfWeek: 1, PeriodNumber: 1},
		{ID: "a2", TeacherID: strPtr("teacher-2"), DayOfWeek: 1, PeriodNumber: 1},
	}

	assert.False(t, IsTeacherFree("teacher-1", 1, 1, assignments))
	assert.True(t, IsTeacherFree("teacher-1", 1, 2, assignments))
	assert.True(t, IsTeacherFree("teacher-3", 1, 1, assignments))
	assert.True(t, IsTeacherFree("teacher-1", 1, 1, assignments, "a1"), "excluded row should not block")
}

func TestIsClassSlotFree(t *testing.T) {
	assignments := []models.Assignment{
		{ID: "a1", ClassID: "class-1", Section: "A", SessionType: models.SessionMorning, DayOfWeek: 2, PeriodNumber: 3},
	}

	assert.False(t, IsClassSlotFree("class-1", "A", models.SessionMorning, 2, 3, assignments))
	assert.True(t, IsClassSlotFree("class-1", "B", models.SessionMorning, 2, 3, assignments))
	assert.True(t, IsClassSlotFree("class-1", "A", models.SessionEvening, 2, 3, assignments))
	assert.True(t, IsClassSlotFree("class-1", "A", models.SessionMorning, 2, 4, assignments))
	assert.True(t, IsClassSlotFree("class-1", "A", models.SessionMorning, 2, 3, assignments, "a1"))
}

func TestBuildQuotaReport(t *testing.T) {
	subjects := []models.Subject{
		{ID: "math", WeeklyPeriods: 5},
		{ID: "art", WeeklyPeriods: 2},
	}
	assignments := []models.Assignment{
		{ClassID: "class-1", Section: "A", SubjectID: "math", DayOfWeek: 1, PeriodNumber: 1},
		{ClassID: "class-1", Section: "A", SubjectID: "math", DayOfWeek: 1, PeriodNumber: 2},
		{ClassID: "class-1", Section: "B", SubjectID: "math", DayOfWeek: 1, PeriodNumber: 1},
	}

	reports := BuildQuotaReport(subjects, "class-1", "A", assignments)
	assert.Equal(t, []QuotaReport{
		{SubjectID: "math", Required: 5, Assigned: 2},
		{SubjectID: "art", Required: 2, Assigned: 0},
	}, reports)
}
