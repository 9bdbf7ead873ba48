package models

import "time"

// Assignment pins a subject (and optionally a teacher) to one slot of a
// class-section grid. TeacherID stays nil for slots left to manual completion.
type Assignment struct {
	ID             string      `db:"id" json:"id"`
	AcademicYearID string      `db:"academic_year_id" json:"academic_year_id"`
	SessionType    SessionType `db:"session_type" json:"session_type"`
	ClassID        string      `db:"class_id" json:"class_id"`
	Section        string      `db:"section" json:"section"`
	DayOfWeek      int         `db:"day_of_week" json:"day_of_week"`
	PeriodNumber   int         `db:"period_number" json:"period_number"`
	SubjectID      string      `db:"subject_id" json:"subject_id"`
	TeacherID      *string     `db:"teacher_id" json:"teacher_id,omitempty"`
	Room           *string     `db:"room" json:"room,omitempty"`
	Notes          *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Slot returns the grid cell this assignment occupies.
func (a Assignment) Slot() TimeSlot {
	return TimeSlot{DayOfWeek: a.DayOfWeek, PeriodNumber: a.PeriodNumber}
}

// AssignmentFilter describes query params for listing assignments.
type AssignmentFilter struct {
	AcademicYearID string
	SessionType    string
	ClassID        string
	Section        string
	TeacherID      string
	SubjectID      string
	DayOfWeek      int
	PeriodNumber   int
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// Conflict dimensions.
const (
	ConflictDimensionClass        = "CLASS"
	ConflictDimensionTeacher      = "TEACHER"
	ConflictDimensionAvailability = "AVAILABILITY"
)

// AssignmentConflict describes an existing assignment that blocks a change.
type AssignmentConflict struct {
	AssignmentID string  `json:"assignment_id"`
	OtherID      *string `json:"other_assignment_id,omitempty"`
	ClassID      string  `json:"class_id"`
	Section      string  `json:"section"`
	TeacherID    *string `json:"teacher_id,omitempty"`
	DayOfWeek    int     `json:"day_of_week"`
	PeriodNumber int     `json:"period_number"`
	Dimension    string  `json:"dimension"`
}

// AssignmentConflictError is returned when a write collides with existing rows.
type AssignmentConflictError struct {
	Type     string               `json:"type"`
	Message  string               `json:"message"`
	Conflict AssignmentConflict   `json:"conflict"`
	Errors   []AssignmentConflict `json:"errors,omitempty"`
}

// Error implements the error interface for conflict errors.
func (e *AssignmentConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
