package models

import "time"

// Class represents a grade-level class within an academic year.
type Class struct {
	ID             string      `db:"id" json:"id"`
	Name           string      `db:"name" json:"name"`
	GradeNumber    int         `db:"grade_number" json:"grade_number"`
	GradeLevel     string      `db:"grade_level" json:"grade_level"`
	SessionType    SessionType `db:"session_type" json:"session_type"`
	AcademicYearID string      `db:"academic_year_id" json:"academic_year_id"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassSection identifies one timetable grid: a section of a class in a session.
type ClassSection struct {
	ClassID     string      `db:"class_id" json:"class_id"`
	Section     string      `db:"section" json:"section"`
	SessionType SessionType `db:"session_type" json:"session_type"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	AcademicYearID string
	SessionType    string
	GradeNumber    int
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
