package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/madrasa-dev/timetable-api/internal/models"
)

// TeacherAssignmentRepository reads subject-teacher qualification mappings.
type TeacherAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeacherAssignmentRepository creates a new teacher assignment repository.
func NewTeacherAssignmentRepository(db *sqlx.DB) *TeacherAssignmentRepository {
	return &TeacherAssignmentRepository{db: db}
}

// ListByClassSection returns the qualified teachers per subject for one grid.
func (r *TeacherAssignmentRepository) ListByClassSection(ctx context.Context, yearID, classID, section string) ([]models.TeacherAssignment, error) {
	const query = `SELECT id, teacher_id, subject_id, class_id, section, academic_year_id, created_at FROM teacher_assignments WHERE academic_year_id = $1 AND class_id = $2 AND section = $3 ORDER BY subject_id ASC, teacher_id ASC`
	var assignments []models.TeacherAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, yearID, classID, section); err != nil {
		return nil, fmt.Errorf("list teacher assignments by class section: %w", err)
	}
	return assignments, nil
}
