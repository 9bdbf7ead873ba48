package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/madrasa-dev/timetable-api/internal/models"
)

const classColumns = "id, name, grade_number, grade_level, session_type, academic_year_id, created_at, updated_at"

// ClassRepository provides read access to classes and their sections.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes with optional filtering and pagination.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	base := "FROM classes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.SessionType != "" {
		conditions = append(conditions, fmt.Sprintf("session_type = $%d", len(args)+1))
		args = append(args, filter.SessionType)
	}
	if filter.GradeNumber > 0 {
		conditions = append(conditions, fmt.Sprintf("grade_number = $%d", len(args)+1))
		args = append(args, filter.GradeNumber)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":         true,
		"grade_number": true,
		"created_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "grade_number"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", classColumns, base, sortBy, order, size, offset)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}

	return classes, total, nil
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE id = $1", classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListSections returns the sections of one class.
func (r *ClassRepository) ListSections(ctx context.Context, classID string) ([]models.ClassSection, error) {
	const query = `SELECT class_id, section, session_type FROM class_sections WHERE class_id = $1 ORDER BY section ASC`
	var sections []models.ClassSection
	if err := r.db.SelectContext(ctx, &sections, query, classID); err != nil {
		return nil, fmt.Errorf("list class sections: %w", err)
	}
	return sections, nil
}

// ListSectionsByYearSession returns every class-section grid in a year/session.
func (r *ClassRepository) ListSectionsByYearSession(ctx context.Context, yearID string, session models.SessionType) ([]models.ClassSection, error) {
	const query = `SELECT cs.class_id, cs.section, cs.session_type FROM class_sections cs JOIN classes c ON c.id = cs.class_id WHERE c.academic_year_id = $1 AND cs.session_type = $2 ORDER BY c.grade_number ASC, c.name ASC, cs.section ASC`
	var sections []models.ClassSection
	if err := r.db.SelectContext(ctx, &sections, query, yearID, session); err != nil {
		return nil, fmt.Errorf("list class sections by year session: %w", err)
	}
	return sections, nil
}
